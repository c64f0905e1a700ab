// Package xodto carries the JSON shapes exchanged with the chat platform.
package xodto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChatWebhook is the body of a new chat message notification.
type ChatWebhook struct {
	NewChatbotMessage *ChatbotMessage `json:"new_chatbot_message"`
}

type ChatbotMessage struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Text         *string       `json:"text"`
	Conversation *Conversation `json:"conversation"`
}

type Conversation struct {
	ID string `json:"id"`
}

// Validate checks the fields the dispatcher relies on.
func (w ChatWebhook) Validate() error {
	m := w.NewChatbotMessage
	if m == nil {
		return fmt.Errorf("new_chatbot_message is required")
	}
	if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.Type) == "" {
		return fmt.Errorf("message id and type are required")
	}
	if m.Text == nil {
		return fmt.Errorf("message text is required")
	}
	if m.Conversation == nil || strings.TrimSpace(m.Conversation.ID) == "" {
		return fmt.Errorf("conversation id is required")
	}
	return nil
}

// CallbackRequest is posted when a player presses a board button.
type CallbackRequest struct {
	ReturnURL      *string    `json:"return_url"`
	ConversationID *string    `json:"conversation_id"`
	ExtraData      *ExtraData `json:"extra_data"`
}

type ExtraData struct {
	GameID   FlexInt `json:"game_id"`
	Position FlexInt `json:"position"`
}

func (r CallbackRequest) Validate() error {
	if r.ReturnURL == nil || r.ConversationID == nil {
		return fmt.Errorf("return_url and conversation_id are required")
	}
	if r.ExtraData == nil {
		return fmt.Errorf("extra_data is required")
	}
	if !r.ExtraData.GameID.Set || !r.ExtraData.Position.Set {
		return fmt.Errorf("extra_data.game_id and extra_data.position are required")
	}
	return nil
}

type CallbackResponse struct {
	URL string `json:"url"`
}

// FlexInt decodes a JSON number or a numeric string.
type FlexInt struct {
	Value int64
	Set   bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = FlexInt{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	*f = FlexInt{Value: n, Set: true}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}
