package kenar

// MessageRequest is the body of POST /v2/open-platform/chatbot-conversations/{id}/messages.
type MessageRequest struct {
	Type        string   `json:"type"`
	TextMessage string   `json:"text_message"`
	Buttons     *Buttons `json:"buttons,omitempty"`
}

type Buttons struct {
	Rows []ButtonRow `json:"rows"`
}

type ButtonRow struct {
	Buttons []Button `json:"buttons"`
}

type Button struct {
	Caption string       `json:"caption"`
	Action  ButtonAction `json:"action"`
}

type ButtonAction struct {
	GetDynamicAction *DynamicAction `json:"get_dynamic_action,omitempty"`
}

// DynamicAction data is echoed back in the callback's extra_data.
// Values are strings on the wire.
type DynamicAction struct {
	Data ActionData `json:"data"`
}

type ActionData struct {
	GameID   string `json:"game_id"`
	Position string `json:"position"`
	Action   string `json:"action"`
	Disabled string `json:"disabled"`
}

const MessageTypeText = "TEXT"
