package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a game. Values match the persisted column.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusPlayerWon  Status = "X_WON"
	StatusBotWon     Status = "O_WON"
	StatusDraw       Status = "DRAW"
)

// WonBy returns the terminal status for mark.
func WonBy(mark Mark) Status {
	if mark == Bot {
		return StatusBotWon
	}
	return StatusPlayerWon
}

func (s Status) Finished() bool { return s != StatusInProgress }

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusInProgress, StatusPlayerWon, StatusBotWon, StatusDraw:
		return st, nil
	default:
		return "", fmt.Errorf("unknown game status %q", s)
	}
}

// Game is one tic-tac-toe match bound to a chat conversation.
// ID is zero until the first save. Version is bumped by the store on every save.
type Game struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Board          Board     `json:"board"`
	CurrentTurn    Mark      `json:"current_turn"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

// NewGame returns an unsaved game with an empty board and the player to move.
func NewGame(conversationID string, now time.Time) *Game {
	return &Game{
		ConversationID: conversationID,
		Board:          NewBoard(),
		CurrentTurn:    Player,
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns an independent copy. Board is an array, so a shallow copy suffices.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

// Quota tracks assistant command usage for one conversation.
type Quota struct {
	ConversationID string    `json:"conversation_id"`
	Used           int       `json:"used"`
	LastReset      time.Time `json:"last_reset"`
	Version        int64     `json:"version"`
}
