package duelproto

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Client → server message types.
const (
	TypeSubmitAnswer = "SUBMIT_ANSWER"
	TypeFinishGame   = "FINISH_GAME"
	TypeCancelSearch = "CANCEL_SEARCH"
)

// Server → client message types.
const (
	TypeStatus         = "status"
	TypeGameStart      = "GAME_START"
	TypeAnswerResult   = "ANSWER_RESULT"
	TypeOpponentUpdate = "OPPONENT_UPDATE"
	TypeGameOverAck    = "GAME_OVER_ACK"
)

// QuestionID accepts both 42 and "42" on the wire.
type QuestionID int64

func (q *QuestionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*q = QuestionID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*q = QuestionID(n)
	return nil
}

// Inbound is the union of every client message; Type selects which fields are meaningful.
type Inbound struct {
	Type     string     `json:"type"`
	QID      QuestionID `json:"q_id,omitempty"`
	Answer   string     `json:"answer,omitempty"`
	GameID   string     `json:"game_id,omitempty"`
	Opponent string     `json:"opponent,omitempty"`
}

type Status struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

func NewStatus(msg string) Status { return Status{Type: TypeStatus, Msg: msg} }

// Question is the client view of a question; the correct option is never sent.
type Question struct {
	ID       int64             `json:"id"`
	Question string            `json:"question"`
	Options  map[string]string `json:"options"`
	Category string            `json:"category"`
}

type GameConfig struct {
	QuestionCount    int `json:"question_count"`
	TimerPerQuestion int `json:"timer_per_question"`
}

type GameStart struct {
	Type      string     `json:"type"`
	GameID    string     `json:"game_id"`
	Opponent  string     `json:"opponent"`
	Questions []Question `json:"questions"`
	Config    GameConfig `json:"config"`
}

type AnswerResult struct {
	Type          string `json:"type"`
	Correct       bool   `json:"correct"`
	Score         *int   `json:"score,omitempty"`
	CorrectOption string `json:"correct_option"`
}

type OpponentUpdate struct {
	Type          string `json:"type"`
	OpponentScore int    `json:"opponent_score"`
}

type GameOverAck struct {
	Type string `json:"type"`
}

func NewGameOverAck() GameOverAck { return GameOverAck{Type: TypeGameOverAck} }
