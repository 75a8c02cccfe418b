package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/wordsprint/internal/notify"
)

// Message is the envelope pushed onto the announcement list.
type Message struct {
	ID           string              `json:"id"`
	Announcement notify.Announcement `json:"announcement"`
	CreatedAt    time.Time           `json:"created_at"`
}

func NewMessage(a notify.Announcement) *Message {
	return &Message{
		ID:           uuid.New().String(),
		Announcement: a,
		CreatedAt:    time.Now().UTC(),
	}
}

func (m *Message) ToJSON() (string, error) {
	data, err := json.Marshal(m)
	return string(data), err
}

func MessageFromJSON(data string) (*Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
