// Package models contains the rows persisted by the repository layer.
package models

type ParticipantType string

const (
	TypeNormal      ParticipantType = ""
	TypeNoWordcount ParticipantType = "no-wordcount"
	// TypeSame is only meaningful on join and never persisted.
	TypeSame ParticipantType = "same"
)

type Sprint struct {
	ID           int64  `json:"id"`
	Guild        string `json:"guild"`
	Channel      string `json:"channel"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
	EndReference int64  `json:"end_reference"`
	Length       int    `json:"length"`
	CreatedBy    string `json:"createdby"`
	Created      int64  `json:"created"`
	Completed    int64  `json:"completed"`
}

type Participant struct {
	ID         int64           `json:"id"`
	Sprint     int64           `json:"sprint"`
	User       string          `json:"user"`
	StartingWC int             `json:"starting_wc"`
	CurrentWC  int             `json:"current_wc"`
	EndingWC   int             `json:"ending_wc"`
	TimeJoined int64           `json:"timejoined"`
	Type       ParticipantType `json:"sprint_type,omitempty"`
	Project    *int64          `json:"project,omitempty"`
}

// Declared reports whether an ending word count has been submitted.
func (p *Participant) Declared() bool {
	return p.EndingWC != 0
}

func (p *Participant) Counted() bool {
	return p.Type != TypeNoWordcount
}

type Goal struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Type      string `json:"type"`
	Goal      int    `json:"goal"`
	Current   int    `json:"current"`
	Completed bool   `json:"completed"`
	Reset     int64  `json:"reset"`
}

type GoalHistory struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Type      string `json:"type"`
	Date      string `json:"date"`
	Goal      int    `json:"goal"`
	Result    int    `json:"result"`
	Completed bool   `json:"completed"`
}

type Project struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Name      string `json:"name"`
	Shortname string `json:"shortname"`
	Words     int    `json:"words"`
}

type TaskStats struct {
	Object     string `json:"object"`
	Type       string `json:"type"`
	Count      int    `json:"count"`
	Processing int    `json:"processing"`
	Overdue    int    `json:"overdue"`
}
