package models

import (
	"time"

	"github.com/lib/pq"
)

// Request sources
const (
	SourceProcessInput = "process_input"
	SourceChat         = "chat"
)

// Response modes
const (
	ModeLLM       = "LLM"
	ModeRuleBased = "Rule-based"
)

// Request is one raw user utterance
type Request struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Source    string    `gorm:"size:32;not null;default:'process_input'" json:"source"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Responses []Response `gorm:"foreignKey:RequestID" json:"-"`
}

func (Request) TableName() string {
	return "requests"
}

// Response is the assistant's reply to a Request
type Response struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RequestID uint           `gorm:"not null;index" json:"request_id"`
	Text      string         `gorm:"type:text;not null" json:"text"`
	Mode      string         `gorm:"size:16" json:"mode"`
	Intents   pq.StringArray `gorm:"type:text" json:"intents" swaggertype:"array,string"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Response) TableName() string {
	return "responses"
}
