package chat

import (
	"time"

	"google.golang.org/genai"
)

const (
	RoleUser  = genai.RoleUser
	RoleModel = genai.RoleModel
)

type Conversation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversation_id"`
	UserID         uint64    `gorm:"index;not null" json:"-"`
	Title          string    `gorm:"type:varchar(255);not null" json:"title"`
	SessionGoal    string    `gorm:"type:varchar(32);not null;default:''" json:"session_goal"`
	ContextData    string    `gorm:"type:text" json:"-"`
	ContextVersion int64     `gorm:"not null;default:0" json:"-"`
	Progress       int       `gorm:"not null;default:0" json:"progress"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "tutor_conversations" }

// Message is immutable once written. Ordering is created_at, then id.
type Message struct {
	ID             uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string        `gorm:"type:varchar(26);not null;index:idx_tutor_msg_conv_created,priority:1" json:"conversation_id"`
	UserID         uint64        `gorm:"index;not null" json:"-"`
	Role           string        `gorm:"type:varchar(16);not null" json:"role"`
	Parts          []*genai.Part `gorm:"serializer:json;type:longtext;not null" json:"parts"`
	CreatedAt      time.Time     `gorm:"index:idx_tutor_msg_conv_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "tutor_messages" }

// Content converts the stored message to the model wire format. Images the
// tutor generated stay local; their caption goes upstream instead.
func (m Message) Content() *genai.Content {
	if m.Role != RoleModel {
		return &genai.Content{Role: m.Role, Parts: m.Parts}
	}
	parts := make([]*genai.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p != nil && p.InlineData == nil {
			parts = append(parts, p)
		}
	}
	return &genai.Content{Role: m.Role, Parts: parts}
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// TurnJob is an acknowledged turn whose reply is produced after the
// request returned.
type TurnJob struct {
	ID string `gorm:"primaryKey;size:26" json:"job_id"` // ULID length

	UserID         uint64 `gorm:"index;not null" json:"-"`
	ConversationID string `gorm:"type:varchar(26);index;not null" json:"conversation_id"`
	UserMessageID  uint64 `gorm:"not null" json:"user_message_id"`

	// what the completion needs besides the stored history
	UserText       string `gorm:"type:text" json:"-"`
	EducationLevel string `gorm:"type:varchar(64)" json:"-"`
	FieldOfStudy   string `gorm:"type:varchar(128)" json:"-"`
	Locale         string `gorm:"type:varchar(16)" json:"-"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id,omitempty"`
	Progress        *int    `json:"progress,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TurnJob) TableName() string { return "tutor_turn_jobs" }

// Models lists everything Migrate needs.
func Models() []any {
	return []any{&Conversation{}, &Message{}, &TurnJob{}}
}
