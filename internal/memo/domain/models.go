// Package domain contains persistence models for classified memos and their
// dependent enrichment rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Capture sources.
const (
	SourceApp    = "app"
	SourceDevice = "device"
)

// Capture input types.
const (
	InputAudio = "audio"
	InputImage = "image"
	InputText  = "text"
)

// Memo categories. The category alone determines the shape of the extracted
// fields and whether the memo needs asynchronous enrichment.
const (
	CategoryMedia    = "media"
	CategoryReminder = "reminder"
	CategoryShopping = "shopping"
	CategoryJournal  = "journal"
	CategoryTarot    = "tarot"
	CategoryIdea     = "idea"
	CategoryTodo     = "todo"
	CategoryNote     = "note"
)

// Memo is the durable unit produced by one classified capture. A memo is
// pending enrichment iff EnrichmentProcessedAt and DeletedAt are both null.
type Memo struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Username  string       `gorm:"not null" json:"username"`
	Source    string       `gorm:"type:text;not null" json:"source"`
	InputType string       `gorm:"type:text;not null" json:"input_type"`
	DeviceID  *string      `gorm:"type:text" json:"device_id,omitempty"`

	Transcript      string `gorm:"type:text;not null" json:"transcript"`
	TranscriptionID string `gorm:"type:text;not null" json:"transcription_id"`

	Category   string                      `gorm:"type:text;not null" json:"category"`
	Confidence float64                     `gorm:"not null;default:0" json:"confidence"`
	Extracted  Extracted                   `gorm:"type:jsonb" json:"extracted"`
	Tags       datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`

	Starred     bool `gorm:"not null;default:false" json:"starred"`
	NeedsReview bool `gorm:"not null;default:false" json:"needs_review"`

	EnrichmentProcessedAt *time.Time `gorm:"" json:"enrichment_processed_at,omitempty"`
	DeletedAt             *time.Time `gorm:"" json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (Memo) TableName() string { return "memos" }

// PendingEnrichment reports whether the memo still awaits planning or a
// worker completion.
func (m *Memo) PendingEnrichment() bool {
	return m.EnrichmentProcessedAt == nil && m.DeletedAt == nil
}

// MediaItem is written by the media-lookup worker, one per memo.
type MediaItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	MemoID      snowflake.ID `gorm:"not null;uniqueIndex" json:"memo_id"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	MediaType   string       `gorm:"type:text;not null" json:"media_type"`
	ExternalID  *string      `gorm:"type:text" json:"external_id,omitempty"`
	ReleaseYear *int         `gorm:"" json:"release_year,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (MediaItem) TableName() string { return "media_items" }

// ReminderItem is written by the reminder-extract worker, one per memo.
type ReminderItem struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	MemoID     snowflake.ID `gorm:"not null;uniqueIndex" json:"memo_id"`
	Action     string       `gorm:"type:text;not null" json:"action"`
	DueAt      *time.Time   `gorm:"" json:"due_at,omitempty"`
	Recurrence *string      `gorm:"type:text" json:"recurrence,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (ReminderItem) TableName() string { return "reminder_items" }

// ShoppingListItem is written by the shopping-extract worker, many per memo.
type ShoppingListItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	MemoID    snowflake.ID `gorm:"not null;index" json:"memo_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Quantity  *string      `gorm:"type:text" json:"quantity,omitempty"`
	Grouping  *string      `gorm:"type:text;column:grouping" json:"grouping,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (ShoppingListItem) TableName() string { return "shopping_list_items" }
