package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Extracted is the category-tagged union of structured fields pulled out of a
// transcript during classification. Exactly one variant is set for categories
// that carry fields; todo and note memos carry none.
type Extracted struct {
	Media    *MediaFields    `json:"media,omitempty"`
	Reminder *ReminderFields `json:"reminder,omitempty"`
	Shopping *ShoppingFields `json:"shopping,omitempty"`
	Journal  *JournalFields  `json:"journal,omitempty"`
	Tarot    *TarotFields    `json:"tarot,omitempty"`
	Idea     *IdeaFields     `json:"idea,omitempty"`
}

// MediaFields describe a movie, show, or game mention.
type MediaFields struct {
	Title       string `json:"title"`
	MediaType   string `json:"media_type"`
	ReleaseYear int    `json:"release_year,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
}

// ReminderFields carry the raw temporal and action signal of a reminder.
// DueAt resolution happens in the reminder-extract worker.
type ReminderFields struct {
	Action     string `json:"action"`
	When       string `json:"when,omitempty"`
	Recurrence string `json:"recurrence,omitempty"`
}

// HasSignal reports whether the fields carry anything the date parser could
// act on.
func (f *ReminderFields) HasSignal() bool {
	if f == nil {
		return false
	}
	return strings.TrimSpace(f.Action) != "" || strings.TrimSpace(f.When) != ""
}

// ShoppingFields list the items mentioned in a shopping memo.
type ShoppingFields struct {
	Items []ShoppingEntry `json:"items"`
}

type ShoppingEntry struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
}

type JournalFields struct {
	Mood   string   `json:"mood,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

type TarotFields struct {
	Cards    []string `json:"cards,omitempty"`
	Spread   string   `json:"spread,omitempty"`
	Question string   `json:"question,omitempty"`
}

type IdeaFields struct {
	Summary  string `json:"summary"`
	NextStep string `json:"next_step,omitempty"`
}

// Matches reports whether the populated variant agrees with the category tag.
// Categories without fields accept an empty union.
func (e Extracted) Matches(category string) bool {
	switch category {
	case CategoryMedia:
		return e.Media != nil
	case CategoryReminder:
		return e.Reminder != nil
	case CategoryShopping:
		return e.Shopping != nil
	case CategoryJournal, CategoryTarot, CategoryIdea, CategoryTodo, CategoryNote:
		return true
	default:
		return false
	}
}

// Value implements driver.Valuer, storing the union as a JSON column.
func (e Extracted) Value() (driver.Value, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (e *Extracted) Scan(value any) error {
	if value == nil {
		*e = Extracted{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported extracted column type %T", value)
	}
	if len(raw) == 0 {
		*e = Extracted{}
		return nil
	}
	if !json.Valid(raw) {
		return errors.New("extracted column holds invalid JSON")
	}
	return json.Unmarshal(raw, e)
}

// GormDataType keeps gorm treating the union as jsonb.
func (Extracted) GormDataType() string { return "jsonb" }
