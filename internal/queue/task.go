// Package queue carries enrichment tasks to the worker tier. Delivery is
// at-least-once: consumers must upsert by memo ID rather than insert.
package queue

import (
	"github.com/bwmarrin/snowflake"
)

type TaskKind string

const (
	TaskMediaLookup     TaskKind = "media-lookup"
	TaskReminderExtract TaskKind = "reminder-extract"
	TaskShoppingExtract TaskKind = "shopping-extract"
)

// Task is one planned unit of follow-on enrichment work.
type Task struct {
	Kind            TaskKind       `json:"kind"`
	MemoID          snowflake.ID   `json:"memo_id"`
	TranscriptionID string         `json:"transcription_id"`
	Payload         map[string]any `json:"payload,omitempty"`
}
