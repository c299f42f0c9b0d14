// Package events records memo lifecycle events in a transactional outbox.
package events

// Memo lifecycle event types recorded in the outbox.
const (
	EventMemoCaptured   = "memo.captured"
	EventMemoRequeued   = "memo.requeued"
	EventMemoBackfilled = "memo.backfilled"
)

// MemoCapturedPayload captures the minimal data needed to audit one ingested
// memo.
type MemoCapturedPayload struct {
	MemoID          string `json:"memo_id"`
	TranscriptionID string `json:"transcription_id"`
	RequestID       string `json:"request_id,omitempty"`
	Category        string `json:"category"`
	Source          string `json:"source"`
	InputType       string `json:"input_type"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p MemoCapturedPayload) ToMap() map[string]any {
	payload := map[string]any{
		"memo_id":          p.MemoID,
		"transcription_id": p.TranscriptionID,
		"category":         p.Category,
		"source":           p.Source,
		"input_type":       p.InputType,
	}
	if p.RequestID != "" {
		payload["request_id"] = p.RequestID
	}
	return payload
}
