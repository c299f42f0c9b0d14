// Package domain contains the per-user daily usage counters behind the
// capture quota guard.
package domain

import (
	"context"
	"errors"
	"math"
	"time"
)

// DailyUsage is one (username, civil date) counter row. Rows are created on
// first capture of the day and reset implicitly by the date rolling over.
type DailyUsage struct {
	Username         string    `gorm:"primaryKey" json:"username"`
	UsageDate        string    `gorm:"primaryKey;column:usage_date" json:"usage_date"`
	LLMTokensUsed    int64     `gorm:"not null;default:0" json:"llm_tokens_used"`
	AudioSecondsUsed float64   `gorm:"not null;default:0" json:"audio_seconds_used"`
	RequestsCount    int64     `gorm:"not null;default:0" json:"requests_count"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (DailyUsage) TableName() string { return "daily_usage" }

// ErrQuotaExceeded is returned when an admission check fails. The HTTP layer
// maps it to 429 together with the snapshot.
var ErrQuotaExceeded = errors.New("quota_exceeded")

// Snapshot is the quota view returned to devices so they can compute backoff.
type Snapshot struct {
	LLM             TokenQuota `json:"llm"`
	Audio           AudioQuota `json:"audio"`
	HoursUntilReset float64    `json:"hours_until_reset"`
}

type TokenQuota struct {
	UsedToday   int64   `json:"used_today"`
	DailyLimit  int64   `json:"daily_limit"`
	Remaining   int64   `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
}

type AudioQuota struct {
	SecondsUsedToday float64 `json:"seconds_used_today"`
	DailyLimit       float64 `json:"daily_limit"`
	Remaining        float64 `json:"remaining"`
	PercentUsed      float64 `json:"percent_used"`
}

// Decision is the admission verdict for one device capture.
type Decision struct {
	Admitted bool
	Snapshot Snapshot
}

// Service guards device-origin audio captures with a per-user daily budget.
// The check-then-commit pair is not transactional, so concurrent captures
// from one user may both be admitted just under the cap.
type Service interface {
	CheckAndReserve(ctx context.Context, username string, estimatedAudioSeconds float64) (Decision, error)
	Commit(ctx context.Context, username string, transcriptLength int, durationSeconds float64) error
	CurrentSnapshot(ctx context.Context, username string) (Snapshot, error)
}

// EstimateAudioSeconds converts a payload size to seconds assuming 16kHz
// 16-bit mono PCM.
func EstimateAudioSeconds(sizeBytes int64) float64 {
	if sizeBytes <= 0 {
		return 0
	}
	return float64(sizeBytes) / 32000.0
}

// EstimateLLMTokens approximates the tokens one capture consumed: a rough
// 4-chars-per-token for the transcript plus 50 tokens per transcribed second.
func EstimateLLMTokens(transcriptLength int, durationSeconds float64) int64 {
	tokens := int64(math.Ceil(float64(transcriptLength) / 4))
	if durationSeconds > 0 {
		tokens += int64(math.Ceil(durationSeconds * 50))
	}
	return tokens
}
