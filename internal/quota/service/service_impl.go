// Package service implements the daily quota guard on the DailyUsage table.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/halfnote/halfnote/internal/clock"
	"github.com/halfnote/halfnote/internal/config"
	quotadomain "github.com/halfnote/halfnote/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Quota days roll over on a fixed UTC-8 civil date so resets are predictable
// for globally distributed devices, regardless of server or client timezone.
var quotaZone = time.FixedZone("UTC-8", -8*60*60)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	audioLimit float64
	tokenLimit int64
}

func NewService(p ServiceParam) quotadomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quota.service"),
		clock:      p.Clock,
		audioLimit: p.Cfg.DailyAudioSecondsLimit,
		tokenLimit: p.Cfg.DailyLLMTokensLimit,
	}
}

func (s *Service) CheckAndReserve(ctx context.Context, username string, estimatedAudioSeconds float64) (quotadomain.Decision, error) {
	usage, err := s.loadToday(ctx, username)
	if err != nil {
		return quotadomain.Decision{}, err
	}

	snapshot := s.snapshot(usage)
	if usage.AudioSecondsUsed+estimatedAudioSeconds > s.audioLimit {
		s.log.Info("capture rejected by quota",
			zap.String("username", username),
			zap.Float64("estimated_seconds", estimatedAudioSeconds),
			zap.Float64("seconds_used", usage.AudioSecondsUsed))
		return quotadomain.Decision{Admitted: false, Snapshot: snapshot}, nil
	}
	return quotadomain.Decision{Admitted: true, Snapshot: snapshot}, nil
}

func (s *Service) Commit(ctx context.Context, username string, transcriptLength int, durationSeconds float64) error {
	tokens := quotadomain.EstimateLLMTokens(transcriptLength, durationSeconds)
	now := s.clock.Now()

	usage := quotadomain.DailyUsage{
		Username:         username,
		UsageDate:        s.usageDate(now),
		LLMTokensUsed:    tokens,
		AudioSecondsUsed: durationSeconds,
		RequestsCount:    1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"llm_tokens_used":    gorm.Expr("daily_usage.llm_tokens_used + ?", tokens),
			"audio_seconds_used": gorm.Expr("daily_usage.audio_seconds_used + ?", durationSeconds),
			"requests_count":     gorm.Expr("daily_usage.requests_count + 1"),
			"updated_at":         now,
		}),
	}).Create(&usage).Error
}

func (s *Service) CurrentSnapshot(ctx context.Context, username string) (quotadomain.Snapshot, error) {
	usage, err := s.loadToday(ctx, username)
	if err != nil {
		return quotadomain.Snapshot{}, err
	}
	return s.snapshot(usage), nil
}

func (s *Service) loadToday(ctx context.Context, username string) (quotadomain.DailyUsage, error) {
	date := s.usageDate(s.clock.Now())
	var usage quotadomain.DailyUsage
	err := s.db.WithContext(ctx).
		First(&usage, "username = ? AND usage_date = ?", username, date).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return quotadomain.DailyUsage{Username: username, UsageDate: date}, nil
	}
	if err != nil {
		return quotadomain.DailyUsage{}, err
	}
	return usage, nil
}

func (s *Service) usageDate(now time.Time) string {
	return now.In(quotaZone).Format("2006-01-02")
}

func (s *Service) snapshot(usage quotadomain.DailyUsage) quotadomain.Snapshot {
	local := s.clock.Now().In(quotaZone)
	nextReset := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, quotaZone)

	return quotadomain.Snapshot{
		LLM: quotadomain.TokenQuota{
			UsedToday:   usage.LLMTokensUsed,
			DailyLimit:  s.tokenLimit,
			Remaining:   maxInt64(s.tokenLimit-usage.LLMTokensUsed, 0),
			PercentUsed: percent(float64(usage.LLMTokensUsed), float64(s.tokenLimit)),
		},
		Audio: quotadomain.AudioQuota{
			SecondsUsedToday: usage.AudioSecondsUsed,
			DailyLimit:       s.audioLimit,
			Remaining:        maxFloat(s.audioLimit-usage.AudioSecondsUsed, 0),
			PercentUsed:      percent(usage.AudioSecondsUsed, s.audioLimit),
		},
		HoursUntilReset: nextReset.Sub(local).Hours(),
	}
}

func percent(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return used / limit * 100
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
