// Package enrichment holds the administrative backfill/requeue controller and
// the queue-consuming worker that completes enrichment tasks.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/halfnote/halfnote/internal/events"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/observability/metrics"
	"github.com/halfnote/halfnote/internal/planner"
	"github.com/halfnote/halfnote/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	backfillMinLimit = 1
	backfillMaxLimit = 50
)

// ErrSyncCompletionDisabled is returned when backfill or requeue run without
// synchronous completion mode. Without it, empty-plan memos could be selected
// but never marked processed, leaving them stuck in the backlog forever.
var ErrSyncCompletionDisabled = errors.New("sync_completion_disabled")

// BackfillResult reports one backfill sweep. Skipped counts memos whose plan
// produced tasks and therefore stay pending until a worker completes them.
type BackfillResult struct {
	Processed int `json:"processed"`
	Enqueued  int `json:"enqueued"`
	Skipped   int `json:"skipped"`
}

// RequeueResult reports one forced reprocessing.
type RequeueResult struct {
	MemoID    snowflake.ID `json:"memo_id"`
	Enqueued  int          `json:"enqueued"`
	Processed bool         `json:"processed"`
}

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Cfg        Config
	MemoRepo   memodomain.Repository
	Dispatcher queue.Dispatcher
	Outbox     *events.Outbox           `optional:"true"`
	Metrics    *metrics.PipelineMetrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	cfg        Config
	memoRepo   memodomain.Repository
	dispatcher queue.Dispatcher
	outbox     *events.Outbox
	metrics    *metrics.PipelineMetrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:        p.Log.Named("enrichment.service"),
		cfg:        p.Cfg,
		memoRepo:   p.MemoRepo,
		dispatcher: p.Dispatcher,
		outbox:     p.Outbox,
		metrics:    p.Metrics,
	}
}

// Backfill replans up to limit pending memos, enqueues every planned task in
// one dispatch call, and marks empty-plan memos processed. The limit is
// clamped to [1, 50].
func (s *Service) Backfill(ctx context.Context, limit int) (BackfillResult, error) {
	if !s.cfg.SyncCompletion {
		return BackfillResult{}, ErrSyncCompletionDisabled
	}
	if limit < backfillMinLimit {
		limit = backfillMinLimit
	}
	if limit > backfillMaxLimit {
		limit = backfillMaxLimit
	}

	memos, err := s.memoRepo.FindPending(ctx, limit)
	if err != nil {
		return BackfillResult{}, err
	}
	s.metrics.SetBacklog(len(memos))
	if len(memos) == 0 {
		return BackfillResult{}, nil
	}

	planned := planner.Plan(memos)

	if len(planned.Tasks) > 0 {
		if err := s.dispatcher.EnqueueMany(ctx, planned.Tasks); err != nil {
			// Nothing was marked processed yet, so the whole sweep can be
			// retried as a unit.
			return BackfillResult{}, err
		}
	}
	if len(planned.EmptyPlan) > 0 {
		if err := s.memoRepo.MarkProcessed(ctx, planned.EmptyPlan, time.Now().UTC()); err != nil {
			return BackfillResult{}, err
		}
	}

	result := BackfillResult{
		Processed: len(planned.EmptyPlan),
		Enqueued:  len(planned.Tasks),
		Skipped:   len(memos) - len(planned.EmptyPlan),
	}
	for i := range memos {
		s.publishEvent(ctx, memos[i].Username, events.EventMemoBackfilled, memos[i].ID)
	}
	s.log.Info("backfill sweep complete",
		zap.Int("selected", len(memos)),
		zap.Int("processed", result.Processed),
		zap.Int("enqueued", result.Enqueued))
	return result, nil
}

// Requeue discards a memo's enrichment artifacts and reprocesses it from the
// planning step. Workers mid-flight on the old task may still write; their
// upserts are overwritten by the new task's result.
func (s *Service) Requeue(ctx context.Context, memoID snowflake.ID) (RequeueResult, error) {
	if !s.cfg.SyncCompletion {
		return RequeueResult{}, ErrSyncCompletionDisabled
	}

	memo, err := s.memoRepo.FindByID(ctx, memoID)
	if err != nil {
		return RequeueResult{}, err
	}
	if strings.TrimSpace(memo.Transcript) == "" {
		return RequeueResult{}, fmt.Errorf("%w: memo has no transcript to replan", memodomain.ErrMemoNotFound)
	}

	if err := s.memoRepo.DeleteEnrichmentRows(ctx, memoID); err != nil {
		return RequeueResult{}, err
	}
	if err := s.memoRepo.ResetProcessed(ctx, memoID); err != nil {
		return RequeueResult{}, err
	}
	memo.EnrichmentProcessedAt = nil

	planned := planner.Plan([]memodomain.Memo{*memo})

	result := RequeueResult{MemoID: memoID}
	if len(planned.Tasks) > 0 {
		if err := s.dispatcher.EnqueueMany(ctx, planned.Tasks); err != nil {
			return RequeueResult{}, err
		}
		result.Enqueued = len(planned.Tasks)
	} else {
		if err := s.memoRepo.MarkProcessed(ctx, []snowflake.ID{memoID}, time.Now().UTC()); err != nil {
			return RequeueResult{}, err
		}
		result.Processed = true
	}

	s.publishEvent(ctx, memo.Username, events.EventMemoRequeued, memoID)
	return result, nil
}

// DeleteMediaItem removes the media row for a memo and marks the memo
// processed so it does not reappear as backlog.
func (s *Service) DeleteMediaItem(ctx context.Context, memoID snowflake.ID) error {
	memo, err := s.memoRepo.FindByID(ctx, memoID)
	if err != nil {
		return err
	}
	if err := s.memoRepo.DeleteMediaItem(ctx, memoID); err != nil {
		return err
	}
	return s.memoRepo.MarkProcessed(ctx, []snowflake.ID{memo.ID}, time.Now().UTC())
}

func (s *Service) publishEvent(ctx context.Context, username, eventType string, memoID snowflake.ID) {
	if s.outbox == nil {
		return
	}
	err := s.outbox.Publish(ctx, events.Event{
		Username:  username,
		Type:      eventType,
		Payload:   map[string]any{"memo_id": memoID.String()},
		DedupeKey: fmt.Sprintf("%s:%s:%d", eventType, memoID.String(), time.Now().UnixNano()),
	})
	if err != nil {
		s.log.Warn("memo event publish failed", zap.Error(err))
	}
}
