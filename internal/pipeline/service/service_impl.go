// Package service implements the capture pipeline orchestrator.
package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/halfnote/halfnote/internal/classifier"
	"github.com/halfnote/halfnote/internal/events"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/observability/metrics"
	"github.com/halfnote/halfnote/internal/planner"
	pipelinedomain "github.com/halfnote/halfnote/internal/pipeline/domain"
	"github.com/halfnote/halfnote/internal/queue"
	quotadomain "github.com/halfnote/halfnote/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Classifier classifier.Classifier
	MemoRepo   memodomain.Repository
	Dispatcher queue.Dispatcher
	Outbox     *events.Outbox           `optional:"true"`
	Metrics    *metrics.PipelineMetrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	classifier classifier.Classifier
	memoRepo   memodomain.Repository
	dispatcher queue.Dispatcher
	outbox     *events.Outbox
	metrics    *metrics.PipelineMetrics
}

func NewService(p ServiceParam) pipelinedomain.Service {
	return &Service{
		log:        p.Log.Named("pipeline.service"),
		genID:      p.GenID,
		classifier: p.Classifier,
		memoRepo:   p.MemoRepo,
		dispatcher: p.Dispatcher,
		outbox:     p.Outbox,
		metrics:    p.Metrics,
	}
}

func (s *Service) Run(ctx context.Context, req pipelinedomain.CaptureRequest) (*pipelinedomain.PipelineResult, error) {
	if err := req.Validate(); err != nil {
		s.metrics.IncCapture("validation")
		return nil, err
	}

	result := &pipelinedomain.PipelineResult{
		TranscriptionID: s.genID.Generate().String(),
	}
	if req.Metadata.InputType == memodomain.InputAudio {
		result.DurationSeconds = quotadomain.EstimateAudioSeconds(int64(len(req.Payload)))
	}

	classified, err := timed(result, "transcribe_classify", func() (*classifier.Result, error) {
		return s.classifier.Process(ctx, classifier.Input{
			InputType:   req.Metadata.InputType,
			Transcript:  req.Transcript,
			Payload:     req.Payload,
			ContentType: req.ContentType,
		})
	})
	if err != nil {
		s.metrics.IncCapture("provider")
		return nil, err
	}
	result.Transcript = classified.Transcript
	result.Language = classified.Language
	result.Provider = classified.Provider

	memos, err := timed(result, "persist", func() ([]memodomain.Memo, error) {
		return s.persistMemos(ctx, req, result, classified.Memos)
	})
	if err != nil {
		s.metrics.IncCapture("persistence")
		return nil, err
	}
	result.Memos = memos

	planned, _ := timed(result, "plan", func() (planner.Planned, error) {
		return planner.Plan(memos), nil
	})
	result.EnrichmentTasks = planned.Tasks

	if len(planned.Tasks) > 0 {
		if _, err := timed(result, "dispatch", func() (struct{}, error) {
			return struct{}{}, s.dispatcher.EnqueueMany(ctx, planned.Tasks)
		}); err != nil {
			// The memos exist; the backfill sweep will replan and enqueue
			// them later. Not a pipeline failure.
			s.log.Error("enrichment dispatch failed, leaving memos pending",
				zap.String("request_id", req.Metadata.RequestID),
				zap.Int("tasks", len(planned.Tasks)),
				zap.Error(err))
		} else {
			for kind, count := range countTaskKinds(planned.Tasks) {
				s.metrics.AddTasksEnqueued(string(kind), count)
			}
		}
	}

	if len(planned.EmptyPlan) > 0 {
		if _, err := timed(result, "mark_processed", func() (struct{}, error) {
			return struct{}{}, s.memoRepo.MarkProcessed(ctx, planned.EmptyPlan, time.Now().UTC())
		}); err != nil {
			s.metrics.IncCapture("persistence")
			return nil, fmt.Errorf("%w: mark processed: %v", pipelinedomain.ErrPersistence, err)
		}
	}
	s.metrics.IncCapture("ok")

	s.log.Info("capture processed",
		zap.String("username", req.Metadata.Username),
		zap.String("client_id", req.Metadata.ClientID),
		zap.String("request_id", req.Metadata.RequestID),
		zap.String("transcription_id", result.TranscriptionID),
		zap.Int("memos", len(memos)),
		zap.Int("tasks", len(planned.Tasks)))
	return result, nil
}

func (s *Service) persistMemos(
	ctx context.Context,
	req pipelinedomain.CaptureRequest,
	result *pipelinedomain.PipelineResult,
	classifications []classifier.MemoClassification,
) ([]memodomain.Memo, error) {
	memos := make([]memodomain.Memo, 0, len(classifications))
	for i, classification := range classifications {
		memo := memodomain.Memo{
			ID:              s.genID.Generate(),
			Username:        req.Metadata.Username,
			Source:          req.Metadata.Source,
			InputType:       req.Metadata.InputType,
			DeviceID:        req.Metadata.DeviceID,
			Transcript:      result.Transcript,
			TranscriptionID: result.TranscriptionID,
			Category:        classification.Category,
			Confidence:      classification.Confidence,
			Extracted:       classification.Extracted,
			Tags:            datatypes.NewJSONSlice(classification.Tags),
			NeedsReview:     classification.NeedsReview,
		}
		if err := s.memoRepo.Insert(ctx, &memo); err != nil {
			return nil, fmt.Errorf("%w: %v", pipelinedomain.ErrPersistence, err)
		}
		s.publishCaptured(ctx, req, &memo, i)
		s.metrics.IncMemo(memo.Category)
		memos = append(memos, memo)
	}
	return memos, nil
}

// publishCaptured records the audit event. Best effort: a full outbox never
// blocks a capture.
func (s *Service) publishCaptured(ctx context.Context, req pipelinedomain.CaptureRequest, memo *memodomain.Memo, index int) {
	if s.outbox == nil {
		return
	}
	dedupe := req.Metadata.RequestID
	if dedupe != "" {
		dedupe = dedupe + ":" + strconv.Itoa(index)
	}
	err := s.outbox.Publish(ctx, events.Event{
		Username: memo.Username,
		Type:     events.EventMemoCaptured,
		Payload: events.MemoCapturedPayload{
			MemoID:          memo.ID.String(),
			TranscriptionID: memo.TranscriptionID,
			RequestID:       req.Metadata.RequestID,
			Category:        memo.Category,
			Source:          memo.Source,
			InputType:       memo.InputType,
		}.ToMap(),
		DedupeKey: dedupe,
	})
	if err != nil {
		s.log.Warn("memo event publish failed", zap.Error(err))
	}
}

func countTaskKinds(tasks []queue.Task) map[queue.TaskKind]int {
	counts := make(map[queue.TaskKind]int, 3)
	for _, task := range tasks {
		counts[task.Kind]++
	}
	return counts
}

func timed[T any](result *pipelinedomain.PipelineResult, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	value, err := fn()
	result.Events = append(result.Events, pipelinedomain.StageEvent{
		Stage:      stage,
		DurationMS: time.Since(start).Milliseconds(),
	})
	return value, err
}
