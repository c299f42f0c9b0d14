package enrichment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/observability/metrics"
	"github.com/halfnote/halfnote/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MediaResolver looks up an external catalog ID for a media mention. The
// real TMDb/IGDB integrations live outside this repo; the default resolver
// leaves the ID unresolved.
type MediaResolver interface {
	Resolve(ctx context.Context, title, mediaType string, releaseYear int) (string, error)
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(context.Context, string, string, int) (string, error) {
	return "", nil
}

func NewPassthroughResolver() MediaResolver { return passthroughResolver{} }

type WorkerParam struct {
	fx.In

	Log      *zap.Logger
	Cfg      Config
	GenID    *snowflake.Node
	MemoRepo memodomain.Repository
	Consumer queue.Consumer
	Resolver MediaResolver
	Metrics  *metrics.PipelineMetrics `optional:"true"`
}

// Worker consumes enrichment tasks. Tasks are delivered at least once, so
// every write below is an upsert keyed by memo ID.
type Worker struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	memoRepo memodomain.Repository
	consumer queue.Consumer
	resolver MediaResolver
	metrics  *metrics.PipelineMetrics
}

func NewWorker(p WorkerParam) *Worker {
	return &Worker{
		log:      p.Log.Named("enrichment.worker"),
		cfg:      p.Cfg.withDefaults(),
		genID:    p.GenID,
		memoRepo: p.MemoRepo,
		consumer: p.Consumer,
		resolver: p.Resolver,
		metrics:  p.Metrics,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("enrichment task failed", zap.Error(err))
		}
	}
}

// RunOnce pops and handles a single task. A timeout with nothing queued is
// not an error.
func (w *Worker) RunOnce(ctx context.Context) error {
	task, err := w.consumer.Pop(ctx, w.cfg.PollTimeout)
	if err != nil || task == nil {
		return err
	}
	return w.Handle(ctx, task)
}

func (w *Worker) Handle(ctx context.Context, task *queue.Task) error {
	memo, err := w.memoRepo.FindByID(ctx, task.MemoID)
	if errors.Is(err, memodomain.ErrMemoNotFound) {
		w.log.Info("dropping task for unknown memo", zap.Int64("memo_id", int64(task.MemoID)))
		w.metrics.IncTaskProcessed(string(task.Kind), "dropped")
		return nil
	}
	if err != nil {
		w.metrics.IncTaskProcessed(string(task.Kind), "failed")
		return err
	}
	if memo.DeletedAt != nil {
		w.log.Info("dropping task for deleted memo", zap.Int64("memo_id", int64(task.MemoID)))
		w.metrics.IncTaskProcessed(string(task.Kind), "dropped")
		return nil
	}

	switch task.Kind {
	case queue.TaskMediaLookup:
		err = w.handleMediaLookup(ctx, memo)
	case queue.TaskReminderExtract:
		err = w.handleReminderExtract(ctx, memo)
	case queue.TaskShoppingExtract:
		err = w.handleShoppingExtract(ctx, memo)
	default:
		w.log.Warn("dropping task of unknown kind", zap.String("kind", string(task.Kind)))
		w.metrics.IncTaskProcessed(string(task.Kind), "dropped")
		return nil
	}
	if err != nil {
		w.metrics.IncTaskProcessed(string(task.Kind), "failed")
		return err
	}

	if err := w.memoRepo.MarkProcessed(ctx, []snowflake.ID{memo.ID}, time.Now().UTC()); err != nil {
		w.metrics.IncTaskProcessed(string(task.Kind), "failed")
		return err
	}
	w.metrics.IncTaskProcessed(string(task.Kind), "done")
	return nil
}

func (w *Worker) handleMediaLookup(ctx context.Context, memo *memodomain.Memo) error {
	fields := memo.Extracted.Media
	if fields == nil {
		return nil
	}
	item := &memodomain.MediaItem{
		ID:        w.genID.Generate(),
		MemoID:    memo.ID,
		Title:     fields.Title,
		MediaType: fields.MediaType,
	}
	if fields.ReleaseYear > 0 {
		year := fields.ReleaseYear
		item.ReleaseYear = &year
	}
	externalID, err := w.resolver.Resolve(ctx, fields.Title, fields.MediaType, fields.ReleaseYear)
	if err != nil {
		w.log.Warn("media lookup unresolved", zap.String("title", fields.Title), zap.Error(err))
	} else if externalID != "" {
		item.ExternalID = &externalID
	}
	return w.memoRepo.UpsertMediaItem(ctx, item)
}

func (w *Worker) handleReminderExtract(ctx context.Context, memo *memodomain.Memo) error {
	fields := memo.Extracted.Reminder
	if fields == nil {
		return nil
	}
	item := &memodomain.ReminderItem{
		ID:     w.genID.Generate(),
		MemoID: memo.ID,
		Action: fields.Action,
		DueAt:  parseWhen(fields.When),
	}
	if fields.Recurrence != "" {
		recurrence := fields.Recurrence
		item.Recurrence = &recurrence
	}
	return w.memoRepo.UpsertReminderItem(ctx, item)
}

func (w *Worker) handleShoppingExtract(ctx context.Context, memo *memodomain.Memo) error {
	fields := memo.Extracted.Shopping
	if fields == nil {
		return nil
	}
	items := make([]memodomain.ShoppingListItem, 0, len(fields.Items))
	for _, entry := range fields.Items {
		item := memodomain.ShoppingListItem{
			ID:     w.genID.Generate(),
			MemoID: memo.ID,
			Name:   entry.Name,
		}
		if entry.Quantity != "" {
			quantity := entry.Quantity
			item.Quantity = &quantity
		}
		items = append(items, item)
	}
	return w.memoRepo.ReplaceShoppingItems(ctx, memo.ID, items)
}

// parseWhen handles the explicit timestamp formats the classifier sometimes
// emits. Natural-language phrases stay unresolved; the memo keeps the raw
// phrase in its extracted fields either way.
func parseWhen(when string) *time.Time {
	when = strings.TrimSpace(when)
	if when == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if parsed, err := time.Parse(layout, when); err == nil {
			return &parsed
		}
	}
	return nil
}
