package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/memo/repository"
	"github.com/halfnote/halfnote/internal/queue"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingDispatcher struct {
	tasks []queue.Task
	calls int
	err   error
}

func (d *recordingDispatcher) EnqueueMany(ctx context.Context, tasks []queue.Task) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, tasks...)
	return nil
}

func TestBackfillRequiresSyncCompletion(t *testing.T) {
	repo, _ := setupEnrichmentTestDB(t, "enrich_disabled")
	svc := newTestEnrichmentService(repo, &recordingDispatcher{}, false)

	if _, err := svc.Backfill(context.Background(), 10); !errors.Is(err, ErrSyncCompletionDisabled) {
		t.Fatalf("expected ErrSyncCompletionDisabled, got %v", err)
	}
	if _, err := svc.Requeue(context.Background(), snowflake.ID(1)); !errors.Is(err, ErrSyncCompletionDisabled) {
		t.Fatalf("expected ErrSyncCompletionDisabled, got %v", err)
	}
}

func TestBackfillClampsLimit(t *testing.T) {
	repo, db := setupEnrichmentTestDB(t, "enrich_clamp")
	svc := newTestEnrichmentService(repo, &recordingDispatcher{}, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		insertTestMemo(t, db, pendingMemo(memodomain.CategoryNote, memodomain.Extracted{}))
	}

	result, err := svc.Backfill(ctx, 0)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("limit 0 must clamp to 1, processed %d", result.Processed)
	}

	result, err = svc.Backfill(ctx, 1000)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("expected the remaining 2 memos, processed %d", result.Processed)
	}
}

func TestBackfillLeavesNoOrphans(t *testing.T) {
	repo, db := setupEnrichmentTestDB(t, "enrich_orphans")
	dispatcher := &recordingDispatcher{}
	svc := newTestEnrichmentService(repo, dispatcher, true)
	ctx := context.Background()

	shopping := pendingMemo(memodomain.CategoryShopping, memodomain.Extracted{
		Shopping: &memodomain.ShoppingFields{Items: []memodomain.ShoppingEntry{{Name: "milk"}}},
	})
	note := pendingMemo(memodomain.CategoryNote, memodomain.Extracted{})
	insertTestMemo(t, db, shopping)
	insertTestMemo(t, db, note)

	result, err := svc.Backfill(ctx, 10)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if result.Enqueued != 1 || result.Processed != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("the whole batch must go out in one dispatch call, got %d", dispatcher.calls)
	}

	memos, err := repo.FindPending(ctx, 10)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if len(memos) != 1 || memos[0].ID != shopping.ID {
		t.Fatalf("only the task-producing memo should remain pending, got %d", len(memos))
	}
}

func TestBackfillDispatchFailureIsRetryable(t *testing.T) {
	repo, db := setupEnrichmentTestDB(t, "enrich_retry")
	dispatcher := &recordingDispatcher{err: errors.New("redis down")}
	svc := newTestEnrichmentService(repo, dispatcher, true)
	ctx := context.Background()

	insertTestMemo(t, db, pendingMemo(memodomain.CategoryShopping, memodomain.Extracted{
		Shopping: &memodomain.ShoppingFields{Items: []memodomain.ShoppingEntry{{Name: "milk"}}},
	}))
	insertTestMemo(t, db, pendingMemo(memodomain.CategoryNote, memodomain.Extracted{}))

	if _, err := svc.Backfill(ctx, 10); err == nil {
		t.Fatalf("expected dispatch failure to surface")
	}

	memos, err := repo.FindPending(ctx, 10)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if len(memos) != 2 {
		t.Fatalf("a failed sweep must not mark anything processed, got %d pending", len(memos))
	}
}

func TestRequeueDiscardsPriorArtifacts(t *testing.T) {
	repo, db := setupEnrichmentTestDB(t, "enrich_requeue")
	dispatcher := &recordingDispatcher{}
	svc := newTestEnrichmentService(repo, dispatcher, true)
	ctx := context.Background()

	memo := pendingMemo(memodomain.CategoryShopping, memodomain.Extracted{
		Shopping: &memodomain.ShoppingFields{Items: []memodomain.ShoppingEntry{{Name: "milk"}}},
	})
	processedAt := time.Now().UTC()
	memo.EnrichmentProcessedAt = &processedAt
	insertTestMemo(t, db, memo)
	if err := repo.ReplaceShoppingItems(ctx, memo.ID, []memodomain.ShoppingListItem{
		{ID: snowflake.ID(900), MemoID: memo.ID, Name: "stale milk"},
	}); err != nil {
		t.Fatalf("seed shopping rows: %v", err)
	}

	result, err := svc.Requeue(ctx, memo.ID)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if result.Enqueued != 1 || result.Processed {
		t.Fatalf("unexpected requeue result: %+v", result)
	}

	var count int64
	db.Model(&memodomain.ShoppingListItem{}).Where("memo_id = ?", memo.ID).Count(&count)
	if count != 0 {
		t.Fatalf("old shopping rows must be discarded, found %d", count)
	}
	reloaded, err := repo.FindByID(ctx, memo.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.EnrichmentProcessedAt != nil {
		t.Fatalf("requeued memo must be pending again")
	}
}

func TestRequeueEmptyTranscript(t *testing.T) {
	repo, db := setupEnrichmentTestDB(t, "enrich_requeue_empty")
	svc := newTestEnrichmentService(repo, &recordingDispatcher{}, true)

	memo := pendingMemo(memodomain.CategoryNote, memodomain.Extracted{})
	memo.Transcript = "   "
	insertTestMemo(t, db, memo)

	if _, err := svc.Requeue(context.Background(), memo.ID); !errors.Is(err, memodomain.ErrMemoNotFound) {
		t.Fatalf("expected ErrMemoNotFound, got %v", err)
	}
}

func TestRequeueUnknownMemo(t *testing.T) {
	repo, _ := setupEnrichmentTestDB(t, "enrich_requeue_unknown")
	svc := newTestEnrichmentService(repo, &recordingDispatcher{}, true)

	if _, err := svc.Requeue(context.Background(), snowflake.ID(777777)); !errors.Is(err, memodomain.ErrMemoNotFound) {
		t.Fatalf("expected ErrMemoNotFound, got %v", err)
	}
}

func TestDeleteMediaItemMarksProcessed(t *testing.T) {
	repo, db := setupEnrichmentTestDB(t, "enrich_delete_media")
	svc := newTestEnrichmentService(repo, &recordingDispatcher{}, true)
	ctx := context.Background()

	memo := pendingMemo(memodomain.CategoryMedia, memodomain.Extracted{
		Media: &memodomain.MediaFields{Title: "Dune", MediaType: "movie"},
	})
	insertTestMemo(t, db, memo)
	if err := repo.UpsertMediaItem(ctx, &memodomain.MediaItem{ID: snowflake.ID(901), MemoID: memo.ID, Title: "Dune", MediaType: "movie"}); err != nil {
		t.Fatalf("seed media row: %v", err)
	}

	if err := svc.DeleteMediaItem(ctx, memo.ID); err != nil {
		t.Fatalf("delete media item: %v", err)
	}

	var count int64
	db.Model(&memodomain.MediaItem{}).Where("memo_id = ?", memo.ID).Count(&count)
	if count != 0 {
		t.Fatalf("media row must be gone")
	}
	reloaded, err := repo.FindByID(ctx, memo.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.EnrichmentProcessedAt == nil {
		t.Fatalf("memo must not reappear as backlog after media deletion")
	}
}

func newTestEnrichmentService(repo memodomain.Repository, dispatcher queue.Dispatcher, syncCompletion bool) *Service {
	return NewService(ServiceParam{
		Log:        zap.NewNop(),
		Cfg:        Config{SyncCompletion: syncCompletion},
		MemoRepo:   repo,
		Dispatcher: dispatcher,
	})
}

var enrichMemoSeq int64 = 9000

func pendingMemo(category string, extracted memodomain.Extracted) memodomain.Memo {
	enrichMemoSeq++
	return memodomain.Memo{
		ID:              snowflake.ID(enrichMemoSeq),
		Username:        "alice",
		Source:          memodomain.SourceApp,
		InputType:       memodomain.InputText,
		Transcript:      "buy milk",
		TranscriptionID: "txn",
		Category:        category,
		Extracted:       extracted,
		CreatedAt:       time.Date(2026, 8, 1, 0, 0, int(enrichMemoSeq%3600), 0, time.UTC),
	}
}

func insertTestMemo(t *testing.T, db *gorm.DB, memo memodomain.Memo) {
	t.Helper()
	if err := db.Create(&memo).Error; err != nil {
		t.Fatalf("insert memo: %v", err)
	}
}

func setupEnrichmentTestDB(t *testing.T, name string) (memodomain.Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memos (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			source TEXT NOT NULL,
			input_type TEXT NOT NULL,
			device_id TEXT,
			transcript TEXT NOT NULL,
			transcription_id TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			extracted TEXT,
			tags TEXT,
			starred BOOLEAN NOT NULL DEFAULT false,
			needs_review BOOLEAN NOT NULL DEFAULT false,
			enrichment_processed_at DATETIME,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS media_items (
			id BIGINT PRIMARY KEY,
			memo_id BIGINT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			media_type TEXT NOT NULL,
			external_id TEXT,
			release_year INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_items (
			id BIGINT PRIMARY KEY,
			memo_id BIGINT NOT NULL UNIQUE,
			action TEXT NOT NULL,
			due_at DATETIME,
			recurrence TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS shopping_list_items (
			id BIGINT PRIMARY KEY,
			memo_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			quantity TEXT,
			grouping TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return repository.Provide(db), db
}
