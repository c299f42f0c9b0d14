package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrMemoNotFound      = errors.New("memo_not_found")
	ErrMediaItemNotFound = errors.New("media_item_not_found")
)

// Repository is the memo store gateway. Writes to dependent enrichment rows
// are upserts keyed by memo_id so at-least-once task delivery stays safe.
type Repository interface {
	Insert(ctx context.Context, memo *Memo) error
	FindByID(ctx context.Context, id snowflake.ID) (*Memo, error)

	// FindPending returns up to limit memos where enrichment_processed_at
	// and deleted_at are both null, oldest first.
	FindPending(ctx context.Context, limit int) ([]Memo, error)

	// MarkProcessed sets enrichment_processed_at for the given memos. Memos
	// already processed are left untouched.
	MarkProcessed(ctx context.Context, ids []snowflake.ID, at time.Time) error

	// ResetProcessed clears enrichment_processed_at ahead of a requeue.
	ResetProcessed(ctx context.Context, id snowflake.ID) error

	// DeleteEnrichmentRows removes all dependent media, reminder, and
	// shopping rows for the memo.
	DeleteEnrichmentRows(ctx context.Context, memoID snowflake.ID) error

	DeleteMediaItem(ctx context.Context, memoID snowflake.ID) error

	UpsertMediaItem(ctx context.Context, item *MediaItem) error
	UpsertReminderItem(ctx context.Context, item *ReminderItem) error
	ReplaceShoppingItems(ctx context.Context, memoID snowflake.ID, items []ShoppingListItem) error
}
