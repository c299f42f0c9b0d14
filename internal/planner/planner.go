// Package planner decides which enrichment tasks a classified memo needs.
// Plan is pure: identical memo state always yields the identical task set.
package planner

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/queue"
)

const excerptLimit = 280

// Planned is the outcome of planning a batch of memos. EmptyPlan lists memos
// that need no follow-up so the caller can mark them processed immediately.
type Planned struct {
	Tasks     []queue.Task
	EmptyPlan []snowflake.ID
}

// Plan maps each memo's category and extracted fields onto its task set.
// Only media, reminder, and shopping memos ever produce tasks; soft-deleted
// memos never do.
func Plan(memos []memodomain.Memo) Planned {
	var planned Planned
	for i := range memos {
		memo := &memos[i]
		task, ok := planOne(memo)
		if !ok {
			planned.EmptyPlan = append(planned.EmptyPlan, memo.ID)
			continue
		}
		planned.Tasks = append(planned.Tasks, task)
	}
	return planned
}

func planOne(memo *memodomain.Memo) (queue.Task, bool) {
	if memo.DeletedAt != nil {
		return queue.Task{}, false
	}

	switch memo.Category {
	case memodomain.CategoryMedia:
		fields := memo.Extracted.Media
		if fields == nil || strings.TrimSpace(fields.ExternalID) != "" {
			// Already resolved upstream, nothing left to look up.
			return queue.Task{}, false
		}
		return task(memo, queue.TaskMediaLookup, map[string]any{
			"title":        fields.Title,
			"media_type":   fields.MediaType,
			"release_year": fields.ReleaseYear,
		}), true

	case memodomain.CategoryReminder:
		fields := memo.Extracted.Reminder
		if !fields.HasSignal() {
			return queue.Task{}, false
		}
		return task(memo, queue.TaskReminderExtract, map[string]any{
			"action":     fields.Action,
			"when":       fields.When,
			"recurrence": fields.Recurrence,
		}), true

	case memodomain.CategoryShopping:
		fields := memo.Extracted.Shopping
		if fields == nil || len(fields.Items) == 0 {
			return queue.Task{}, false
		}
		items := make([]map[string]any, 0, len(fields.Items))
		for _, item := range fields.Items {
			items = append(items, map[string]any{
				"name":     item.Name,
				"quantity": item.Quantity,
			})
		}
		return task(memo, queue.TaskShoppingExtract, map[string]any{
			"items": items,
		}), true

	default:
		// journal, tarot, idea, todo, note, and anything unrecognized are
		// self-contained after classification.
		return queue.Task{}, false
	}
}

func task(memo *memodomain.Memo, kind queue.TaskKind, payload map[string]any) queue.Task {
	payload["excerpt"] = excerpt(memo.Transcript)
	return queue.Task{
		Kind:            kind,
		MemoID:          memo.ID,
		TranscriptionID: memo.TranscriptionID,
		Payload:         payload,
	}
}

func excerpt(transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if len(transcript) <= excerptLimit {
		return transcript
	}
	return transcript[:excerptLimit]
}
