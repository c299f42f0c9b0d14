package domain

import (
	"testing"
	"time"
)

func TestExtractedMatches(t *testing.T) {
	tests := []struct {
		name      string
		category  string
		extracted Extracted
		want      bool
	}{
		{"media with fields", CategoryMedia, Extracted{Media: &MediaFields{Title: "Dune"}}, true},
		{"media without fields", CategoryMedia, Extracted{}, false},
		{"reminder without fields", CategoryReminder, Extracted{Shopping: &ShoppingFields{}}, false},
		{"note accepts empty union", CategoryNote, Extracted{}, true},
		{"todo accepts empty union", CategoryTodo, Extracted{}, true},
		{"unknown category", "mystery", Extracted{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.extracted.Matches(tt.category); got != tt.want {
				t.Fatalf("Matches(%q) = %v, want %v", tt.category, got, tt.want)
			}
		})
	}
}

func TestReminderHasSignal(t *testing.T) {
	var nilFields *ReminderFields
	if nilFields.HasSignal() {
		t.Fatalf("nil fields carry no signal")
	}
	if (&ReminderFields{Recurrence: "weekly"}).HasSignal() {
		t.Fatalf("recurrence alone is not actionable")
	}
	if !(&ReminderFields{Action: "call"}).HasSignal() {
		t.Fatalf("an action is a signal")
	}
	if !(&ReminderFields{When: "tomorrow"}).HasSignal() {
		t.Fatalf("a temporal phrase is a signal")
	}
}

func TestPendingEnrichment(t *testing.T) {
	now := time.Now().UTC()

	memo := Memo{}
	if !memo.PendingEnrichment() {
		t.Fatalf("fresh memo must be pending")
	}
	memo.EnrichmentProcessedAt = &now
	if memo.PendingEnrichment() {
		t.Fatalf("processed memo is not pending")
	}
	memo = Memo{DeletedAt: &now}
	if memo.PendingEnrichment() {
		t.Fatalf("deleted memo is not pending")
	}
}
