package domain_test

import (
	"testing"
	"time"

	"gigmarket/internal/domain"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   domain.JobStatus
		wantOK bool
	}{
		{"draft", domain.StatusDraft, true},
		{"open", domain.StatusOpen, true},
		{"in-review", domain.StatusInReview, true},
		{"filled", domain.StatusFilled, true},
		{"completed", domain.StatusCompleted, true},
		{"archived", "", false},
		{"", "", false},
		{"Open", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := domain.ParseStatus(tc.in)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("ParseStatus(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	for _, st := range domain.AllStatuses {
		if got := domain.NormalizeStatus(string(st)); got != st {
			t.Errorf("NormalizeStatus(%q) = %q", st, got)
		}
	}
	for _, in := range []string{"", "archived", "DRAFT", " open"} {
		if got := domain.NormalizeStatus(in); got != domain.StatusOpen {
			t.Errorf("NormalizeStatus(%q) = %q; want open", in, got)
		}
	}
}

func TestStatusNext(t *testing.T) {
	chain := map[domain.JobStatus]domain.JobStatus{
		domain.StatusDraft:    domain.StatusOpen,
		domain.StatusOpen:     domain.StatusInReview,
		domain.StatusInReview: domain.StatusFilled,
		domain.StatusFilled:   domain.StatusCompleted,
	}
	for from, want := range chain {
		got, ok := from.Next()
		if !ok || got != want {
			t.Errorf("%q.Next() = %q, %v; want %q", from, got, ok, want)
		}
	}
	if next, ok := domain.StatusCompleted.Next(); ok {
		t.Errorf("completed should be terminal, got %q", next)
	}
}

func TestJobPatchApply(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	city := "Halifax"
	rate := 22.5
	j := domain.Job{Title: "Cook", Location: domain.Location{City: "TBD", Province: "NS"}}

	domain.JobPatch{City: &city, HourlyRate: &rate, StartTime: &start}.Apply(&j)

	if j.Title != "Cook" {
		t.Errorf("title changed: %q", j.Title)
	}
	if j.Location.City != "Halifax" || j.Location.Province != "NS" {
		t.Errorf("unexpected location: %+v", j.Location)
	}
	if j.HourlyRate != 22.5 {
		t.Errorf("expected rate 22.5, got %v", j.HourlyRate)
	}
	if j.StartTime == nil || !j.StartTime.Equal(start) {
		t.Errorf("expected start %v, got %v", start, j.StartTime)
	}
}
