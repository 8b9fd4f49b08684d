package app_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	crdb "github.com/cockroachdb/errors"

	"gigmarket/internal/adapter/memory"
	"gigmarket/internal/app"
	"gigmarket/internal/domain"
)

const owner = int64(7)

func completeFields() domain.JobFields {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(6 * time.Hour)
	return domain.JobFields{
		Title:      "Line Cook",
		Type:       "Kitchen",
		HourlyRate: 21,
		StartTime:  &start,
		EndTime:    &end,
		Location:   domain.Location{City: "Halifax", Province: "NS", PostalCode: "B3H 1A1"},
	}
}

func newJobService() (*app.JobService, *memory.DB) {
	db := memory.New()
	return app.NewJobService(db, nil), db
}

func TestCreateJob_StatusDefaults(t *testing.T) {
	tests := []struct {
		requested string
		want      domain.JobStatus
	}{
		{"", domain.StatusOpen},
		{"draft", domain.StatusDraft},
		{"open", domain.StatusOpen},
		{"in-review", domain.StatusInReview},
		{"filled", domain.StatusFilled},
		{"completed", domain.StatusCompleted},
		{"archived", domain.StatusOpen},
		{"DRAFT", domain.StatusOpen},
	}
	svc, _ := newJobService()
	for _, tc := range tests {
		t.Run(tc.requested, func(t *testing.T) {
			job, err := svc.CreateJob(context.Background(), owner, domain.JobFields{Title: "Cook"}, tc.requested)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if job.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, job.Status)
			}
		})
	}
}

func TestCreateJob_AppliesNoPreconditions(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	f := completeFields()
	early := f.StartTime.Add(-time.Hour)
	f.EndTime = &early

	job, err := svc.CreateJob(ctx, owner, f, "open")
	if err != nil {
		t.Fatalf("create should accept any fields, got %v", err)
	}
	if job.Status != domain.StatusOpen {
		t.Fatalf("expected open, got %s", job.Status)
	}

	// Edits are still validated.
	title := "Prep Cook"
	if _, err := svc.UpdateFields(ctx, owner, job.ID, domain.JobPatch{Title: &title}); !errors.Is(err, app.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob on edit, got %v", err)
	}
}

func TestSetStatus_InvalidLeavesJobUnchanged(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	job, _ := svc.CreateJob(ctx, owner, completeFields(), "in-review")

	_, err := svc.SetStatus(ctx, owner, job.ID, "archived")
	if !errors.Is(err, app.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	hint := crdb.FlattenHints(err)
	for _, st := range domain.AllStatuses {
		if !strings.Contains(hint, string(st)) {
			t.Errorf("hint %q does not list %s", hint, st)
		}
	}

	got, _ := svc.GetJob(ctx, job.ID)
	if got.Status != domain.StatusInReview {
		t.Fatalf("status changed to %s", got.Status)
	}
}

func TestSetStatus_JumpsToAnyState(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	job, _ := svc.CreateJob(ctx, owner, domain.JobFields{Title: "Cook"}, "draft")

	updated, err := svc.SetStatus(ctx, owner, job.ID, "completed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	updated, err = svc.SetStatus(ctx, owner, job.ID, "open")
	if err != nil || updated.Status != domain.StatusOpen {
		t.Fatalf("expected backwards jump to open, got %v %v", updated, err)
	}
}

func TestSetStatus_NotFoundAndForbidden(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	job, _ := svc.CreateJob(ctx, owner, domain.JobFields{Title: "Cook"}, "open")

	if _, err := svc.SetStatus(ctx, owner, 999, "filled"); !errors.Is(err, app.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := svc.SetStatus(ctx, owner+1, job.ID, "filled"); !errors.Is(err, app.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

// racingRepo changes the stored status between the service's read and write.
type racingRepo struct {
	*memory.DB
}

func (r racingRepo) UpdateJobStatus(ctx context.Context, id int64, expected, next domain.JobStatus) (bool, error) {
	if _, err := r.DB.UpdateJobStatus(ctx, id, expected, domain.StatusFilled); err != nil {
		return false, err
	}
	return r.DB.UpdateJobStatus(ctx, id, expected, next)
}

func TestSetStatus_ConcurrentWriterDetected(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	id, _ := db.CreateJob(ctx, &domain.Job{OwnerID: owner, Title: "Cook", Status: domain.StatusOpen})

	svc := app.NewJobService(racingRepo{db}, nil)
	_, err := svc.SetStatus(ctx, owner, id, "in-review")
	if !errors.Is(err, app.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	job, _ := db.GetJob(ctx, id)
	if job.Status != domain.StatusFilled {
		t.Fatalf("expected the other writer's status to survive, got %s", job.Status)
	}
}

func TestAdvanceStatus_WalksChain(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	job, _ := svc.CreateJob(ctx, owner, completeFields(), "draft")

	want := []domain.JobStatus{domain.StatusOpen, domain.StatusInReview, domain.StatusFilled, domain.StatusCompleted}
	for _, w := range want {
		got, err := svc.AdvanceStatus(ctx, owner, job.ID)
		if err != nil {
			t.Fatalf("advance to %s: %v", w, err)
		}
		if got.Status != w {
			t.Fatalf("expected %s, got %s", w, got.Status)
		}
	}

	if _, err := svc.AdvanceStatus(ctx, owner, job.ID); !errors.Is(err, app.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition at completed, got %v", err)
	}
}

func TestAdvanceStatus_DraftNeedsRequiredFields(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	f := completeFields()
	f.Location.City = ""
	job, _ := svc.CreateJob(ctx, owner, f, "draft")

	_, err := svc.AdvanceStatus(ctx, owner, job.ID)
	if !errors.Is(err, app.ErrNotPublishable) {
		t.Fatalf("expected ErrNotPublishable, got %v", err)
	}
	got, _ := svc.GetJob(ctx, job.ID)
	if got.Status != domain.StatusDraft {
		t.Fatalf("expected draft to remain, got %s", got.Status)
	}
}

func TestCanPublish(t *testing.T) {
	full := completeFields()
	base := domain.Job{
		Title: full.Title, Type: full.Type, HourlyRate: full.HourlyRate,
		StartTime: full.StartTime, EndTime: full.EndTime, Location: full.Location,
	}

	tests := []struct {
		name   string
		mutate func(j *domain.Job)
		want   []string
	}{
		{"complete", func(j *domain.Job) {}, nil},
		{"city and postal code", func(j *domain.Job) {
			j.Location.City = ""
			j.Location.PostalCode = ""
		}, []string{"City", "Postal Code"}},
		{"placeholders", func(j *domain.Job) {
			j.Title = domain.DraftPlaceholder
			j.Location.Province = " tbd "
		}, []string{"Title", "Province"}},
		{"rate and times", func(j *domain.Job) {
			j.HourlyRate = 0
			j.StartTime = nil
			j.EndTime = &time.Time{}
		}, []string{"Hourly Rate", "Start Time", "End Time"}},
		{"everything", func(j *domain.Job) { *j = domain.Job{} }, []string{
			"Title", "Type", "Hourly Rate", "Start Time", "End Time", "City", "Province", "Postal Code",
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			j := base
			tc.mutate(&j)
			got := app.CanPublish(&j)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("CanPublish = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestUpdateFields_CoercesInvalidStatus(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	job, _ := svc.CreateJob(ctx, owner, domain.JobFields{Title: "Cook"}, "filled")

	bogus := "archived"
	title := "Head Cook"
	updated, err := svc.UpdateFields(ctx, owner, job.ID, domain.JobPatch{Title: &title, Status: &bogus})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.StatusOpen {
		t.Errorf("expected coerced open, got %s", updated.Status)
	}
	if updated.Title != "Head Cook" {
		t.Errorf("expected new title, got %s", updated.Title)
	}

	// No status in the patch leaves it alone.
	desc := "nights"
	updated, _ = svc.UpdateFields(ctx, owner, job.ID, domain.JobPatch{Description: &desc})
	if updated.Status != domain.StatusOpen || updated.Description != "nights" {
		t.Errorf("unexpected job after edit: %+v", updated)
	}
}

// statusRaceRepo lets another writer change the status just before a field
// edit is written.
type statusRaceRepo struct {
	*memory.DB
}

func (r statusRaceRepo) UpdateJobFields(ctx context.Context, job *domain.Job) error {
	if _, err := r.DB.UpdateJobStatus(ctx, job.ID, domain.StatusOpen, domain.StatusFilled); err != nil {
		return err
	}
	return r.DB.UpdateJobFields(ctx, job)
}

func TestUpdateFields_KeepsConcurrentStatusChange(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	id, _ := db.CreateJob(ctx, &domain.Job{OwnerID: owner, Title: "Cook", Status: domain.StatusOpen})

	svc := app.NewJobService(statusRaceRepo{db}, nil)
	title := "Chef"
	if _, err := svc.UpdateFields(ctx, owner, id, domain.JobPatch{Title: &title}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job, _ := db.GetJob(ctx, id)
	if job.Status != domain.StatusFilled {
		t.Fatalf("concurrent status change lost: got %s, want filled", job.Status)
	}
	if job.Title != "Chef" {
		t.Fatalf("expected title edit, got %s", job.Title)
	}
}

func TestUpdateFields_StatusConflict(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	id, _ := db.CreateJob(ctx, &domain.Job{OwnerID: owner, Title: "Cook", Status: domain.StatusOpen})

	svc := app.NewJobService(racingRepo{db}, nil)
	title := "Chef"
	next := "in-review"
	_, err := svc.UpdateFields(ctx, owner, id, domain.JobPatch{Title: &title, Status: &next})
	if !errors.Is(err, app.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	job, _ := db.GetJob(ctx, id)
	if job.Status != domain.StatusFilled || job.Title != "Cook" {
		t.Fatalf("expected the other writer's status and no field change, got %+v", job)
	}
}

func TestCheckPublish(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	f := completeFields()
	f.Location.PostalCode = domain.DraftPlaceholder
	draft, _ := svc.CreateJob(ctx, owner, f, "draft")
	complete, _ := svc.CreateJob(ctx, owner, completeFields(), "draft")

	tests := []struct {
		name   string
		userID int64
		jobID  int64
		status string
		want   error
	}{
		{"incomplete draft", owner, draft.ID, "open", app.ErrNotPublishable},
		{"non-owner sees forbidden first", owner + 1, draft.ID, "open", app.ErrForbidden},
		{"missing job", owner, 9999, "open", app.ErrJobNotFound},
		{"complete draft", owner, complete.ID, "open", nil},
		{"other target", owner, draft.ID, "filled", nil},
		{"invalid target left to SetStatus", owner + 1, draft.ID, "archived", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.CheckPublish(ctx, tc.userID, tc.jobID, tc.status)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeleteJob_AnyStatus(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	for _, st := range domain.AllStatuses {
		job, _ := svc.CreateJob(ctx, owner, domain.JobFields{Title: "Cook"}, string(st))
		if err := svc.DeleteJob(ctx, owner, job.ID); err != nil {
			t.Fatalf("delete %s job: %v", st, err)
		}
		if _, err := svc.GetJob(ctx, job.ID); !errors.Is(err, app.ErrJobNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
	}
}

func TestListOpen(t *testing.T) {
	svc, _ := newJobService()
	ctx := context.Background()
	_, _ = svc.CreateJob(ctx, owner, domain.JobFields{Title: "A"}, "open")
	_, _ = svc.CreateJob(ctx, owner, domain.JobFields{Title: "B"}, "draft")
	_, _ = svc.CreateJob(ctx, owner+1, domain.JobFields{Title: "C"}, "")

	open, err := svc.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open jobs, got %d", len(open))
	}
	mine, _ := svc.ListMine(ctx, owner)
	if len(mine) != 2 {
		t.Fatalf("expected 2 jobs for owner, got %d", len(mine))
	}
}
