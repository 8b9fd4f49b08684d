package app

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"gigmarket/internal/domain"
	"gigmarket/internal/logger"
)

var (
	// ErrInvalidStatus indicates a status value outside the lifecycle set.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrJobNotFound indicates that the job does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrForbidden indicates that the caller does not own the job.
	ErrForbidden = errors.New("forbidden")
	// ErrStatusConflict indicates the status changed between read and write.
	ErrStatusConflict = errors.New("job status was changed concurrently")
	// ErrInvalidTransition indicates the job has no next status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotPublishable indicates required fields are missing for publishing.
	ErrNotPublishable = errors.New("job is missing required fields")
	// ErrInvalidJob indicates malformed job input.
	ErrInvalidJob = errors.New("invalid job")
)

// JobService implements the job lifecycle: creation, status changes,
// field edits, publish checks and deletion.
type JobService struct {
	repo domain.JobRepository
	log  *zap.SugaredLogger
}

// NewJobService creates a JobService backed by the given repository.
func NewJobService(repo domain.JobRepository, log *zap.SugaredLogger) *JobService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &JobService{repo: repo, log: log.Named("jobs")}
}

// CreateJob stores a new job owned by ownerID. An unrecognised status,
// including an empty one, becomes open. No publish check is applied.
func (s *JobService) CreateJob(ctx context.Context, ownerID int64, fields domain.JobFields, requestedStatus string) (*domain.Job, error) {
	job := &domain.Job{
		OwnerID:     ownerID,
		Title:       fields.Title,
		Type:        fields.Type,
		Description: fields.Description,
		HourlyRate:  fields.HourlyRate,
		StartTime:   fields.StartTime,
		EndTime:     fields.EndTime,
		Location:    fields.Location,
		Status:      domain.NormalizeStatus(requestedStatus),
	}
	id, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, errors.Wrap(err, "create job")
	}
	s.log.Infow("job created", logger.FieldJobID, id, logger.FieldUserID, ownerID, "status", job.Status)
	return s.GetJob(ctx, id)
}

// GetJob returns a job by id.
func (s *JobService) GetJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "get job %d", jobID)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status == "" {
		job.Status = domain.StatusOpen
	}
	return job, nil
}

// ListMine returns the jobs owned by userID.
func (s *JobService) ListMine(ctx context.Context, userID int64) ([]domain.Job, error) {
	return s.repo.ListJobsByOwner(ctx, userID)
}

// ListOpen returns up to limit jobs currently accepting applicants.
func (s *JobService) ListOpen(ctx context.Context, limit int) ([]domain.Job, error) {
	return s.repo.ListJobsByStatus(ctx, domain.StatusOpen, limit)
}

// SetStatus moves a job directly to newStatus. Any valid status is accepted
// regardless of the current one; an invalid value fails with ErrInvalidStatus
// and leaves the job untouched.
func (s *JobService) SetStatus(ctx context.Context, userID, jobID int64, newStatus string) (*domain.Job, error) {
	next, ok := domain.ParseStatus(newStatus)
	if !ok {
		return nil, invalidStatus(newStatus)
	}
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.swapStatus(ctx, job, next); err != nil {
		return nil, err
	}
	return job, nil
}

// CheckPublish refuses moving an owned draft to open while CanPublish
// reports missing fields. Other targets, including invalid ones, pass.
func (s *JobService) CheckPublish(ctx context.Context, userID, jobID int64, newStatus string) error {
	if next, ok := domain.ParseStatus(newStatus); !ok || next != domain.StatusOpen {
		return nil
	}
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusDraft {
		return nil
	}
	if missing := CanPublish(job); len(missing) > 0 {
		return NotPublishable(missing)
	}
	return nil
}

// AdvanceStatus moves a job exactly one step along the lifecycle. Publishing
// a draft requires every field reported by CanPublish to be filled in.
func (s *JobService) AdvanceStatus(ctx context.Context, userID, jobID int64) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	next, ok := job.Status.Next()
	if !ok {
		return nil, errors.WithHintf(ErrInvalidTransition, "a %s job cannot be advanced", job.Status)
	}
	if next == domain.StatusOpen {
		if missing := CanPublish(job); len(missing) > 0 {
			return nil, NotPublishable(missing)
		}
	}
	if err := s.swapStatus(ctx, job, next); err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateFields applies a partial edit. A supplied status that is not valid
// is stored as open rather than rejected. The status change is a
// compare-and-swap against the status read here, so it fails with
// ErrStatusConflict rather than overwrite a concurrent status change.
func (s *JobService) UpdateFields(ctx context.Context, userID, jobID int64, patch domain.JobPatch) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	patch.Apply(job)
	if err := validateSchedule(job.HourlyRate, job.StartTime, job.EndTime); err != nil {
		return nil, err
	}
	if patch.Status != nil {
		if next := domain.NormalizeStatus(*patch.Status); next != job.Status {
			if err := s.swapStatus(ctx, job, next); err != nil {
				return nil, err
			}
		}
	}
	if err := s.repo.UpdateJobFields(ctx, job); err != nil {
		return nil, errors.Wrapf(err, "update job %d", jobID)
	}
	return s.GetJob(ctx, jobID)
}

// DeleteJob removes a job at any status.
func (s *JobService) DeleteJob(ctx context.Context, userID, jobID int64) error {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteJob(ctx, jobID)
	if err != nil {
		return errors.Wrapf(err, "delete job %d", jobID)
	}
	if !deleted {
		return ErrJobNotFound
	}
	s.log.Infow("job deleted", logger.FieldJobID, jobID, logger.FieldUserID, userID)
	return nil
}

func (s *JobService) ownedJob(ctx context.Context, userID, jobID int64) (*domain.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != userID {
		return nil, ErrForbidden
	}
	return job, nil
}

func (s *JobService) swapStatus(ctx context.Context, job *domain.Job, next domain.JobStatus) error {
	swapped, err := s.repo.UpdateJobStatus(ctx, job.ID, job.Status, next)
	if err != nil {
		return errors.Wrapf(err, "update status of job %d", job.ID)
	}
	if !swapped {
		return ErrStatusConflict
	}
	s.log.Infow("job status changed", logger.FieldJobID, job.ID, "from", job.Status, "to", next)
	job.Status = next
	return nil
}

// requiredField pairs a user-facing label with an accessor.
type requiredField struct {
	label string
	value func(*domain.Job) string
}

var requiredFields = []requiredField{
	{"Title", func(j *domain.Job) string { return j.Title }},
	{"Type", func(j *domain.Job) string { return j.Type }},
	{"Hourly Rate", func(j *domain.Job) string {
		if j.HourlyRate <= 0 {
			return ""
		}
		return "set"
	}},
	{"Start Time", func(j *domain.Job) string { return timeValue(j.StartTime) }},
	{"End Time", func(j *domain.Job) string { return timeValue(j.EndTime) }},
	{"City", func(j *domain.Job) string { return j.Location.City }},
	{"Province", func(j *domain.Job) string { return j.Location.Province }},
	{"Postal Code", func(j *domain.Job) string { return j.Location.PostalCode }},
}

// CanPublish returns the labels of required fields that are empty or still
// hold the draft placeholder. An empty result means the job may be opened.
func CanPublish(job *domain.Job) []string {
	var missing []string
	for _, f := range requiredFields {
		v := strings.TrimSpace(f.value(job))
		if v == "" || strings.EqualFold(v, domain.DraftPlaceholder) {
			missing = append(missing, f.label)
		}
	}
	return missing
}

// NotPublishable wraps ErrNotPublishable with the missing field labels.
func NotPublishable(missing []string) error {
	return errors.WithHintf(ErrNotPublishable, "missing: %s", strings.Join(missing, ", "))
}

func timeValue(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func invalidStatus(got string) error {
	return errors.WithHintf(
		errors.Wrapf(ErrInvalidStatus, "%q", got),
		"status must be one of: %s", domain.StatusNames(),
	)
}

func validateSchedule(rate float64, start, end *time.Time) error {
	if rate < 0 {
		return errors.WithHint(ErrInvalidJob, "hourly rate must not be negative")
	}
	if start != nil && end != nil && end.Before(*start) {
		return errors.WithHint(ErrInvalidJob, "end time must not be before start time")
	}
	return nil
}
