package domain

import (
	"context"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

const (
	StatusDraft     JobStatus = "draft"
	StatusOpen      JobStatus = "open"
	StatusInReview  JobStatus = "in-review"
	StatusFilled    JobStatus = "filled"
	StatusCompleted JobStatus = "completed"
)

// AllStatuses lists every valid status in lifecycle order.
var AllStatuses = []JobStatus{StatusDraft, StatusOpen, StatusInReview, StatusFilled, StatusCompleted}

// DraftPlaceholder marks a field that has not been filled in yet.
const DraftPlaceholder = "TBD"

// ParseStatus reports whether s names a valid status.
func ParseStatus(s string) (JobStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// NormalizeStatus returns s as a status, or StatusOpen when s is not one.
func NormalizeStatus(s string) JobStatus {
	if st, ok := ParseStatus(s); ok {
		return st
	}
	return StatusOpen
}

// Next returns the single successor of st. Completed has none.
func (st JobStatus) Next() (JobStatus, bool) {
	for i, s := range AllStatuses {
		if s == st && i+1 < len(AllStatuses) {
			return AllStatuses[i+1], true
		}
	}
	return "", false
}

// StatusNames returns the valid statuses joined for error messages.
func StatusNames() string {
	names := make([]string, len(AllStatuses))
	for i, st := range AllStatuses {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

// Location is where a job takes place.
type Location struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
}

// Job is a gig posted by a user.
type Job struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"ownerId"`
	ApplicantID *int64     `json:"applicantId"`
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	HourlyRate  float64    `json:"hourlyRate"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Location    Location   `json:"location"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// JobFields holds the user-editable attributes of a new job.
type JobFields struct {
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	HourlyRate  float64    `json:"hourlyRate"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Location    Location   `json:"location"`
}

// JobPatch is a partial update. Nil fields are left untouched.
type JobPatch struct {
	Title       *string    `json:"title"`
	Type        *string    `json:"type"`
	Description *string    `json:"description"`
	HourlyRate  *float64   `json:"hourlyRate"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Address     *string    `json:"address"`
	City        *string    `json:"city"`
	Province    *string    `json:"province"`
	PostalCode  *string    `json:"postalCode"`
	ApplicantID *int64     `json:"applicantId"`
	Status      *string    `json:"status"`
}

// Apply copies the set fields of p onto j. Status is not touched; callers
// normalize it first.
func (p JobPatch) Apply(j *Job) {
	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.Type != nil {
		j.Type = *p.Type
	}
	if p.Description != nil {
		j.Description = *p.Description
	}
	if p.HourlyRate != nil {
		j.HourlyRate = *p.HourlyRate
	}
	if p.StartTime != nil {
		j.StartTime = p.StartTime
	}
	if p.EndTime != nil {
		j.EndTime = p.EndTime
	}
	if p.Address != nil {
		j.Location.Address = *p.Address
	}
	if p.City != nil {
		j.Location.City = *p.City
	}
	if p.Province != nil {
		j.Location.Province = *p.Province
	}
	if p.PostalCode != nil {
		j.Location.PostalCode = *p.PostalCode
	}
	if p.ApplicantID != nil {
		j.ApplicantID = p.ApplicantID
	}
}

// JobRepository is the port for job persistence.
type JobRepository interface {
	CreateJob(ctx context.Context, job *Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobsByOwner(ctx context.Context, ownerID int64) ([]Job, error)
	ListJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]Job, error)
	// UpdateJobFields writes the editable fields of job. Status is not written.
	UpdateJobFields(ctx context.Context, job *Job) error
	// UpdateJobStatus sets the status only if it still equals expected.
	// It reports false when another writer got there first.
	UpdateJobStatus(ctx context.Context, id int64, expected, next JobStatus) (bool, error)
	DeleteJob(ctx context.Context, id int64) (bool, error)
}
