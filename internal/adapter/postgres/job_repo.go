package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gigmarket/internal/domain"
)

const jobColumns = "id, owner_id, applicant_id, title, type, description, hourly_rate, start_time, end_time, address, city, province, postal_code, COALESCE(status, 'open'), created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j          domain.Job
		applicant  sql.NullInt64
		start, end sql.NullTime
		status     string
	)
	err := row.Scan(&j.ID, &j.OwnerID, &applicant, &j.Title, &j.Type, &j.Description, &j.HourlyRate,
		&start, &end, &j.Location.Address, &j.Location.City, &j.Location.Province, &j.Location.PostalCode,
		&status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if applicant.Valid {
		j.ApplicantID = &applicant.Int64
	}
	if start.Valid {
		j.StartTime = &start.Time
	}
	if end.Valid {
		j.EndTime = &end.Time
	}
	j.Status = domain.NormalizeStatus(status)
	return &j, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// CreateJob inserts a job and returns its id.
func (d *DB) CreateJob(ctx context.Context, job *domain.Job) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := d.sql.QueryRowContext(ctx,
		"INSERT INTO jobs (owner_id, applicant_id, title, type, description, hourly_rate, start_time, end_time, address, city, province, postal_code, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14) RETURNING id",
		job.OwnerID, nullInt(job.ApplicantID), job.Title, job.Type, job.Description, job.HourlyRate,
		nullTime(job.StartTime), nullTime(job.EndTime), job.Location.Address, job.Location.City,
		job.Location.Province, job.Location.PostalCode, string(job.Status), now,
	).Scan(&id)
	return id, err
}

// GetJob returns a job by id, or nil when absent.
func (d *DB) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	j, err := scanJob(d.sql.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// ListJobsByOwner returns the owner's jobs, newest first.
func (d *DB) ListJobsByOwner(ctx context.Context, ownerID int64) ([]domain.Job, error) {
	return d.listJobs(ctx, "SELECT "+jobColumns+" FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC, id DESC", ownerID)
}

// ListJobsByStatus returns up to limit jobs in the given status, newest first.
func (d *DB) ListJobsByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	return d.listJobs(ctx, "SELECT "+jobColumns+" FROM jobs WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2", string(status), limit)
}

func (d *DB) listJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateJobFields writes every editable column except status, which only
// changes through UpdateJobStatus.
func (d *DB) UpdateJobFields(ctx context.Context, job *domain.Job) error {
	_, err := d.sql.ExecContext(ctx,
		"UPDATE jobs SET applicant_id = $2, title = $3, type = $4, description = $5, hourly_rate = $6, start_time = $7, end_time = $8, address = $9, city = $10, province = $11, postal_code = $12, updated_at = $13 WHERE id = $1",
		job.ID, nullInt(job.ApplicantID), job.Title, job.Type, job.Description, job.HourlyRate,
		nullTime(job.StartTime), nullTime(job.EndTime), job.Location.Address, job.Location.City,
		job.Location.Province, job.Location.PostalCode, time.Now().UTC(),
	)
	return err
}

// UpdateJobStatus is a single conditional update; it reports whether the
// row still had the expected status.
func (d *DB) UpdateJobStatus(ctx context.Context, id int64, expected, next domain.JobStatus) (bool, error) {
	res, err := d.sql.ExecContext(ctx,
		"UPDATE jobs SET status = $3, updated_at = $4 WHERE id = $1 AND COALESCE(status, 'open') = $2",
		id, string(expected), string(next), time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteJob removes a job.
func (d *DB) DeleteJob(ctx context.Context, id int64) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
