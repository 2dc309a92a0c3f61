package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hirejudge/internal/common/db"
	"hirejudge/internal/interview/model"
)

// InterviewRepository persists interviews and their lifecycle transitions.
type InterviewRepository interface {
	Create(ctx context.Context, tx db.Transaction, interview *model.Interview) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Interview, error)
	// TransitionStatus moves the interview to "to" only if its current status is one of "from".
	// It returns ErrStatusConflict when no row matched.
	TransitionStatus(ctx context.Context, tx db.Transaction, id int64, from []model.Status, to model.Status, at time.Time) error
	// ExpireOverdue marks pending or scheduled interviews whose window ended before now as expired.
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error)
}

type MySQLInterviewRepository struct {
	db db.Database
}

func NewInterviewRepository(database db.Database) InterviewRepository {
	return &MySQLInterviewRepository{db: database}
}

const interviewSelect = `
	SELECT i.id, i.application_id, a.candidate_id, a.job_id, a.organization_id,
	       i.time_slot_start, i.time_slot_end, i.scheduled_at, i.duration_minutes,
	       i.mode, i.interview_type, i.status, i.notes, i.started_at, i.completed_at,
	       i.created_at, i.updated_at
	FROM interviews i
	JOIN applications a ON a.id = i.application_id
`

func (r *MySQLInterviewRepository) Create(ctx context.Context, tx db.Transaction, iv *model.Interview) (int64, error) {
	if iv == nil {
		return 0, errors.New("interview is nil")
	}
	if iv.ApplicationID <= 0 {
		return 0, errors.New("applicationID is required")
	}
	if !iv.TimeSlotEnd.After(iv.TimeSlotStart) {
		return 0, errors.New("time slot end must be after start")
	}
	status := iv.Status
	if status == "" {
		status = model.StatusScheduled
	}
	query := `
		INSERT INTO interviews
		(application_id, time_slot_start, time_slot_end, scheduled_at, duration_minutes, mode, interview_type, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		iv.ApplicationID,
		iv.TimeSlotStart.UTC(),
		iv.TimeSlotEnd.UTC(),
		iv.ScheduledAt.UTC(),
		iv.DurationMinutes,
		string(iv.Mode),
		string(iv.Type),
		string(status),
		nullString(iv.Notes),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (r *MySQLInterviewRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*model.Interview, error) {
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, interviewSelect+" WHERE i.id = ? LIMIT 1", id)
	iv := &model.Interview{}
	var (
		mode, ivType, status string
		notes                sql.NullString
		startedAt            sql.NullTime
		completedAt          sql.NullTime
	)
	err := row.Scan(
		&iv.ID, &iv.ApplicationID, &iv.CandidateID, &iv.JobID, &iv.OrganizationID,
		&iv.TimeSlotStart, &iv.TimeSlotEnd, &iv.ScheduledAt, &iv.DurationMinutes,
		&mode, &ivType, &status, &notes, &startedAt, &completedAt,
		&iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrInterviewNotFound
		}
		return nil, err
	}
	iv.Mode = model.Mode(mode)
	iv.Type = model.Type(ivType)
	iv.Status = model.Status(status)
	iv.Notes = notes.String
	if startedAt.Valid {
		t := startedAt.Time
		iv.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		iv.CompletedAt = &t
	}
	return iv, nil
}

func (r *MySQLInterviewRepository) TransitionStatus(ctx context.Context, tx db.Transaction, id int64, from []model.Status, to model.Status, at time.Time) error {
	if len(from) == 0 {
		return errors.New("from statuses are required")
	}
	set := "status = ?"
	args := []interface{}{string(to)}
	switch to {
	case model.StatusInProgress:
		set += ", started_at = ?"
		args = append(args, at.UTC())
	case model.StatusCompleted:
		set += ", completed_at = ?"
		args = append(args, at.UTC())
	}
	args = append(args, id)
	for _, s := range from {
		args = append(args, string(s))
	}
	query := "UPDATE interviews SET " + set + " WHERE id = ? AND status IN (" + placeholders(len(from)) + ")"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *MySQLInterviewRepository) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		UPDATE interviews SET status = ?
		WHERE status IN (?, ?) AND time_slot_end < ?
		LIMIT ?
	`
	result, err := r.db.Exec(ctx, query,
		string(model.StatusExpired),
		string(model.StatusPending), string(model.StatusScheduled),
		now.UTC(), limit,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
