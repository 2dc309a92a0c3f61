package repository

import (
	"context"
	"errors"

	"hirejudge/internal/common/db"
	"hirejudge/internal/interview/model"
)

const defaultApplicationStatus = "interviewing"

// ApplicationRepository persists job applications.
type ApplicationRepository interface {
	GetByJobAndCandidate(ctx context.Context, tx db.Transaction, jobID, candidateID int64) (*model.Application, error)
	Create(ctx context.Context, tx db.Transaction, app *model.Application) (int64, error)
}

type MySQLApplicationRepository struct {
	db db.Database
}

func NewApplicationRepository(database db.Database) ApplicationRepository {
	return &MySQLApplicationRepository{db: database}
}

const applicationColumns = "id, job_id, candidate_id, organization_id, created_by, status, created_at"

func (r *MySQLApplicationRepository) GetByJobAndCandidate(ctx context.Context, tx db.Transaction, jobID, candidateID int64) (*model.Application, error) {
	query := "SELECT " + applicationColumns + " FROM applications WHERE job_id = ? AND candidate_id = ? LIMIT 1"
	app := &model.Application{}
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, jobID, candidateID).Scan(
		&app.ID, &app.JobID, &app.CandidateID, &app.OrganizationID, &app.CreatedBy, &app.Status, &app.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

// Create inserts an application. A second insert for the same (job, candidate) returns ErrApplicationExists.
func (r *MySQLApplicationRepository) Create(ctx context.Context, tx db.Transaction, app *model.Application) (int64, error) {
	if app == nil {
		return 0, errors.New("application is nil")
	}
	if app.JobID <= 0 || app.CandidateID <= 0 {
		return 0, errors.New("jobID and candidateID are required")
	}
	status := app.Status
	if status == "" {
		status = defaultApplicationStatus
	}
	query := "INSERT INTO applications (job_id, candidate_id, organization_id, created_by, status) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, app.JobID, app.CandidateID, app.OrganizationID, app.CreatedBy, status)
	if err != nil {
		if db.IsDuplicate(err) {
			return 0, ErrApplicationExists
		}
		return 0, err
	}
	return result.LastInsertId()
}
