package repository

import (
	"context"
	"errors"
	"strings"

	"hirejudge/internal/common/db"
	"hirejudge/internal/interview/model"
)

const roleCandidate = "candidate"

// CandidateRepository reads and creates candidate accounts in the user store.
type CandidateRepository interface {
	GetByEmail(ctx context.Context, tx db.Transaction, email string) (*model.Candidate, error)
	Create(ctx context.Context, tx db.Transaction, candidate *model.Candidate, passwordHash string) (int64, error)
}

type MySQLCandidateRepository struct {
	db db.Database
}

func NewCandidateRepository(database db.Database) CandidateRepository {
	return &MySQLCandidateRepository{db: database}
}

const candidateColumns = "id, email, name, phone, resume_url, years_of_experience"

func (r *MySQLCandidateRepository) GetByEmail(ctx context.Context, tx db.Transaction, email string) (*model.Candidate, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	query := "SELECT " + candidateColumns + " FROM users WHERE email = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, email)
	c := &model.Candidate{}
	if err := row.Scan(&c.ID, &c.Email, &c.Name, &c.Phone, &c.ResumeURL, &c.YearsOfExperience); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCandidateNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *MySQLCandidateRepository) Create(ctx context.Context, tx db.Transaction, c *model.Candidate, passwordHash string) (int64, error) {
	if c == nil {
		return 0, errors.New("candidate is nil")
	}
	email := normalizeEmail(c.Email)
	if email == "" {
		return 0, errors.New("email is required")
	}
	if passwordHash == "" {
		return 0, errors.New("passwordHash is required")
	}
	query := `
		INSERT INTO users (email, name, password_hash, role, phone, resume_url, years_of_experience)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		email, c.Name, passwordHash, roleCandidate, c.Phone, c.ResumeURL, c.YearsOfExperience)
	if err != nil {
		if db.IsDuplicate(err) {
			return 0, ErrCandidateExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
