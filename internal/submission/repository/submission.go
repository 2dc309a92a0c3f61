package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hirejudge/internal/common/db"
	judgemodel "hirejudge/internal/judge/model"
	"hirejudge/internal/submission/model"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("submission already exists")
)

// SubmissionRepository persists the latest attempt per (question, candidate, interview).
type SubmissionRepository interface {
	GetByTriple(ctx context.Context, questionID, candidateID, interviewID int64) (*model.Submission, error)
	ListByInterview(ctx context.Context, interviewID, candidateID int64) ([]model.Submission, error)
	// Create inserts a new row and returns ErrSubmissionExists on a concurrent duplicate.
	Create(ctx context.Context, s *model.Submission) (int64, error)
	// Update overwrites code and evaluation of row s.ID and bumps its attempt number.
	// It returns the stored attempt number.
	Update(ctx context.Context, s *model.Submission) (int, error)
}

type MySQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = `id, question_id, candidate_id, interview_id, code, language,
	score, test_cases_passed, total_test_cases, execution_time_ms, memory_kb,
	output, error, feedback, test_results, is_submitted, attempt_number, source_key,
	submitted_at, created_at, updated_at`

func (r *MySQLSubmissionRepository) GetByTriple(ctx context.Context, questionID, candidateID, interviewID int64) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE question_id = ? AND candidate_id = ? AND interview_id = ? LIMIT 1"
	s, err := scanSubmission(r.db.QueryRow(ctx, query, questionID, candidateID, interviewID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *MySQLSubmissionRepository) ListByInterview(ctx context.Context, interviewID, candidateID int64) ([]model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE interview_id = ? AND candidate_id = ? ORDER BY question_id"
	rows, err := r.db.Query(ctx, query, interviewID, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *MySQLSubmissionRepository) Create(ctx context.Context, s *model.Submission) (int64, error) {
	if s == nil {
		return 0, errors.New("submission is nil")
	}
	results, err := json.Marshal(s.Evaluation.Results)
	if err != nil {
		return 0, fmt.Errorf("encode test results: %w", err)
	}
	ev := s.Evaluation
	query := `
		INSERT INTO submissions
		(question_id, candidate_id, interview_id, code, language,
		 score, test_cases_passed, total_test_cases, execution_time_ms, memory_kb,
		 output, error, feedback, test_results, is_submitted, attempt_number, source_key, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(ctx, query,
		s.QuestionID, s.CandidateID, s.InterviewID, s.Code, s.Language,
		ev.Score, ev.TestCasesPassed, ev.TotalTestCases, ev.ExecutionTimeMs, ev.MemoryKB,
		ev.Output, ev.Error, ev.Feedback, results, s.IsSubmitted, s.AttemptNumber, s.SourceKey, s.SubmittedAt.UTC(),
	)
	if err != nil {
		if db.IsDuplicate(err) {
			return 0, ErrSubmissionExists
		}
		return 0, err
	}
	return result.LastInsertId()
}

func (r *MySQLSubmissionRepository) Update(ctx context.Context, s *model.Submission) (int, error) {
	if s == nil || s.ID <= 0 {
		return 0, errors.New("submission id is required")
	}
	results, err := json.Marshal(s.Evaluation.Results)
	if err != nil {
		return 0, fmt.Errorf("encode test results: %w", err)
	}
	ev := s.Evaluation
	var attempt int
	err = r.db.Transaction(ctx, func(tx db.Transaction) error {
		query := `
			UPDATE submissions SET
				code = ?, language = ?, score = ?, test_cases_passed = ?, total_test_cases = ?,
				execution_time_ms = ?, memory_kb = ?, output = ?, error = ?, feedback = ?,
				test_results = ?, is_submitted = ?, source_key = ?, submitted_at = ?,
				attempt_number = attempt_number + 1
			WHERE id = ?
		`
		result, err := tx.Exec(ctx, query,
			s.Code, s.Language, ev.Score, ev.TestCasesPassed, ev.TotalTestCases,
			ev.ExecutionTimeMs, ev.MemoryKB, ev.Output, ev.Error, ev.Feedback,
			results, s.IsSubmitted, s.SourceKey, s.SubmittedAt.UTC(), s.ID,
		)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return ErrSubmissionNotFound
		}
		return tx.QueryRow(ctx, "SELECT attempt_number FROM submissions WHERE id = ?", s.ID).Scan(&attempt)
	})
	if err != nil {
		return 0, err
	}
	return attempt, nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	s := &model.Submission{}
	var (
		output, errText, feedback sql.NullString
		results                   []byte
		ev                        judgemodel.Evaluation
	)
	if err := row.Scan(
		&s.ID, &s.QuestionID, &s.CandidateID, &s.InterviewID, &s.Code, &s.Language,
		&ev.Score, &ev.TestCasesPassed, &ev.TotalTestCases, &ev.ExecutionTimeMs, &ev.MemoryKB,
		&output, &errText, &feedback, &results, &s.IsSubmitted, &s.AttemptNumber, &s.SourceKey,
		&s.SubmittedAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ev.Output = output.String
	ev.Error = errText.String
	ev.Feedback = feedback.String
	if len(results) > 0 {
		if err := json.Unmarshal(results, &ev.Results); err != nil {
			return nil, fmt.Errorf("decode test results of submission %d: %w", s.ID, err)
		}
	}
	s.Evaluation = ev
	return s, nil
}
