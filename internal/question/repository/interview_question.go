package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hirejudge/internal/common/db"
	"hirejudge/internal/question/model"
)

// InterviewQuestionRepository persists the question set bound to an interview.
type InterviewQuestionRepository interface {
	// ListByInterview returns the bound questions ordered by order index, test cases included.
	ListByInterview(ctx context.Context, interviewID int64) ([]model.InterviewQuestion, error)
	// Assign binds questionIDs in order (index 0, 1, ...) inside one transaction.
	// It returns ErrAlreadyAssigned when any row for the interview already exists.
	Assign(ctx context.Context, interviewID int64, questionIDs []int64) ([]model.InterviewQuestion, error)
}

type MySQLInterviewQuestionRepository struct {
	db db.Database
}

func NewInterviewQuestionRepository(database db.Database) InterviewQuestionRepository {
	return &MySQLInterviewQuestionRepository{db: database}
}

func (r *MySQLInterviewQuestionRepository) ListByInterview(ctx context.Context, interviewID int64) ([]model.InterviewQuestion, error) {
	query := `
		SELECT iq.id, iq.interview_id, iq.question_id, iq.order_index, iq.created_at,
		       q.title, q.description, q.difficulty, q.status, q.test_cases
		FROM interview_questions iq
		JOIN questions q ON q.id = iq.question_id
		WHERE iq.interview_id = ?
		ORDER BY iq.order_index ASC
	`
	rows, err := r.db.Query(ctx, query, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.InterviewQuestion
	for rows.Next() {
		var (
			iq         model.InterviewQuestion
			q          model.Question
			difficulty string
			testCases  []byte
		)
		if err := rows.Scan(
			&iq.ID, &iq.InterviewID, &iq.QuestionID, &iq.OrderIndex, &iq.CreatedAt,
			&q.Title, &q.Description, &difficulty, &q.Status, &testCases,
		); err != nil {
			return nil, err
		}
		q.ID = iq.QuestionID
		q.Difficulty = model.Difficulty(difficulty)
		if len(testCases) > 0 {
			if err := json.Unmarshal(testCases, &q.TestCases); err != nil {
				return nil, fmt.Errorf("decode test cases of question %d: %w", q.ID, err)
			}
		}
		iq.Question = &q
		items = append(items, iq)
	}
	return items, rows.Err()
}

func (r *MySQLInterviewQuestionRepository) Assign(ctx context.Context, interviewID int64, questionIDs []int64) ([]model.InterviewQuestion, error) {
	if interviewID <= 0 {
		return nil, errors.New("interviewID is required")
	}
	if len(questionIDs) == 0 {
		return nil, errors.New("questionIDs are required")
	}
	items := make([]model.InterviewQuestion, 0, len(questionIDs))
	err := r.db.Transaction(ctx, func(tx db.Transaction) error {
		var existing int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM interview_questions WHERE interview_id = ? FOR UPDATE", interviewID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyAssigned
		}
		for idx, qid := range questionIDs {
			result, err := tx.Exec(ctx,
				"INSERT INTO interview_questions (interview_id, question_id, order_index) VALUES (?, ?, ?)",
				interviewID, qid, idx,
			)
			if err != nil {
				if db.IsDuplicate(err) {
					return ErrAlreadyAssigned
				}
				return err
			}
			id, err := result.LastInsertId()
			if err != nil {
				return err
			}
			items = append(items, model.InterviewQuestion{ID: id, InterviewID: interviewID, QuestionID: qid, OrderIndex: idx})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
