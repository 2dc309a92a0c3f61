package model

import (
	"time"

	judgemodel "hirejudge/internal/judge/model"
)

// Submission is the latest graded attempt for (question, candidate, interview).
type Submission struct {
	ID            int64
	QuestionID    int64
	CandidateID   int64
	InterviewID   int64
	Code          string
	Language      string
	Evaluation    judgemodel.Evaluation
	IsSubmitted   bool
	AttemptNumber int
	SourceKey     string
	SubmittedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
