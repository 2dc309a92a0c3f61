package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	judgeModel "hirejudge/internal/judge/model"
	"hirejudge/internal/submission/model"
	"hirejudge/internal/submission/repository"
	appErr "hirejudge/pkg/errors"
)

// RecordInput is one graded attempt to persist.
type RecordInput struct {
	InterviewID int64
	QuestionID  int64
	CandidateID int64
	Code        string
	Language    string
	SourceKey   string
	Evaluation  judgeModel.Evaluation
}

// Recorder keeps a single latest-attempt row per (question, candidate, interview).
type Recorder struct {
	repo repository.SubmissionRepository
	now  func() time.Time
}

// NewRecorder creates a recorder on repo.
func NewRecorder(repo repository.SubmissionRepository) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	return &Recorder{repo: repo, now: time.Now}, nil
}

// Record updates the existing row for the triple or inserts the first one.
// A concurrent first insert is folded into an update. Any failure is reported
// as SubmissionPersistFailed.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (*model.Submission, error) {
	s := &model.Submission{
		QuestionID:    in.QuestionID,
		CandidateID:   in.CandidateID,
		InterviewID:   in.InterviewID,
		Code:          in.Code,
		Language:      in.Language,
		Evaluation:    in.Evaluation,
		IsSubmitted:   true,
		AttemptNumber: 1,
		SourceKey:     in.SourceKey,
		SubmittedAt:   r.now().UTC(),
	}

	existing, err := r.repo.GetByTriple(ctx, in.QuestionID, in.CandidateID, in.InterviewID)
	switch {
	case err == nil:
		return r.update(ctx, s, existing.ID)
	case !errors.Is(err, repository.ErrSubmissionNotFound):
		return nil, appErr.Wrapf(err, appErr.SubmissionPersistFailed, "look up submission failed")
	}

	id, err := r.repo.Create(ctx, s)
	if err == nil {
		s.ID = id
		return s, nil
	}
	if !errors.Is(err, repository.ErrSubmissionExists) {
		return nil, appErr.Wrapf(err, appErr.SubmissionPersistFailed, "create submission failed")
	}
	existing, err = r.repo.GetByTriple(ctx, in.QuestionID, in.CandidateID, in.InterviewID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SubmissionPersistFailed, "look up submission failed")
	}
	return r.update(ctx, s, existing.ID)
}

func (r *Recorder) update(ctx context.Context, s *model.Submission, id int64) (*model.Submission, error) {
	s.ID = id
	attempt, err := r.repo.Update(ctx, s)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SubmissionPersistFailed, "update submission failed")
	}
	s.AttemptNumber = attempt
	return s, nil
}
