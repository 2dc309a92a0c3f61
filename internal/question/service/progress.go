package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	interviewModel "hirejudge/internal/interview/model"
	interviewRepo "hirejudge/internal/interview/repository"
	"hirejudge/internal/question/model"
	"hirejudge/internal/question/repository"
	submissionModel "hirejudge/internal/submission/model"
	submissionRepo "hirejudge/internal/submission/repository"
	appErr "hirejudge/pkg/errors"
)

// Progress is where a candidate stands inside an interview's question sequence.
type Progress struct {
	CurrentIndex int
	Total        int
	// Completed is true once every question has a submitted attempt.
	Completed bool
	Submitted map[int64]bool
	// Questions is the input sorted by order index.
	Questions []model.InterviewQuestion
}

// ResolveProgress finds the current question: the first one without a
// submitted attempt, or the last one when all are submitted.
func ResolveProgress(questions []model.InterviewQuestion, submissions []submissionModel.Submission) (Progress, error) {
	if len(questions) == 0 {
		return Progress{}, appErr.New(appErr.NoQuestionsFound)
	}
	ordered := slices.Clone(questions)
	slices.SortStableFunc(ordered, func(a, b model.InterviewQuestion) int {
		return a.OrderIndex - b.OrderIndex
	})

	submitted := make(map[int64]bool, len(submissions))
	for _, s := range submissions {
		if s.IsSubmitted {
			submitted[s.QuestionID] = true
		}
	}

	p := Progress{
		CurrentIndex: len(ordered) - 1,
		Total:        len(ordered),
		Completed:    true,
		Submitted:    submitted,
		Questions:    ordered,
	}
	for i, q := range ordered {
		if !submitted[q.QuestionID] {
			p.CurrentIndex = i
			p.Completed = false
			break
		}
	}
	return p, nil
}

// Unlocked reports whether the question at position i in Questions may be opened.
func (p Progress) Unlocked(i int) bool {
	return i >= 0 && i <= p.CurrentIndex
}

// MarkSubmitted returns the progress after questionID received a submitted attempt.
func (p Progress) MarkSubmitted(questionID int64) Progress {
	submitted := make(map[int64]bool, len(p.Submitted)+1)
	for id, ok := range p.Submitted {
		submitted[id] = ok
	}
	submitted[questionID] = true

	next := p
	next.Submitted = submitted
	next.CurrentIndex = len(p.Questions) - 1
	next.Completed = true
	for i, q := range p.Questions {
		if !submitted[q.QuestionID] {
			next.CurrentIndex = i
			next.Completed = false
			break
		}
	}
	return next
}

// Position returns the position of questionID within Questions, or -1.
func (p Progress) Position(questionID int64) int {
	for i, q := range p.Questions {
		if q.QuestionID == questionID {
			return i
		}
	}
	return -1
}

// AccessConfig holds AccessService dependencies.
type AccessConfig struct {
	InterviewRepo         interviewRepo.InterviewRepository
	InterviewQuestionRepo repository.InterviewQuestionRepository
	SubmissionRepo        submissionRepo.SubmissionRepository
	Timeout               time.Duration
}

// AccessService reveals an interview's questions one at a time.
type AccessService struct {
	interviewRepo         interviewRepo.InterviewRepository
	interviewQuestionRepo repository.InterviewQuestionRepository
	submissionRepo        submissionRepo.SubmissionRepository
	timeout               time.Duration
}

// TestCaseView exposes a test case input without its expected output.
type TestCaseView struct {
	Input string `json:"input"`
}

// QuestionView is one unlocked question as the candidate sees it.
type QuestionView struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Difficulty  model.Difficulty `json:"difficulty"`
	OrderIndex  int              `json:"orderIndex"`
	Submitted   bool             `json:"submitted"`
	TestCases   []TestCaseView   `json:"testCases"`
}

// AccessibleQuestions is the progressive-access response.
type AccessibleQuestions struct {
	InterviewID          int64          `json:"interviewId"`
	Questions            []QuestionView `json:"questions"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	TotalQuestions       int            `json:"totalQuestions"`
	Completed            bool           `json:"completed"`
}

// NewAccessService validates cfg and builds the service.
func NewAccessService(cfg AccessConfig) (*AccessService, error) {
	if cfg.InterviewRepo == nil {
		return nil, fmt.Errorf("interview repository is required")
	}
	if cfg.InterviewQuestionRepo == nil {
		return nil, fmt.Errorf("interview question repository is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	return &AccessService{
		interviewRepo:         cfg.InterviewRepo,
		interviewQuestionRepo: cfg.InterviewQuestionRepo,
		submissionRepo:        cfg.SubmissionRepo,
		timeout:               cfg.Timeout,
	}, nil
}

// GetAccessibleQuestions returns questions[0..current] for the owning candidate.
func (s *AccessService) GetAccessibleQuestions(ctx context.Context, interviewID, candidateID int64) (*AccessibleQuestions, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	iv, err := s.LoadOwnedInterview(ctx, interviewID, candidateID)
	if err != nil {
		return nil, err
	}
	if iv.Status != interviewModel.StatusInProgress && iv.Status != interviewModel.StatusCompleted {
		return nil, appErr.New(appErr.InterviewNotActive).
			WithDetail("status", string(iv.Status))
	}

	progress, err := s.LoadProgress(ctx, interviewID, candidateID)
	if err != nil {
		return nil, err
	}

	views := make([]QuestionView, 0, progress.CurrentIndex+1)
	for i := 0; i <= progress.CurrentIndex; i++ {
		views = append(views, newQuestionView(progress.Questions[i], progress.Submitted))
	}
	return &AccessibleQuestions{
		InterviewID:          interviewID,
		Questions:            views,
		CurrentQuestionIndex: progress.CurrentIndex,
		TotalQuestions:       progress.Total,
		Completed:            progress.Completed,
	}, nil
}

// LoadOwnedInterview fetches the interview and checks that candidateID owns it.
func (s *AccessService) LoadOwnedInterview(ctx context.Context, interviewID, candidateID int64) (*interviewModel.Interview, error) {
	if interviewID <= 0 {
		return nil, appErr.ValidationError("interview_id", "required")
	}
	iv, err := s.interviewRepo.GetByID(ctx, nil, interviewID)
	if err != nil {
		if errors.Is(err, interviewRepo.ErrInterviewNotFound) {
			return nil, appErr.New(appErr.InterviewNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get interview failed")
	}
	if iv.CandidateID != candidateID {
		return nil, appErr.New(appErr.InterviewAccessDenied)
	}
	return iv, nil
}

// LoadProgress reads the question set and the candidate's attempts and resolves progress.
func (s *AccessService) LoadProgress(ctx context.Context, interviewID, candidateID int64) (Progress, error) {
	questions, err := s.interviewQuestionRepo.ListByInterview(ctx, interviewID)
	if err != nil {
		return Progress{}, appErr.Wrapf(err, appErr.DatabaseError, "list interview questions failed")
	}
	submissions, err := s.submissionRepo.ListByInterview(ctx, interviewID, candidateID)
	if err != nil {
		return Progress{}, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return ResolveProgress(questions, submissions)
}

func newQuestionView(iq model.InterviewQuestion, submitted map[int64]bool) QuestionView {
	view := QuestionView{
		ID:         iq.QuestionID,
		OrderIndex: iq.OrderIndex,
		Submitted:  submitted[iq.QuestionID],
		TestCases:  []TestCaseView{},
	}
	if q := iq.Question; q != nil {
		view.Title = q.Title
		view.Description = q.Description
		view.Difficulty = q.Difficulty
		for _, tc := range q.TestCases {
			view.TestCases = append(view.TestCases, TestCaseView{Input: tc.Input})
		}
	}
	return view
}
