package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hirejudge/internal/common/ratelimit"
	interviewModel "hirejudge/internal/interview/model"
	judgeModel "hirejudge/internal/judge/model"
	judgeService "hirejudge/internal/judge/service"
	"hirejudge/internal/metrics"
	questionService "hirejudge/internal/question/service"
	"hirejudge/internal/submission/model"
	"hirejudge/internal/submission/repository"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultMaxCodeBytes = 64 << 10

// ProgressReader resolves interview ownership and question progress.
type ProgressReader interface {
	LoadOwnedInterview(ctx context.Context, interviewID, candidateID int64) (*interviewModel.Interview, error)
	LoadProgress(ctx context.Context, interviewID, candidateID int64) (questionService.Progress, error)
}

// CodeEvaluator grades source against test cases.
type CodeEvaluator interface {
	Evaluate(ctx context.Context, input judgeService.EvaluateInput) (*judgeModel.Evaluation, error)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration
	Storage time.Duration
	Judge   time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	Progress       ProgressReader
	Evaluator      CodeEvaluator
	Recorder       *Recorder
	SubmissionRepo repository.SubmissionRepository
	// Archive is optional; without it sources live only in the database.
	Archive *SourceArchive
	// Limiter is optional; without it submits are not throttled.
	Limiter      ratelimit.Limiter
	MaxCodeBytes int
	Timeouts     TimeoutConfig
}

// SubmitService grades and records candidate code submissions.
type SubmitService struct {
	progress       ProgressReader
	evaluator      CodeEvaluator
	recorder       *Recorder
	submissionRepo repository.SubmissionRepository
	archive        *SourceArchive
	limiter        ratelimit.Limiter
	maxCodeBytes   int
	timeouts       TimeoutConfig
}

// SubmitInput is one submit request.
type SubmitInput struct {
	InterviewID int64
	QuestionID  int64
	CandidateID int64
	Code        string
	Language    string
}

// SubmitResult is the evaluation plus the recorded attempt and updated progress.
type SubmitResult struct {
	judgeModel.Evaluation
	SubmissionID         int64     `json:"submissionId"`
	AttemptNumber        int       `json:"attemptNumber"`
	SubmittedAt          time.Time `json:"submittedAt"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	Completed            bool      `json:"completed"`
}

// SubmissionView is a recorded attempt as returned to its author.
type SubmissionView struct {
	ID            int64                 `json:"id"`
	QuestionID    int64                 `json:"questionId"`
	Language      string                `json:"language"`
	Code          string                `json:"code"`
	AttemptNumber int                   `json:"attemptNumber"`
	SubmittedAt   time.Time             `json:"submittedAt"`
	Evaluation    judgeModel.Evaluation `json:"evaluation"`
}

// NewSubmitService validates cfg and builds the service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress reader is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &SubmitService{
		progress:       cfg.Progress,
		evaluator:      cfg.Evaluator,
		recorder:       cfg.Recorder,
		submissionRepo: cfg.SubmissionRepo,
		archive:        cfg.Archive,
		limiter:        cfg.Limiter,
		maxCodeBytes:   cfg.MaxCodeBytes,
		timeouts:       cfg.Timeouts,
	}, nil
}

// Submit evaluates code for an unlocked question of an in-progress interview and records it.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	iv, err := s.progress.LoadOwnedInterview(ctxDB.ctx, input.InterviewID, input.CandidateID)
	if err != nil {
		ctxDB.cancel()
		return nil, err
	}
	if iv.Status != interviewModel.StatusInProgress {
		ctxDB.cancel()
		return nil, appErr.New(appErr.InterviewNotActive).WithDetail("status", string(iv.Status))
	}
	progress, err := s.progress.LoadProgress(ctxDB.ctx, input.InterviewID, input.CandidateID)
	ctxDB.cancel()
	if err != nil {
		return nil, err
	}

	pos := progress.Position(input.QuestionID)
	if pos < 0 {
		return nil, appErr.New(appErr.QuestionNotAssigned)
	}
	if !progress.Unlocked(pos) {
		return nil, appErr.New(appErr.QuestionLocked).
			WithDetail("currentQuestionIndex", progress.CurrentIndex).
			WithDetail("orderIndex", progress.Questions[pos].OrderIndex)
	}
	question := progress.Questions[pos].Question
	if question == nil || len(question.TestCases) == 0 {
		return nil, appErr.New(appErr.TestCaseInvalid)
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, ratelimit.Key("submit", input.CandidateID)); err != nil {
			return nil, err
		}
	}

	ctxJudge := withTimeout(ctx, s.timeouts.Judge)
	eval, err := s.evaluator.Evaluate(ctxJudge.ctx, judgeService.EvaluateInput{
		Code:      input.Code,
		Language:  input.Language,
		TestCases: question.TestCases,
	})
	ctxJudge.cancel()
	if err != nil {
		return nil, err
	}

	sourceKey := s.archiveSource(ctx, input)

	ctxDB = withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	sub, err := s.recorder.Record(ctxDB.ctx, RecordInput{
		InterviewID: input.InterviewID,
		QuestionID:  input.QuestionID,
		CandidateID: input.CandidateID,
		Code:        input.Code,
		Language:    judgeService.NormalizeLanguage(input.Language),
		SourceKey:   sourceKey,
		Evaluation:  *eval,
	})
	if err != nil {
		logger.Error(ctx, "graded submission not persisted",
			zap.Int64("interview_id", input.InterviewID),
			zap.Int64("question_id", input.QuestionID),
			zap.Float64("score", eval.Score),
			zap.Error(err))
		return nil, err
	}
	metrics.SubmissionsTotal.WithLabelValues(metrics.BoolLabel(eval.TestCasesPassed == eval.TotalTestCases)).Inc()

	next := progress.MarkSubmitted(input.QuestionID)
	logger.Info(ctx, "submission recorded",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("interview_id", input.InterviewID),
		zap.Int64("question_id", input.QuestionID),
		zap.Int("attempt", sub.AttemptNumber),
		zap.Float64("score", eval.Score))

	return &SubmitResult{
		Evaluation:           *eval,
		SubmissionID:         sub.ID,
		AttemptNumber:        sub.AttemptNumber,
		SubmittedAt:          sub.SubmittedAt,
		CurrentQuestionIndex: next.CurrentIndex,
		Completed:            next.Completed,
	}, nil
}

// ListSubmissions returns the candidate's latest attempt per question.
func (s *SubmitService) ListSubmissions(ctx context.Context, interviewID, candidateID int64) ([]SubmissionView, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if _, err := s.progress.LoadOwnedInterview(ctxDB.ctx, interviewID, candidateID); err != nil {
		return nil, err
	}
	subs, err := s.submissionRepo.ListByInterview(ctxDB.ctx, interviewID, candidateID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	views := make([]SubmissionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, newSubmissionView(sub))
	}
	return views, nil
}

func (s *SubmitService) validateInput(input SubmitInput) error {
	if input.InterviewID <= 0 {
		return appErr.ValidationError("interview_id", "required")
	}
	if input.QuestionID <= 0 {
		return appErr.ValidationError("question_id", "required")
	}
	if input.CandidateID <= 0 {
		return appErr.ValidationError("candidate_id", "required")
	}
	if strings.TrimSpace(input.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return appErr.ValidationError("language", "required").WithDetail("supported", judgeService.Languages())
	}
	if len(input.Code) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("maxBytes", s.maxCodeBytes)
	}
	return nil
}

func (s *SubmitService) archiveSource(ctx context.Context, input SubmitInput) string {
	if s.archive == nil {
		return ""
	}
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	key, err := s.archive.Store(ctxStorage.ctx, input.InterviewID, input.CandidateID, input.QuestionID, input.Code)
	if err != nil {
		logger.Warn(ctx, "archive source failed",
			zap.Int64("interview_id", input.InterviewID), zap.Int64("question_id", input.QuestionID), zap.Error(err))
		return ""
	}
	return key
}

func newSubmissionView(sub model.Submission) SubmissionView {
	return SubmissionView{
		ID:            sub.ID,
		QuestionID:    sub.QuestionID,
		Language:      sub.Language,
		Code:          sub.Code,
		AttemptNumber: sub.AttemptNumber,
		SubmittedAt:   sub.SubmittedAt,
		Evaluation:    sub.Evaluation,
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
