package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hirejudge/internal/interview/model"
	"hirejudge/internal/interview/repository"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	reasonFuture  = "future"
	reasonExpired = "expired"
)

// LifecycleConfig holds LifecycleService dependencies.
type LifecycleConfig struct {
	InterviewRepo repository.InterviewRepository
	OrgRepo       repository.OrganizationRepository
	Assigner      QuestionAssigner
	Timeout       time.Duration
	Now           func() time.Time
}

// LifecycleService moves single interviews through their states.
type LifecycleService struct {
	interviewRepo repository.InterviewRepository
	orgRepo       repository.OrganizationRepository
	assigner      QuestionAssigner
	timeout       time.Duration
	now           func() time.Time
}

// StatusView is the interview state returned after a transition.
type StatusView struct {
	InterviewID   int64        `json:"interviewId"`
	Status        model.Status `json:"status"`
	TimeSlotStart time.Time    `json:"timeSlotStart"`
	TimeSlotEnd   time.Time    `json:"timeSlotEnd"`
	StartedAt     *time.Time   `json:"startedAt,omitempty"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

// ReassignView reports a manual question assignment.
type ReassignView struct {
	InterviewID       int64 `json:"interviewId"`
	QuestionsAssigned int   `json:"questionsAssigned"`
}

func NewLifecycleService(cfg LifecycleConfig) (*LifecycleService, error) {
	if cfg.InterviewRepo == nil {
		return nil, fmt.Errorf("interview repository is required")
	}
	if cfg.OrgRepo == nil {
		return nil, fmt.Errorf("organization repository is required")
	}
	if cfg.Assigner == nil {
		return nil, fmt.Errorf("question assigner is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LifecycleService{
		interviewRepo: cfg.InterviewRepo,
		orgRepo:       cfg.OrgRepo,
		assigner:      cfg.Assigner,
		timeout:       cfg.Timeout,
		now:           cfg.Now,
	}, nil
}

// Start opens the interview for its candidate when now lies inside the slot.
// A slot that already ended is marked expired.
func (s *LifecycleService) Start(ctx context.Context, interviewID, candidateID int64) (*StatusView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	iv, err := s.loadForCandidate(ctx, interviewID, candidateID)
	if err != nil {
		return nil, err
	}
	if !iv.Status.Startable() {
		return nil, appErr.New(appErr.InterviewNotStartable).WithDetail("status", string(iv.Status))
	}

	now := s.now().UTC()
	if now.Before(iv.TimeSlotStart) {
		return nil, windowError(appErr.InterviewNotStarted, reasonFuture, iv)
	}
	if now.After(iv.TimeSlotEnd) {
		err := s.interviewRepo.TransitionStatus(ctx, nil, iv.ID,
			[]model.Status{model.StatusPending, model.StatusScheduled}, model.StatusExpired, now)
		if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
			logger.Warn(ctx, "mark interview expired failed", zap.Int64("interview_id", iv.ID), zap.Error(err))
		}
		return nil, windowError(appErr.InterviewExpired, reasonExpired, iv)
	}

	if err := s.transition(ctx, iv, model.StatusInProgress, now); err != nil {
		return nil, err
	}
	iv.Status = model.StatusInProgress
	iv.StartedAt = &now
	logger.Info(ctx, "interview started", zap.Int64("interview_id", iv.ID), zap.Int64("candidate_id", candidateID))
	return newStatusView(iv), nil
}

// Complete closes an in-progress interview for its candidate.
func (s *LifecycleService) Complete(ctx context.Context, interviewID, candidateID int64) (*StatusView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	iv, err := s.loadForCandidate(ctx, interviewID, candidateID)
	if err != nil {
		return nil, err
	}
	if iv.Status != model.StatusInProgress {
		return nil, appErr.New(appErr.InterviewNotActive).WithDetail("status", string(iv.Status))
	}
	now := s.now().UTC()
	if err := s.transition(ctx, iv, model.StatusCompleted, now); err != nil {
		return nil, err
	}
	iv.Status = model.StatusCompleted
	iv.CompletedAt = &now
	logger.Info(ctx, "interview completed", zap.Int64("interview_id", iv.ID))
	return newStatusView(iv), nil
}

// Cancel withdraws a pending or scheduled interview of the recruiter's organization.
func (s *LifecycleService) Cancel(ctx context.Context, interviewID, recruiterID int64) (*StatusView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	iv, err := s.loadForRecruiter(ctx, interviewID, recruiterID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(iv.Status, model.StatusCancelled) {
		return nil, appErr.New(appErr.InvalidStatusChange).
			WithDetail("from", string(iv.Status)).
			WithDetail("to", string(model.StatusCancelled))
	}
	if err := s.transition(ctx, iv, model.StatusCancelled, s.now().UTC()); err != nil {
		return nil, err
	}
	iv.Status = model.StatusCancelled
	logger.Info(ctx, "interview cancelled", zap.Int64("interview_id", iv.ID), zap.Int64("recruiter_id", recruiterID))
	return newStatusView(iv), nil
}

// ReassignQuestions lets a recruiter retry question selection for a coding interview.
// Interviews that already have questions keep them.
func (s *LifecycleService) ReassignQuestions(ctx context.Context, interviewID, recruiterID int64) (*ReassignView, error) {
	iv, err := s.loadForRecruiter(ctx, interviewID, recruiterID)
	if err != nil {
		return nil, err
	}
	if iv.Type != model.TypeCoding {
		return nil, appErr.ValidationError("interviewType", "questions are only assigned to coding interviews")
	}
	if iv.Status.Terminal() {
		return nil, appErr.New(appErr.InvalidStatusChange).WithDetail("status", string(iv.Status))
	}
	count, err := s.assigner.AssignQuestions(ctx, iv.ID)
	if err != nil {
		return nil, err
	}
	return &ReassignView{InterviewID: iv.ID, QuestionsAssigned: count}, nil
}

func (s *LifecycleService) loadForCandidate(ctx context.Context, interviewID, candidateID int64) (*model.Interview, error) {
	iv, err := s.load(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.CandidateID != candidateID {
		return nil, appErr.New(appErr.InterviewAccessDenied)
	}
	return iv, nil
}

func (s *LifecycleService) loadForRecruiter(ctx context.Context, interviewID, recruiterID int64) (*model.Interview, error) {
	orgID, err := s.orgRepo.ResolveOrganization(ctx, recruiterID)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			return nil, appErr.New(appErr.OrganizationNotResolved)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "resolve organization failed")
	}
	iv, err := s.load(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.OrganizationID != orgID {
		return nil, appErr.New(appErr.InterviewAccessDenied)
	}
	return iv, nil
}

func (s *LifecycleService) load(ctx context.Context, interviewID int64) (*model.Interview, error) {
	iv, err := s.interviewRepo.GetByID(ctx, nil, interviewID)
	if err != nil {
		if errors.Is(err, repository.ErrInterviewNotFound) {
			return nil, appErr.New(appErr.InterviewNotFound).WithDetail("interviewId", interviewID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get interview failed")
	}
	return iv, nil
}

// transition applies a guarded status update from the interview's observed status.
func (s *LifecycleService) transition(ctx context.Context, iv *model.Interview, to model.Status, at time.Time) error {
	err := s.interviewRepo.TransitionStatus(ctx, nil, iv.ID, []model.Status{iv.Status}, to, at)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStatusConflict) {
		return appErr.New(appErr.InvalidStatusChange).
			WithMessage("interview status changed, please reload").
			WithDetail("to", string(to))
	}
	return appErr.Wrapf(err, appErr.DatabaseError, "update interview status failed")
}

func (s *LifecycleService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func windowError(code appErr.ErrorCode, reason string, iv *model.Interview) error {
	return appErr.New(code).
		WithDetail("reason", reason).
		WithDetail("timeSlotStart", iv.TimeSlotStart.UTC().Format(time.RFC3339)).
		WithDetail("timeSlotEnd", iv.TimeSlotEnd.UTC().Format(time.RFC3339))
}

func newStatusView(iv *model.Interview) *StatusView {
	return &StatusView{
		InterviewID:   iv.ID,
		Status:        iv.Status,
		TimeSlotStart: iv.TimeSlotStart,
		TimeSlotEnd:   iv.TimeSlotEnd,
		StartedAt:     iv.StartedAt,
		CompletedAt:   iv.CompletedAt,
	}
}
