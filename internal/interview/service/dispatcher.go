package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"hirejudge/internal/common/db"
	"hirejudge/internal/interview/model"
	"hirejudge/internal/interview/repository"
	"hirejudge/internal/metrics"
	"hirejudge/internal/notify"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	dateLayout = "2006-01-02"

	defaultMaxCandidates = 500
	defaultNotifyTimeout = 10 * time.Second
)

// Transactor runs fn inside one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// QuestionAssigner binds questions to a freshly created coding interview.
type QuestionAssigner interface {
	// AssignQuestions returns how many questions the interview now has.
	AssignQuestions(ctx context.Context, interviewID int64) (int, error)
}

// AssignerFunc adapts a function to QuestionAssigner.
type AssignerFunc func(ctx context.Context, interviewID int64) (int, error)

func (f AssignerFunc) AssignQuestions(ctx context.Context, interviewID int64) (int, error) {
	return f(ctx, interviewID)
}

// AssignmentConfig holds AssignmentService dependencies and settings.
type AssignmentConfig struct {
	DB              Transactor
	OrgRepo         repository.OrganizationRepository
	JobRepo         repository.JobRepository
	CandidateRepo   repository.CandidateRepository
	ApplicationRepo repository.ApplicationRepository
	InterviewRepo   repository.InterviewRepository
	Assigner        QuestionAssigner
	// Notifications is optional; without it no invitations are sent.
	Notifications notify.Queue
	// NotifyTimeout bounds the background hand-off of one request's invitations.
	NotifyTimeout time.Duration
	// MaxCandidates caps one request's batch.
	MaxCandidates int
	// Location anchors dates and slot times; defaults to UTC.
	Location *time.Location
	// CandidateTimeout bounds the work done for one candidate.
	CandidateTimeout time.Duration
	// PasswordCost is the bcrypt cost for generated candidate passwords.
	PasswordCost int
	Now          func() time.Time
}

// AssignmentService schedules batches of candidates onto interview slots.
type AssignmentService struct {
	db               Transactor
	orgRepo          repository.OrganizationRepository
	jobRepo          repository.JobRepository
	candidateRepo    repository.CandidateRepository
	applicationRepo  repository.ApplicationRepository
	interviewRepo    repository.InterviewRepository
	assigner         QuestionAssigner
	notifications    notify.Queue
	notifyTimeout    time.Duration
	maxCandidates    int
	pending          sync.WaitGroup
	location         *time.Location
	candidateTimeout time.Duration
	passwordCost     int
	now              func() time.Time
}

// CandidateInput is one candidate entry of a bulk request.
type CandidateInput struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	ResumeURL         string `json:"resumeUrl"`
	YearsOfExperience int    `json:"yearsOfExperience"`
}

// BulkAssignInput is a recruiter's bulk scheduling request.
type BulkAssignInput struct {
	RecruiterID     int64
	JobID           int64
	Candidates      []CandidateInput
	NumberOfDays    int
	StartTime       string
	EndTime         string
	InterviewType   model.Type
	DurationMinutes int
	Mode            model.Mode
	Notes           string
	// StartDate is the first scheduling day (YYYY-MM-DD); empty means tomorrow.
	StartDate string
}

// CandidateResult is the outcome for one candidate.
type CandidateResult struct {
	Email             string     `json:"email"`
	Status            string     `json:"status"`
	Message           string     `json:"message"`
	CandidateID       int64      `json:"candidateId,omitempty"`
	ApplicationID     int64      `json:"applicationId,omitempty"`
	InterviewID       int64      `json:"interviewId,omitempty"`
	TimeSlotStart     *time.Time `json:"timeSlotStart,omitempty"`
	TimeSlotEnd       *time.Time `json:"timeSlotEnd,omitempty"`
	QuestionsAssigned int        `json:"questionsAssigned"`

	name string
}

// BulkAssignResult summarizes a bulk request.
type BulkAssignResult struct {
	Successful   int               `json:"successful"`
	Failed       int               `json:"failed"`
	Parallelism  int               `json:"parallelism"`
	SlotsPerDay  int               `json:"slotsPerDay"`
	TotalSlots   int               `json:"totalSlots"`
	NumberOfDays int               `json:"numberOfDays"`
	StartDate    string            `json:"startDate"`
	Results      []CandidateResult `json:"results"`
}

// NewAssignmentService validates cfg and builds the service.
func NewAssignmentService(cfg AssignmentConfig) (*AssignmentService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.OrgRepo == nil {
		return nil, fmt.Errorf("organization repository is required")
	}
	if cfg.JobRepo == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if cfg.CandidateRepo == nil {
		return nil, fmt.Errorf("candidate repository is required")
	}
	if cfg.ApplicationRepo == nil {
		return nil, fmt.Errorf("application repository is required")
	}
	if cfg.InterviewRepo == nil {
		return nil, fmt.Errorf("interview repository is required")
	}
	if cfg.Assigner == nil {
		return nil, fmt.Errorf("question assigner is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CandidateTimeout <= 0 {
		cfg.CandidateTimeout = 15 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AssignmentService{
		db:               cfg.DB,
		orgRepo:          cfg.OrgRepo,
		jobRepo:          cfg.JobRepo,
		candidateRepo:    cfg.CandidateRepo,
		applicationRepo:  cfg.ApplicationRepo,
		interviewRepo:    cfg.InterviewRepo,
		assigner:         cfg.Assigner,
		notifications:    cfg.Notifications,
		notifyTimeout:    cfg.NotifyTimeout,
		maxCandidates:    cfg.MaxCandidates,
		location:         cfg.Location,
		candidateTimeout: cfg.CandidateTimeout,
		passwordCost:     cfg.PasswordCost,
		now:              cfg.Now,
	}, nil
}

// AssignBulk validates the request, plans slots and schedules every candidate.
// Configuration and ownership errors are returned before anything is written;
// per-candidate failures are reported in the result.
func (s *AssignmentService) AssignBulk(ctx context.Context, input BulkAssignInput) (*BulkAssignResult, error) {
	if err := validateBulkInput(&input); err != nil {
		return nil, err
	}
	if len(input.Candidates) > s.maxCandidates {
		return nil, appErr.ValidationError("candidates", fmt.Sprintf("at most %d candidates per request", s.maxCandidates)).
			WithDetail("maxCandidates", s.maxCandidates)
	}
	firstDay, err := s.resolveStartDate(input.StartDate)
	if err != nil {
		return nil, err
	}

	orgID, err := s.orgRepo.ResolveOrganization(ctx, input.RecruiterID)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			return nil, appErr.New(appErr.OrganizationNotResolved)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "resolve organization failed")
	}
	job, err := s.jobRepo.FindJob(ctx, input.JobID, orgID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, appErr.New(appErr.JobNotFound).WithDetail("jobId", input.JobID)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "find job failed")
	}

	plan, err := PlanSlots(SlotRequest{
		CandidateCount:  len(input.Candidates),
		NumberOfDays:    input.NumberOfDays,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		DurationMinutes: input.DurationMinutes,
	})
	if err != nil {
		return nil, err
	}

	rejected := screenCandidates(input.Candidates)
	results := make([]CandidateResult, len(input.Candidates))
	for chunkIdx, chunk := range plan.Chunk(len(input.Candidates)) {
		if ctx.Err() != nil {
			for _, i := range chunk {
				results[i] = failure(input.Candidates[i].Email, "request cancelled")
			}
			continue
		}
		coord := plan.Coordinate(chunkIdx)
		day := firstDay.AddDate(0, 0, coord.Day)
		start := coord.Slot.Start(day)
		end := start.Add(time.Duration(input.DurationMinutes) * time.Minute)

		group := threading.NewRoutineGroup()
		for _, i := range chunk {
			i := i
			group.RunSafe(func() {
				if r, bad := rejected[i]; bad {
					results[i] = r
					return
				}
				results[i] = s.assignOne(ctx, input, input.Candidates[i], job, orgID, start, end)
			})
		}
		group.Wait()
		// RunSafe recovers panics; an empty slot means the goroutine died.
		for _, i := range chunk {
			if results[i].Status == "" {
				results[i] = failure(input.Candidates[i].Email, "internal error")
			}
		}
	}

	out := &BulkAssignResult{
		Parallelism:  plan.Parallelism,
		SlotsPerDay:  plan.SlotsPerDay,
		TotalSlots:   plan.TotalSlots,
		NumberOfDays: plan.NumberOfDays,
		StartDate:    firstDay.Format(dateLayout),
		Results:      results,
	}
	for _, r := range results {
		if r.Status == ResultSuccess {
			out.Successful++
		} else {
			out.Failed++
		}
		metrics.AssignmentsTotal.WithLabelValues(r.Status).Inc()
	}

	s.enqueueNotifications(ctx, input, job, results)
	logger.Info(ctx, "bulk assignment finished",
		zap.Int64("job_id", input.JobID),
		zap.Int("successful", out.Successful),
		zap.Int("failed", out.Failed),
		zap.Int("parallelism", plan.Parallelism))
	return out, nil
}

func (s *AssignmentService) assignOne(ctx context.Context, input BulkAssignInput, ci CandidateInput, job *model.Job, orgID int64, start, end time.Time) CandidateResult {
	email := strings.ToLower(strings.TrimSpace(ci.Email))
	ctxCand, cancel := context.WithTimeout(ctx, s.candidateTimeout)
	defer cancel()

	var (
		candidate *model.Candidate
		app       *model.Application
		iv        *model.Interview
		err       error
	)
	// A concurrent request may create the same candidate or application
	// between our lookup and insert; one retry sees the committed row.
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.Transaction(ctxCand, func(tx db.Transaction) error {
			var txErr error
			candidate, txErr = s.findOrCreateCandidate(ctxCand, tx, email, ci)
			if txErr != nil {
				return txErr
			}
			app, txErr = s.findOrCreateApplication(ctxCand, tx, job, orgID, candidate.ID, input.RecruiterID)
			if txErr != nil {
				return txErr
			}
			iv = &model.Interview{
				ApplicationID:   app.ID,
				CandidateID:     candidate.ID,
				JobID:           job.ID,
				OrganizationID:  orgID,
				TimeSlotStart:   start,
				TimeSlotEnd:     end,
				ScheduledAt:     start,
				DurationMinutes: input.DurationMinutes,
				Mode:            input.Mode,
				Type:            input.InterviewType,
				Status:          model.StatusScheduled,
				Notes:           input.Notes,
			}
			id, txErr := s.interviewRepo.Create(ctxCand, tx, iv)
			if txErr != nil {
				return fmt.Errorf("create interview: %w", txErr)
			}
			iv.ID = id
			return nil
		})
		if !errors.Is(err, repository.ErrCandidateExists) && !errors.Is(err, repository.ErrApplicationExists) {
			break
		}
	}
	if err != nil {
		logger.Warn(ctx, "schedule candidate failed",
			zap.String("email", email), zap.Int64("job_id", job.ID), zap.Error(err))
		return failure(email, candidateFailureMessage(err))
	}

	startUTC, endUTC := start.UTC(), end.UTC()
	res := CandidateResult{
		Email:         email,
		Status:        ResultSuccess,
		Message:       "interview scheduled",
		CandidateID:   candidate.ID,
		ApplicationID: app.ID,
		InterviewID:   iv.ID,
		TimeSlotStart: &startUTC,
		TimeSlotEnd:   &endUTC,
		name:          candidate.Name,
	}
	if input.InterviewType != model.TypeCoding {
		return res
	}
	count, err := s.assigner.AssignQuestions(ctxCand, iv.ID)
	if err != nil {
		logger.Warn(ctx, "assign questions failed",
			zap.Int64("interview_id", iv.ID), zap.Error(err))
		res.Message = "interview scheduled; question assignment failed: " + appErr.GetError(err).Message
		return res
	}
	res.QuestionsAssigned = count
	return res
}

func (s *AssignmentService) findOrCreateCandidate(ctx context.Context, tx db.Transaction, email string, ci CandidateInput) (*model.Candidate, error) {
	c, err := s.candidateRepo.GetByEmail(ctx, tx, email)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrCandidateNotFound) {
		return nil, fmt.Errorf("find candidate: %w", err)
	}
	hash, err := s.randomPasswordHash()
	if err != nil {
		return nil, err
	}
	c = &model.Candidate{
		Email:             email,
		Name:              strings.TrimSpace(ci.Name),
		Phone:             strings.TrimSpace(ci.Phone),
		ResumeURL:         strings.TrimSpace(ci.ResumeURL),
		YearsOfExperience: ci.YearsOfExperience,
	}
	id, err := s.candidateRepo.Create(ctx, tx, c, hash)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

func (s *AssignmentService) findOrCreateApplication(ctx context.Context, tx db.Transaction, job *model.Job, orgID, candidateID, recruiterID int64) (*model.Application, error) {
	app, err := s.applicationRepo.GetByJobAndCandidate(ctx, tx, job.ID, candidateID)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, repository.ErrApplicationNotFound) {
		return nil, fmt.Errorf("find application: %w", err)
	}
	app = &model.Application{
		JobID:          job.ID,
		CandidateID:    candidateID,
		OrganizationID: orgID,
		CreatedBy:      recruiterID,
	}
	id, err := s.applicationRepo.Create(ctx, tx, app)
	if err != nil {
		return nil, err
	}
	app.ID = id
	return app, nil
}

// randomPasswordHash gives new candidates an unusable password until they reset it.
func (s *AssignmentService) randomPasswordHash() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(base64.RawURLEncoding.EncodeToString(buf)), s.passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func candidateFailureMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out scheduling candidate"
	case errors.Is(err, repository.ErrCandidateExists), errors.Is(err, repository.ErrApplicationExists):
		return "concurrent update, please retry"
	}
	return "failed to schedule interview"
}

// screenCandidates rejects malformed and repeated emails before any slot work.
func screenCandidates(candidates []CandidateInput) map[int]CandidateResult {
	rejected := make(map[int]CandidateResult)
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			rejected[i] = failure(c.Email, "invalid email")
			continue
		}
		if _, dup := seen[email]; dup {
			rejected[i] = failure(email, "duplicate candidate in request")
			continue
		}
		seen[email] = struct{}{}
	}
	return rejected
}

func failure(email, msg string) CandidateResult {
	return CandidateResult{Email: email, Status: ResultFailure, Message: msg}
}

func validateBulkInput(input *BulkAssignInput) error {
	if input.RecruiterID <= 0 {
		return appErr.New(appErr.Unauthorized)
	}
	if input.JobID <= 0 {
		return appErr.ValidationError("jobId", "required")
	}
	if len(input.Candidates) == 0 {
		return appErr.New(appErr.EmptyCandidates)
	}
	if !input.InterviewType.Valid() {
		return appErr.ValidationError("interviewType", "unsupported interview type")
	}
	if input.Mode == "" {
		input.Mode = model.ModeAsync
	}
	if !input.Mode.Valid() {
		return appErr.ValidationError("mode", "must be live or async")
	}
	return nil
}

func (s *AssignmentService) resolveStartDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		now := s.now().In(s.location)
		return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.location), nil
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), s.location)
	if err != nil {
		return time.Time{}, invalidSchedule("startDate", "must be YYYY-MM-DD")
	}
	return day, nil
}

// enqueueNotifications hands invitations for successful candidates to the
// queue in the background, so the response never waits on the broker.
func (s *AssignmentService) enqueueNotifications(ctx context.Context, input BulkAssignInput, job *model.Job, results []CandidateResult) {
	if s.notifications == nil {
		return
	}
	batch := make([]notify.Notification, 0, len(results))
	for _, r := range results {
		if r.Status != ResultSuccess {
			continue
		}
		batch = append(batch, notify.Notification{
			ID:    uuid.NewString(),
			Email: r.Email,
			Data: notify.TemplateData{
				InterviewID:     r.InterviewID,
				CandidateName:   r.name,
				JobTitle:        job.Title,
				InterviewType:   string(input.InterviewType),
				Mode:            string(input.Mode),
				DurationMinutes: input.DurationMinutes,
				TimeSlotStart:   *r.TimeSlotStart,
				TimeSlotEnd:     *r.TimeSlotEnd,
				Notes:           input.Notes,
			},
		})
	}
	if len(batch) == 0 {
		return
	}

	s.pending.Add(1)
	threading.GoSafe(func() {
		defer s.pending.Done()
		handoffCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifications.Enqueue(handoffCtx, batch...); err != nil {
			logger.Warn(handoffCtx, "enqueue notifications failed",
				zap.Int64("job_id", job.ID), zap.Int("count", len(batch)), zap.Error(err))
		}
	})
}

// WaitNotifications blocks until every in-flight notification hand-off has finished.
func (s *AssignmentService) WaitNotifications() {
	s.pending.Wait()
}
