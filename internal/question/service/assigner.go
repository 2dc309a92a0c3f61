package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"hirejudge/internal/metrics"
	"hirejudge/internal/question/model"
	"hirejudge/internal/question/repository"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// QuestionsPerInterview is the size of every coding interview's question set.
const QuestionsPerInterview = 2

// Selection policies, in order of preference.
const (
	PolicyMediumEasy = "medium_easy"
	PolicyTwoMedium  = "two_medium"
	PolicyTwoEasy    = "two_easy"
	PolicyAnyTwo     = "any_two"
)

// AssignerConfig holds assigner dependencies.
type AssignerConfig struct {
	QuestionRepo          repository.QuestionRepository
	InterviewQuestionRepo repository.InterviewQuestionRepository
	// Rand picks questions; nil uses a time-seeded source.
	Rand    *rand.Rand
	Timeout time.Duration
}

// AssignerService binds a question pair to coding interviews.
type AssignerService struct {
	questionRepo          repository.QuestionRepository
	interviewQuestionRepo repository.InterviewQuestionRepository
	timeout               time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// AssignResult is the question set bound to an interview.
type AssignResult struct {
	InterviewID int64                     `json:"interviewId"`
	Policy      string                    `json:"policy,omitempty"`
	Questions   []model.InterviewQuestion `json:"questions"`
	// Existing is true when the rows were already present and nothing was written.
	Existing bool `json:"existing"`
}

// NewAssignerService validates cfg and builds the service.
func NewAssignerService(cfg AssignerConfig) (*AssignerService, error) {
	if cfg.QuestionRepo == nil {
		return nil, fmt.Errorf("question repository is required")
	}
	if cfg.InterviewQuestionRepo == nil {
		return nil, fmt.Errorf("interview question repository is required")
	}
	r := cfg.Rand
	if r == nil {
		now := uint64(time.Now().UnixNano())
		r = rand.New(rand.NewPCG(now, now>>1|1))
	}
	return &AssignerService{
		questionRepo:          cfg.QuestionRepo,
		interviewQuestionRepo: cfg.InterviewQuestionRepo,
		rand:                  r,
		timeout:               cfg.Timeout,
	}, nil
}

// AssignQuestions selects two distinct active questions and binds them to the interview.
// An interview that already has questions gets its existing set back.
func (s *AssignerService) AssignQuestions(ctx context.Context, interviewID int64) (*AssignResult, error) {
	if interviewID <= 0 {
		return nil, appErr.ValidationError("interview_id", "required")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	existing, err := s.interviewQuestionRepo.ListByInterview(ctx, interviewID)
	if err != nil {
		metrics.QuestionAssignmentsTotal.WithLabelValues("failed").Inc()
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list interview questions failed")
	}
	if len(existing) > 0 {
		metrics.QuestionAssignmentsTotal.WithLabelValues("exists").Inc()
		return &AssignResult{InterviewID: interviewID, Questions: existing, Existing: true}, nil
	}

	pool, err := s.questionRepo.ActivePool(ctx)
	if err != nil {
		metrics.QuestionAssignmentsTotal.WithLabelValues("failed").Inc()
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load question pool failed")
	}
	picked, policy, err := s.selectPair(pool)
	if err != nil {
		metrics.QuestionAssignmentsTotal.WithLabelValues("insufficient").Inc()
		return nil, err
	}
	if policy != PolicyMediumEasy {
		logger.Warn(ctx, "degraded question selection",
			zap.Int64("interview_id", interviewID), zap.String("policy", policy))
	}

	ids := make([]int64, len(picked))
	for i, q := range picked {
		ids[i] = q.ID
	}
	rows, err := s.interviewQuestionRepo.Assign(ctx, interviewID, ids)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyAssigned) {
			// A concurrent assignment won; report its rows.
			current, listErr := s.interviewQuestionRepo.ListByInterview(ctx, interviewID)
			if listErr != nil {
				return nil, appErr.Wrapf(listErr, appErr.DatabaseError, "list interview questions failed")
			}
			metrics.QuestionAssignmentsTotal.WithLabelValues("exists").Inc()
			return &AssignResult{InterviewID: interviewID, Questions: current, Existing: true}, nil
		}
		metrics.QuestionAssignmentsTotal.WithLabelValues("failed").Inc()
		return nil, appErr.Wrapf(err, appErr.QuestionAssignFailed, "assign questions failed")
	}
	for i := range rows {
		q := picked[i]
		rows[i].Question = &q
	}
	metrics.QuestionAssignmentsTotal.WithLabelValues("assigned").Inc()
	logger.Info(ctx, "questions assigned",
		zap.Int64("interview_id", interviewID), zap.Int64s("question_ids", ids), zap.String("policy", policy))
	return &AssignResult{InterviewID: interviewID, Policy: policy, Questions: rows}, nil
}

// selectPair applies the selection policies in order. The returned slice has
// the first question at order index 0.
func (s *AssignerService) selectPair(pool []model.Question) ([]model.Question, string, error) {
	active := make([]model.Question, 0, len(pool))
	seen := make(map[int64]struct{}, len(pool))
	for _, q := range pool {
		if q.Status != "" && q.Status != model.StatusActive {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		active = append(active, q)
	}
	if len(active) < QuestionsPerInterview {
		return nil, "", appErr.Newf(appErr.InsufficientQuestionPool,
			"need at least %d active questions, found %d", QuestionsPerInterview, len(active)).
			WithDetail("available", len(active))
	}

	var medium, easy []model.Question
	for _, q := range active {
		switch q.Difficulty {
		case model.DifficultyMedium:
			medium = append(medium, q)
		case model.DifficultyEasy:
			easy = append(easy, q)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(medium) >= 1 && len(easy) >= 1:
		return []model.Question{s.pick(medium), s.pick(easy)}, PolicyMediumEasy, nil
	case len(medium) >= 2:
		return s.pickTwo(medium), PolicyTwoMedium, nil
	case len(easy) >= 2:
		return s.pickTwo(easy), PolicyTwoEasy, nil
	default:
		return s.pickTwo(active), PolicyAnyTwo, nil
	}
}

func (s *AssignerService) pick(qs []model.Question) model.Question {
	return qs[s.rand.IntN(len(qs))]
}

func (s *AssignerService) pickTwo(qs []model.Question) []model.Question {
	i := s.rand.IntN(len(qs))
	j := s.rand.IntN(len(qs) - 1)
	if j >= i {
		j++
	}
	return []model.Question{qs[i], qs[j]}
}
