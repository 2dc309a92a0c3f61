package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"hirejudge/internal/judge/client"
	"hirejudge/internal/judge/model"
	"hirejudge/internal/metrics"
	questionModel "hirejudge/internal/question/model"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 10
	defaultTestCaseTimeout = 30 * time.Second
	maxFeedbackOutput      = 200
)

// Judge is the execution service the evaluator drives.
type Judge interface {
	CreateSubmission(ctx context.Context, req client.SubmitRequest) (string, error)
	GetSubmission(ctx context.Context, token string) (*client.Result, error)
}

// Config holds evaluator dependencies and polling settings.
type Config struct {
	Judge            Judge
	PollInterval     time.Duration
	MaxPollAttempts  int
	TestCaseTimeout  time.Duration
	FallbackLanguage string
}

// Evaluator runs a submission against a question's test cases one at a time.
type Evaluator struct {
	judge            Judge
	pollInterval     time.Duration
	maxPollAttempts  int
	testCaseTimeout  time.Duration
	fallbackLanguage string
}

// EvaluateInput is one submission to grade.
type EvaluateInput struct {
	Code      string
	Language  string
	TestCases []questionModel.TestCase
}

// NewEvaluator validates cfg and fills defaults.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.TestCaseTimeout <= 0 {
		cfg.TestCaseTimeout = defaultTestCaseTimeout
	}
	if cfg.FallbackLanguage == "" {
		cfg.FallbackLanguage = DefaultLanguage
	}
	return &Evaluator{
		judge:            cfg.Judge,
		pollInterval:     cfg.PollInterval,
		maxPollAttempts:  cfg.MaxPollAttempts,
		testCaseTimeout:  cfg.TestCaseTimeout,
		fallbackLanguage: cfg.FallbackLanguage,
	}, nil
}

// Evaluate grades input. A failing test case never stops the remaining ones;
// only an empty test case list is an error.
func (e *Evaluator) Evaluate(ctx context.Context, input EvaluateInput) (*model.Evaluation, error) {
	if len(input.TestCases) == 0 {
		return nil, appErr.New(appErr.TestCaseInvalid)
	}
	langID, lang, known := LanguageID(input.Language, e.fallbackLanguage)
	if !known {
		logger.Warn(ctx, "unknown language, using fallback",
			zap.String("language", input.Language), zap.String("fallback", lang),
			zap.Strings("supported", Languages()))
	}
	source := DecodeSource(input.Code)

	start := time.Now()
	results := make([]model.TestCaseResult, 0, len(input.TestCases))
	var lastOutput, lastError string
	for i, tc := range input.TestCases {
		res, raw := e.runTestCase(ctx, i+1, source, langID, tc)
		results = append(results, res)
		metrics.JudgeTestCasesTotal.WithLabelValues(string(res.Outcome)).Inc()
		if raw != nil {
			lastOutput = raw.Stdout
			lastError = raw.Stderr
			if lastError == "" {
				lastError = raw.CompileOutput
			}
		}
	}
	metrics.JudgeEvaluationSeconds.WithLabelValues(lang).Observe(time.Since(start).Seconds())

	eval := Aggregate(results)
	eval.Output = lastOutput
	eval.Error = lastError
	return &eval, nil
}

// Aggregate scores results: score is the pass ratio as a percentage rounded to
// two decimals; time and memory are averaged over every case.
func Aggregate(results []model.TestCaseResult) model.Evaluation {
	eval := model.Evaluation{TotalTestCases: len(results), Results: results}
	if len(results) == 0 {
		return eval
	}
	feedback := make([]string, 0, len(results))
	var timeSum, memSum float64
	for _, r := range results {
		if r.Passed {
			eval.TestCasesPassed++
		}
		timeSum += r.TimeMs
		memSum += r.MemoryKB
		feedback = append(feedback, r.Feedback)
	}
	n := float64(len(results))
	eval.Score = round2(100 * float64(eval.TestCasesPassed) / n)
	eval.ExecutionTimeMs = round2(timeSum / n)
	eval.MemoryKB = round2(memSum / n)
	eval.Feedback = strings.Join(feedback, "\n")
	return eval
}

func (e *Evaluator) runTestCase(ctx context.Context, n int, source string, langID int, tc questionModel.TestCase) (model.TestCaseResult, *client.Result) {
	res := model.TestCaseResult{
		Index:          n,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
	}
	caseCtx, cancel := context.WithTimeout(ctx, e.testCaseTimeout)
	defer cancel()

	token, err := e.judge.CreateSubmission(caseCtx, client.SubmitRequest{
		SourceCode: source,
		LanguageID: langID,
		Stdin:      tc.Input,
	})
	if err != nil {
		return e.failure(ctx, caseCtx, res, err), nil
	}

	timer := time.NewTimer(e.pollInterval)
	defer timer.Stop()
	for attempt := 0; attempt < e.maxPollAttempts; attempt++ {
		select {
		case <-caseCtx.Done():
			return e.failure(ctx, caseCtx, res, caseCtx.Err()), nil
		case <-timer.C:
		}
		raw, err := e.judge.GetSubmission(caseCtx, token)
		if err != nil {
			return e.failure(ctx, caseCtx, res, err), nil
		}
		if raw.Pending() {
			timer.Reset(e.pollInterval)
			continue
		}
		return classify(res, raw), raw
	}
	res.Outcome = model.OutcomeTimeout
	res.Error = "judge did not finish in time"
	res.Feedback = fmt.Sprintf("Test case %d: Execution timed out", n)
	return res, nil
}

// failure maps a transport error or an expired per-case deadline onto a result.
func (e *Evaluator) failure(parent, caseCtx context.Context, res model.TestCaseResult, err error) model.TestCaseResult {
	if errors.Is(caseCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		res.Outcome = model.OutcomeTimeout
		res.Error = "test case deadline exceeded"
		res.Feedback = fmt.Sprintf("Test case %d: Execution timed out", res.Index)
		return res
	}
	logger.Warn(parent, "judge request failed", zap.Int("test_case", res.Index), zap.Error(err))
	res.Outcome = model.OutcomeError
	res.Error = err.Error()
	res.Feedback = fmt.Sprintf("Test case %d: Error - %s", res.Index, err.Error())
	return res
}

func classify(res model.TestCaseResult, raw *client.Result) model.TestCaseResult {
	res.ActualOutput = raw.Stdout
	res.TimeMs = raw.TimeMs
	res.MemoryKB = raw.MemoryKB
	n := res.Index

	switch id := raw.Status.ID; {
	case id == client.StatusAccepted || id == client.StatusWrongAnswer:
		if strings.TrimSpace(raw.Stdout) == strings.TrimSpace(res.ExpectedOutput) {
			res.Outcome = model.OutcomePassed
			res.Passed = true
			res.Feedback = fmt.Sprintf("Test case %d: Passed", n)
			return res
		}
		res.Outcome = model.OutcomeWrongAnswer
		res.Feedback = fmt.Sprintf("Test case %d: Wrong answer. Expected %q, got %q",
			n, truncate(strings.TrimSpace(res.ExpectedOutput)), truncate(strings.TrimSpace(raw.Stdout)))
	case id == client.StatusCompilationError:
		res.Outcome = model.OutcomeCompilationError
		res.Error = firstNonEmpty(raw.CompileOutput, raw.Stderr, raw.Message)
		res.Feedback = fmt.Sprintf("Test case %d: Compilation error - %s", n, truncate(res.Error))
	case id == client.StatusTimeLimit,
		id >= client.StatusRuntimeSIGSEGV && id <= client.StatusRuntimeOther,
		id == client.StatusExecFormatError:
		res.Outcome = model.OutcomeRuntimeError
		res.Error = firstNonEmpty(raw.Stderr, raw.Message, raw.Status.Description)
		res.Feedback = fmt.Sprintf("Test case %d: Runtime error (%s) - %s", n, raw.Status.Description, truncate(res.Error))
	default:
		res.Outcome = model.OutcomeError
		res.Error = firstNonEmpty(raw.Message, raw.Stderr, raw.Status.Description)
		res.Feedback = fmt.Sprintf("Test case %d: Error - %s", n, truncate(res.Error))
	}
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// truncate caps s at maxFeedbackOutput bytes without splitting a rune, so the
// result stays storable in a utf8mb4 column.
func truncate(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxFeedbackOutput {
		return s
	}
	cut := maxFeedbackOutput
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
