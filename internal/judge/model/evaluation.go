package model

// Outcome classifies one test case run.
type Outcome string

const (
	OutcomePassed           Outcome = "PASSED"
	OutcomeWrongAnswer      Outcome = "WRONG_ANSWER"
	OutcomeCompilationError Outcome = "COMPILATION_ERROR"
	OutcomeRuntimeError     Outcome = "RUNTIME_ERROR"
	OutcomeTimeout          Outcome = "TIMEOUT"
	OutcomeError            Outcome = "ERROR"
)

// TestCaseResult is the normalized result of one test case.
type TestCaseResult struct {
	Index          int     `json:"testCase"`
	Outcome        Outcome `json:"status"`
	Passed         bool    `json:"passed"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	ActualOutput   string  `json:"actualOutput"`
	Error          string  `json:"error,omitempty"`
	TimeMs         float64 `json:"executionTime"`
	MemoryKB       float64 `json:"memoryUsage"`
	Feedback       string  `json:"feedback"`
}

// Evaluation aggregates every test case run for one submission.
type Evaluation struct {
	Score           float64          `json:"score"`
	TestCasesPassed int              `json:"testCasesPassed"`
	TotalTestCases  int              `json:"totalTestCases"`
	ExecutionTimeMs float64          `json:"executionTime"`
	MemoryKB        float64          `json:"memoryUsage"`
	Output          string           `json:"output"`
	Error           string           `json:"error"`
	Feedback        string           `json:"feedback"`
	Results         []TestCaseResult `json:"testResults"`
}
