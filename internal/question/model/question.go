package model

import "time"

// Difficulty is the catalog tier of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

const StatusActive = "active"

// TestCase is one stdin/expected-stdout pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// Question is a read-only catalog entry.
type Question struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Status      string     `json:"status"`
	TestCases   []TestCase `json:"testCases"`
}

// InterviewQuestion binds a question to an interview at a fixed position.
type InterviewQuestion struct {
	ID          int64
	InterviewID int64
	QuestionID  int64
	OrderIndex  int
	Question    *Question
	CreatedAt   time.Time
}
