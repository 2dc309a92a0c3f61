package model

import "time"

// Status is the lifecycle state of an interview.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// Mode says whether an interviewer is present.
type Mode string

const (
	ModeLive  Mode = "live"
	ModeAsync Mode = "async"
)

// Type is the interview format.
type Type string

const (
	TypeCoding       Type = "coding"
	TypeTechnical    Type = "technical"
	TypeBehavioral   Type = "behavioral"
	TypeSystemDesign Type = "system_design"
	TypeCaseStudy    Type = "case_study"
)

// Valid reports whether t is a known interview type.
func (t Type) Valid() bool {
	switch t {
	case TypeCoding, TypeTechnical, TypeBehavioral, TypeSystemDesign, TypeCaseStudy:
		return true
	}
	return false
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLive || m == ModeAsync
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusScheduled, StatusInProgress, StatusCancelled, StatusExpired},
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusExpired},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether an interview may move from one status to another.
// Completed, cancelled and expired are terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Startable reports whether an interview in status s may be started.
func (s Status) Startable() bool {
	return s == StatusPending || s == StatusScheduled
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Interview is one scheduled assessment session bound to an application.
type Interview struct {
	ID              int64
	ApplicationID   int64
	CandidateID     int64
	JobID           int64
	OrganizationID  int64
	TimeSlotStart   time.Time
	TimeSlotEnd     time.Time
	ScheduledAt     time.Time
	DurationMinutes int
	Mode            Mode
	Type            Type
	Status          Status
	Notes           string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Application links a candidate to a job. One per (job, candidate).
type Application struct {
	ID             int64
	JobID          int64
	CandidateID    int64
	OrganizationID int64
	CreatedBy      int64
	Status         string
	CreatedAt      time.Time
}

// Candidate is a platform user with the candidate role.
type Candidate struct {
	ID                int64
	Email             string
	Name              string
	Phone             string
	ResumeURL         string
	YearsOfExperience int
}

// Job is the slice of the job record the engine needs.
type Job struct {
	ID             int64
	OrganizationID int64
	Title          string
}
