package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "hirejudge/pkg/errors"
)

const (
	MinDays            = 1
	MaxDays            = 365
	MinDurationMinutes = 1
	MaxDurationMinutes = 480
)

// SlotRequest is the scheduling window a recruiter submits.
type SlotRequest struct {
	CandidateCount  int
	NumberOfDays    int
	StartTime       string // HH:mm
	EndTime         string // HH:mm
	DurationMinutes int
}

// Slot is a time-of-day interval, in minutes after midnight.
type Slot struct {
	StartMinute int
	EndMinute   int
}

// Start returns the slot start on day's calendar date, as wall-clock time in
// day's location.
func (s Slot) Start(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), s.StartMinute/60, s.StartMinute%60, 0, 0, day.Location())
}

// Label renders the slot as HH:mm-HH:mm.
func (s Slot) Label() string {
	return formatMinute(s.StartMinute) + "-" + formatMinute(s.EndMinute)
}

// SlotPlan is the per-day slot list repeated across the window's days.
type SlotPlan struct {
	Slots        []Slot
	NumberOfDays int
	SlotsPerDay  int
	TotalSlots   int
	// Parallelism is how many candidates share one slot coordinate.
	Parallelism int
}

// Coordinate is the (day, slot) pair assigned to one chunk of candidates.
type Coordinate struct {
	Day  int
	Slot Slot
}

// PlanSlots computes the daily slots and the parallelism needed to fit every candidate.
func PlanSlots(req SlotRequest) (SlotPlan, error) {
	if req.NumberOfDays < MinDays || req.NumberOfDays > MaxDays {
		return SlotPlan{}, invalidSchedule("numberOfDays", fmt.Sprintf("must be between %d and %d", MinDays, MaxDays))
	}
	if req.DurationMinutes < MinDurationMinutes || req.DurationMinutes > MaxDurationMinutes {
		return SlotPlan{}, invalidSchedule("durationMinutes", fmt.Sprintf("must be between %d and %d", MinDurationMinutes, MaxDurationMinutes))
	}
	if req.CandidateCount < 0 {
		return SlotPlan{}, invalidSchedule("candidates", "count cannot be negative")
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		return SlotPlan{}, invalidSchedule("startTime", err.Error())
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		return SlotPlan{}, invalidSchedule("endTime", err.Error())
	}
	if end <= start {
		return SlotPlan{}, invalidSchedule("endTime", "must be after startTime")
	}

	slotsPerDay := (end - start) / req.DurationMinutes
	totalSlots := slotsPerDay * req.NumberOfDays
	if totalSlots == 0 {
		return SlotPlan{}, pkgerrors.Newf(pkgerrors.InvalidSchedule,
			"window %s-%s is shorter than one %d minute interview", req.StartTime, req.EndTime, req.DurationMinutes).
			WithDetail("field", "durationMinutes")
	}

	slots := make([]Slot, 0, slotsPerDay)
	for s := start; s+req.DurationMinutes <= end; s += req.DurationMinutes {
		slots = append(slots, Slot{StartMinute: s, EndMinute: s + req.DurationMinutes})
	}

	parallelism := 1
	if req.CandidateCount > totalSlots {
		parallelism = (req.CandidateCount + totalSlots - 1) / totalSlots
	}
	return SlotPlan{
		Slots:        slots,
		NumberOfDays: req.NumberOfDays,
		SlotsPerDay:  slotsPerDay,
		TotalSlots:   totalSlots,
		Parallelism:  parallelism,
	}, nil
}

// Coordinate maps chunk i onto a (day, slot) pair, walking days outer and slots inner.
func (p SlotPlan) Coordinate(i int) Coordinate {
	idx := i % p.TotalSlots
	return Coordinate{Day: idx / p.SlotsPerDay, Slot: p.Slots[idx%p.SlotsPerDay]}
}

// Chunk splits n candidate indexes into consecutive groups of Parallelism.
func (p SlotPlan) Chunk(n int) [][]int {
	size := p.Parallelism
	if size < 1 {
		size = 1
	}
	chunks := make([][]int, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		chunk := make([]int, 0, hi-lo)
		for i := lo; i < hi; i++ {
			chunk = append(chunk, i)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func parseClock(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%q is not in HH:mm format", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", v)
	}
	return h*60 + m, nil
}

func formatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func invalidSchedule(field, reason string) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.InvalidSchedule, "%s %s", field, reason).
		WithDetail("field", field).
		WithDetail("reason", reason)
}
