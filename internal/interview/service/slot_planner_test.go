package service

import (
	"testing"
	"time"
	_ "time/tzdata"

	pkgerrors "hirejudge/pkg/errors"
	"hirejudge/pkg/testutil"
)

func TestPlanSlotsExample(t *testing.T) {
	plan, err := PlanSlots(SlotRequest{
		CandidateCount:  6,
		NumberOfDays:    2,
		StartTime:       "10:00",
		EndTime:         "12:00",
		DurationMinutes: 60,
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, plan.SlotsPerDay, 2)
	testutil.AssertEqual(t, plan.TotalSlots, 4)
	testutil.AssertEqual(t, plan.Parallelism, 2)

	chunks := plan.Chunk(6)
	testutil.AssertEqual(t, len(chunks), 3)
	want := []Coordinate{
		{Day: 0, Slot: Slot{StartMinute: 600, EndMinute: 660}},
		{Day: 0, Slot: Slot{StartMinute: 660, EndMinute: 720}},
		{Day: 1, Slot: Slot{StartMinute: 600, EndMinute: 660}},
	}
	for i := range chunks {
		testutil.AssertEqual(t, len(chunks[i]), 2)
		testutil.AssertEqual(t, plan.Coordinate(i), want[i])
	}
}

func TestPlanSlotsProperties(t *testing.T) {
	t.Parallel()
	clocks := []string{"00:00", "08:30", "09:00", "10:15", "13:00", "17:45", "23:59"}
	durations := []int{1, 7, 30, 45, 60, 90, 480}
	for _, days := range []int{1, 3, 365} {
		for i, start := range clocks {
			for _, end := range clocks[i+1:] {
				for _, dur := range durations {
					for _, n := range []int{0, 1, 5, 97, 1000} {
						req := SlotRequest{CandidateCount: n, NumberOfDays: days, StartTime: start, EndTime: end, DurationMinutes: dur}
						plan, err := PlanSlots(req)
						s, _ := parseClock(start)
						e, _ := parseClock(end)
						wantPerDay := (e - s) / dur
						if wantPerDay == 0 {
							testutil.AssertCode(t, err, pkgerrors.InvalidSchedule)
							continue
						}
						testutil.AssertNoError(t, err)
						if plan.SlotsPerDay != wantPerDay || len(plan.Slots) != wantPerDay {
							t.Fatalf("%+v: slotsPerDay=%d len=%d want %d", req, plan.SlotsPerDay, len(plan.Slots), wantPerDay)
						}
						for _, slot := range plan.Slots {
							if slot.EndMinute > e {
								t.Fatalf("%+v: slot %s extends past end", req, slot.Label())
							}
						}
						total := 0
						for _, c := range plan.Chunk(n) {
							total += len(c)
						}
						testutil.AssertEqual(t, total, n)
						if n > plan.TotalSlots && plan.Parallelism <= 1 {
							t.Fatalf("%+v: parallelism %d with %d candidates over %d slots", req, plan.Parallelism, n, plan.TotalSlots)
						}
						if chunks := len(plan.Chunk(n)); chunks > plan.TotalSlots {
							t.Fatalf("%+v: %d chunks exceed %d slots", req, chunks, plan.TotalSlots)
						}
					}
				}
			}
		}
	}
}

func TestPlanSlotsRejectsBadInput(t *testing.T) {
	t.Parallel()
	base := SlotRequest{CandidateCount: 3, NumberOfDays: 1, StartTime: "09:00", EndTime: "10:00", DurationMinutes: 30}
	cases := []struct {
		name   string
		mutate func(*SlotRequest)
	}{
		{"zero days", func(r *SlotRequest) { r.NumberOfDays = 0 }},
		{"too many days", func(r *SlotRequest) { r.NumberOfDays = 366 }},
		{"zero duration", func(r *SlotRequest) { r.DurationMinutes = 0 }},
		{"long duration", func(r *SlotRequest) { r.DurationMinutes = 481 }},
		{"end before start", func(r *SlotRequest) { r.EndTime = "08:00" }},
		{"end equals start", func(r *SlotRequest) { r.EndTime = "09:00" }},
		{"bad clock", func(r *SlotRequest) { r.StartTime = "9am" }},
		{"hour out of range", func(r *SlotRequest) { r.EndTime = "24:00" }},
		{"window shorter than duration", func(r *SlotRequest) { r.DurationMinutes = 90 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := PlanSlots(req)
			testutil.AssertCode(t, err, pkgerrors.InvalidSchedule)
		})
	}
}

func TestSlotStartOnDay(t *testing.T) {
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	slot := Slot{StartMinute: 10*60 + 30, EndMinute: 11 * 60}
	testutil.AssertEqual(t, slot.Start(day), time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC))
	testutil.AssertEqual(t, slot.Label(), "10:30-11:00")
}

func TestSlotStartKeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	testutil.AssertNoError(t, err)
	slot := Slot{StartMinute: 10 * 60, EndMinute: 11 * 60}

	// Clocks jump from 02:00 to 03:00 on 2026-03-08; midnight plus 600 minutes is 11:00 EDT.
	springForward := time.Date(2026, 3, 8, 0, 0, 0, 0, ny)
	got := slot.Start(springForward)
	testutil.AssertEqual(t, got.Hour(), 10)
	testutil.AssertEqual(t, got.Minute(), 0)
	testutil.AssertTrue(t, got.Equal(time.Date(2026, 3, 8, 14, 0, 0, 0, time.UTC)), "10:00 EDT is 14:00 UTC, got "+got.UTC().String())

	fallBack := time.Date(2026, 11, 1, 0, 0, 0, 0, ny)
	got = slot.Start(fallBack)
	testutil.AssertEqual(t, got.Hour(), 10)
	testutil.AssertTrue(t, got.Equal(time.Date(2026, 11, 1, 15, 0, 0, 0, time.UTC)), "10:00 EST is 15:00 UTC, got "+got.UTC().String())
}
