package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hirejudge/internal/interview/model"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/testutil"

	"golang.org/x/crypto/bcrypt"
)

const (
	testRecruiter = int64(7)
	testOrg       = int64(70)
	testJob       = int64(700)
)

type dispatcherFixture struct {
	svc        *AssignmentService
	candidates *fakeCandidateRepo
	apps       *fakeApplicationRepo
	interviews *fakeInterviewRepo
	assigner   *fakeAssigner
	queue      *fakeQueue
}

func newDispatcherFixture(t *testing.T, now time.Time) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		candidates: newFakeCandidateRepo(),
		apps:       newFakeApplicationRepo(),
		interviews: newFakeInterviewRepo(),
		assigner:   &fakeAssigner{},
		queue:      &fakeQueue{},
	}
	svc, err := NewAssignmentService(AssignmentConfig{
		DB:              fakeTransactor{},
		OrgRepo:         &fakeOrgRepo{orgs: map[int64]int64{testRecruiter: testOrg}},
		JobRepo:         &fakeJobRepo{jobs: []model.Job{{ID: testJob, OrganizationID: testOrg, Title: "Backend Engineer"}}},
		CandidateRepo:   f.candidates,
		ApplicationRepo: f.apps,
		InterviewRepo:   f.interviews,
		Assigner:        f.assigner,
		Notifications:   f.queue,
		PasswordCost:    bcrypt.MinCost,
		Now:             func() time.Time { return now },
	})
	testutil.AssertNoError(t, err)
	f.svc = svc
	return f
}

func candidatesN(n int) []CandidateInput {
	out := make([]CandidateInput, n)
	for i := range out {
		out[i] = CandidateInput{Email: fmt.Sprintf("cand%d@example.com", i), Name: fmt.Sprintf("Cand %d", i)}
	}
	return out
}

func baseInput(candidates []CandidateInput) BulkAssignInput {
	return BulkAssignInput{
		RecruiterID:     testRecruiter,
		JobID:           testJob,
		Candidates:      candidates,
		NumberOfDays:    1,
		StartTime:       "09:00",
		EndTime:         "10:00",
		InterviewType:   model.TypeCoding,
		DurationMinutes: 30,
		Mode:            model.ModeAsync,
		StartDate:       "2026-03-02",
	}
}

func TestAssignBulkSharesSlotsAcrossChunks(t *testing.T) {
	f := newDispatcherFixture(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	res, err := f.svc.AssignBulk(context.Background(), baseInput(candidatesN(5)))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, res.Successful, 5)
	testutil.AssertEqual(t, res.Failed, 0)
	testutil.AssertEqual(t, res.SlotsPerDay, 2)
	testutil.AssertEqual(t, res.TotalSlots, 2)
	testutil.AssertEqual(t, res.Parallelism, 3)

	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	second := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	wantStarts := []time.Time{first, first, first, second, second}
	for i, r := range res.Results {
		if r.Status != ResultSuccess {
			t.Fatalf("result %d: %+v", i, r)
		}
		if !r.TimeSlotStart.Equal(wantStarts[i]) {
			t.Errorf("result %d start = %s, want %s", i, r.TimeSlotStart, wantStarts[i])
		}
		if got := r.TimeSlotEnd.Sub(*r.TimeSlotStart); got != 30*time.Minute {
			t.Errorf("result %d duration = %s", i, got)
		}
		testutil.AssertEqual(t, r.QuestionsAssigned, 2)
		iv, err := f.interviews.GetByID(context.Background(), nil, r.InterviewID)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, iv.Status, model.StatusScheduled)
	}
	testutil.AssertEqual(t, len(f.assigner.calls), 5)
	f.svc.WaitNotifications()
	sent := f.queue.delivered()
	testutil.AssertEqual(t, len(sent), 5)
	testutil.AssertEqual(t, sent[0].Data.JobTitle, "Backend Engineer")
}

func TestAssignBulkDefaultsToTomorrow(t *testing.T) {
	f := newDispatcherFixture(t, time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC))
	input := baseInput(candidatesN(1))
	input.StartDate = ""
	res, err := f.svc.AssignBulk(context.Background(), input)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.StartDate, "2026-01-11")
	want := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	if !res.Results[0].TimeSlotStart.Equal(want) {
		t.Fatalf("start = %s, want %s", res.Results[0].TimeSlotStart, want)
	}
}

func TestAssignBulkReusesCandidateAndApplication(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	existing := &model.Candidate{Email: "known@example.com", Name: "Known"}
	id, err := f.candidates.Create(context.Background(), nil, existing, "hash")
	testutil.AssertNoError(t, err)

	input := baseInput([]CandidateInput{{Email: "  Known@Example.com "}})
	input.InterviewType = model.TypeBehavioral
	first, err := f.svc.AssignBulk(context.Background(), input)
	testutil.AssertNoError(t, err)
	second, err := f.svc.AssignBulk(context.Background(), input)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, first.Results[0].CandidateID, id)
	testutil.AssertEqual(t, second.Results[0].CandidateID, id)
	testutil.AssertEqual(t, first.Results[0].ApplicationID, second.Results[0].ApplicationID)
	testutil.AssertTrue(t, first.Results[0].InterviewID != second.Results[0].InterviewID, "each request creates a new interview")
	testutil.AssertEqual(t, len(f.assigner.calls), 0)
	testutil.AssertEqual(t, f.candidates.hashes["known@example.com"], "hash")
}

func TestAssignBulkNewCandidateGetsHashedPassword(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	_, err := f.svc.AssignBulk(context.Background(), baseInput(candidatesN(1)))
	testutil.AssertNoError(t, err)
	hash := f.candidates.hashes["cand0@example.com"]
	_, costErr := bcrypt.Cost([]byte(hash))
	testutil.AssertNoError(t, costErr)
}

func TestAssignBulkRecordsPerCandidateFailures(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	known := &model.Candidate{Email: "cand1@example.com", Name: "Cand 1"}
	knownID, err := f.candidates.Create(context.Background(), nil, known, "hash")
	testutil.AssertNoError(t, err)
	f.interviews.failFor[knownID] = true
	candidates := append(candidatesN(3),
		CandidateInput{Email: "not-an-email"},
		CandidateInput{Email: "CAND0@example.com"},
	)
	res, err := f.svc.AssignBulk(context.Background(), baseInput(candidates))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, len(res.Results), 5)
	testutil.AssertEqual(t, res.Results[1].Message, "failed to schedule interview")
	testutil.AssertEqual(t, res.Failed, 3)
	testutil.AssertEqual(t, res.Successful, 2)
	testutil.AssertEqual(t, res.Results[3].Message, "invalid email")
	testutil.AssertEqual(t, res.Results[4].Message, "duplicate candidate in request")
	f.svc.WaitNotifications()
	sent := f.queue.delivered()
	testutil.AssertEqual(t, len(sent), 2)
	for _, n := range sent {
		testutil.AssertTrue(t, n.Email != "not-an-email", "failures are not notified")
	}
}

func TestAssignBulkQuestionFailureKeepsInterview(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	f.assigner.err = appErr.New(appErr.InsufficientQuestionPool)
	res, err := f.svc.AssignBulk(context.Background(), baseInput(candidatesN(1)))
	testutil.AssertNoError(t, err)
	r := res.Results[0]
	testutil.AssertEqual(t, r.Status, ResultSuccess)
	testutil.AssertEqual(t, r.QuestionsAssigned, 0)
	testutil.AssertEqual(t, r.Message, "interview scheduled; question assignment failed: Insufficient question pool")
}

func TestAssignBulkRejectsBeforeWriting(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BulkAssignInput)
		code   appErr.ErrorCode
	}{
		{"unknown recruiter", func(in *BulkAssignInput) { in.RecruiterID = 99 }, appErr.OrganizationNotResolved},
		{"foreign job", func(in *BulkAssignInput) { in.JobID = 1 }, appErr.JobNotFound},
		{"no candidates", func(in *BulkAssignInput) { in.Candidates = nil }, appErr.EmptyCandidates},
		{"bad type", func(in *BulkAssignInput) { in.InterviewType = "quiz" }, appErr.ValidationFailed},
		{"bad mode", func(in *BulkAssignInput) { in.Mode = "hybrid" }, appErr.ValidationFailed},
		{"window too short", func(in *BulkAssignInput) { in.EndTime = "09:20" }, appErr.InvalidSchedule},
		{"end before start", func(in *BulkAssignInput) { in.EndTime = "08:00" }, appErr.InvalidSchedule},
		{"too many days", func(in *BulkAssignInput) { in.NumberOfDays = 400 }, appErr.InvalidSchedule},
		{"bad start date", func(in *BulkAssignInput) { in.StartDate = "03/02/2026" }, appErr.InvalidSchedule},
		{"batch too large", func(in *BulkAssignInput) { in.Candidates = candidatesN(defaultMaxCandidates + 1) }, appErr.ValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDispatcherFixture(t, time.Now())
			input := baseInput(candidatesN(2))
			tc.mutate(&input)
			_, err := f.svc.AssignBulk(context.Background(), input)
			testutil.AssertCode(t, err, tc.code)
			testutil.AssertEqual(t, len(f.interviews.interviews), 0)
			f.svc.WaitNotifications()
			testutil.AssertEqual(t, len(f.queue.delivered()), 0)
		})
	}
}

func TestAssignBulkCancelledRequest(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.svc.AssignBulk(ctx, baseInput(candidatesN(3)))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Failed, 3)
	for _, r := range res.Results {
		testutil.AssertEqual(t, r.Message, "request cancelled")
	}
}

func TestAssignBulkKeepsWallClockOnDSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	testutil.AssertNoError(t, err)
	f := newDispatcherFixture(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	f.svc.location = ny

	input := baseInput(candidatesN(2))
	input.StartDate = "2026-03-08"
	input.StartTime = "10:00"
	input.EndTime = "11:00"
	input.DurationMinutes = 60
	res, err := f.svc.AssignBulk(context.Background(), input)
	testutil.AssertNoError(t, err)

	want := time.Date(2026, 3, 8, 10, 0, 0, 0, ny)
	for i, r := range res.Results {
		testutil.AssertEqual(t, r.Status, ResultSuccess)
		if !r.TimeSlotStart.Equal(want) {
			t.Errorf("result %d start = %s, want %s", i, r.TimeSlotStart.In(ny), want)
		}
		if !r.TimeSlotEnd.Equal(want.Add(time.Hour)) {
			t.Errorf("result %d end = %s", i, r.TimeSlotEnd.In(ny))
		}
	}
}

func TestAssignBulkDoesNotWaitOnSlowQueue(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	f.queue.block = make(chan struct{})

	start := time.Now()
	res, err := f.svc.AssignBulk(context.Background(), baseInput(candidatesN(4)))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Successful, 4)
	testutil.AssertTrue(t, time.Since(start) < time.Second, "response waited on the notification queue")
	testutil.AssertEqual(t, len(f.queue.delivered()), 0)

	close(f.queue.block)
	f.svc.WaitNotifications()
	testutil.AssertEqual(t, len(f.queue.delivered()), 4)
}

func TestAssignBulkNotificationHandoffIsBounded(t *testing.T) {
	f := newDispatcherFixture(t, time.Now())
	f.queue.block = make(chan struct{})
	f.svc.notifyTimeout = 20 * time.Millisecond

	_, err := f.svc.AssignBulk(context.Background(), baseInput(candidatesN(2)))
	testutil.AssertNoError(t, err)

	done := make(chan struct{})
	go func() {
		f.svc.WaitNotifications()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hand-off outlived its timeout")
	}
	testutil.AssertEqual(t, len(f.queue.delivered()), 0)
}

func TestAssignBulkRunsChunkMembersTogetherAndChunksInOrder(t *testing.T) {
	f := newDispatcherFixture(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Minute)
	assigner := &chunkAssigner{
		interviews: f.interviews,
		want:       map[int64]int{first.Unix(): 3, second.Unix(): 2},
		active:     map[int64]int{},
		reached:    map[int64]bool{},
	}
	f.svc.assigner = assigner

	res, err := f.svc.AssignBulk(context.Background(), baseInput(candidatesN(5)))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, res.Parallelism, 3)
	testutil.AssertEqual(t, res.Successful, 5)

	assigner.mu.Lock()
	defer assigner.mu.Unlock()
	testutil.AssertEqual(t, assigner.maxActive, res.Parallelism)
	testutil.AssertTrue(t, !assigner.overlap, "a chunk started before the previous one finished")
	testutil.AssertTrue(t, assigner.reached[first.Unix()] && assigner.reached[second.Unix()], "every chunk ran its candidates together")
}
