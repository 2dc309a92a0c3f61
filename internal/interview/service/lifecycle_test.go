package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"hirejudge/internal/common/cache"
	"hirejudge/internal/interview/model"
	appErr "hirejudge/pkg/errors"
	"hirejudge/pkg/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var (
	slotStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(time.Hour)
)

func newLifecycle(t *testing.T, repo *fakeInterviewRepo, assigner *fakeAssigner, now time.Time) *LifecycleService {
	t.Helper()
	svc, err := NewLifecycleService(LifecycleConfig{
		InterviewRepo: repo,
		OrgRepo:       &fakeOrgRepo{orgs: map[int64]int64{testRecruiter: testOrg, 8: 80}},
		Assigner:      assigner,
		Now:           func() time.Time { return now },
	})
	testutil.AssertNoError(t, err)
	return svc
}

func seedInterview(repo *fakeInterviewRepo, status model.Status) {
	repo.put(model.Interview{
		ID:             1,
		CandidateID:    42,
		OrganizationID: testOrg,
		TimeSlotStart:  slotStart,
		TimeSlotEnd:    slotEnd,
		Type:           model.TypeCoding,
		Status:         status,
	})
}

func TestStartInsideWindow(t *testing.T) {
	repo := newFakeInterviewRepo()
	seedInterview(repo, model.StatusScheduled)
	now := slotStart.Add(10 * time.Minute)
	svc := newLifecycle(t, repo, &fakeAssigner{}, now)

	view, err := svc.Start(context.Background(), 1, 42)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, view.Status, model.StatusInProgress)
	testutil.AssertEqual(t, repo.status(1), model.StatusInProgress)
	testutil.AssertTrue(t, view.StartedAt != nil && view.StartedAt.Equal(now), "started_at is set")
}

func TestStartBeforeWindow(t *testing.T) {
	repo := newFakeInterviewRepo()
	seedInterview(repo, model.StatusScheduled)
	svc := newLifecycle(t, repo, &fakeAssigner{}, slotStart.Add(-time.Minute))

	_, err := svc.Start(context.Background(), 1, 42)
	testutil.AssertCode(t, err, appErr.InterviewNotStarted)
	details := appErr.GetError(err).Details
	testutil.AssertEqual(t, details["reason"], any("future"))
	testutil.AssertEqual(t, details["timeSlotStart"], any("2026-03-02T09:00:00Z"))
	testutil.AssertEqual(t, details["timeSlotEnd"], any("2026-03-02T10:00:00Z"))
	testutil.AssertEqual(t, repo.status(1), model.StatusScheduled)
}

func TestStartAfterWindowExpires(t *testing.T) {
	repo := newFakeInterviewRepo()
	seedInterview(repo, model.StatusPending)
	svc := newLifecycle(t, repo, &fakeAssigner{}, slotEnd.Add(time.Second))

	_, err := svc.Start(context.Background(), 1, 42)
	testutil.AssertCode(t, err, appErr.InterviewExpired)
	testutil.AssertEqual(t, appErr.GetError(err).Details["reason"], any("expired"))
	testutil.AssertEqual(t, repo.status(1), model.StatusExpired)
}

func TestStartGuards(t *testing.T) {
	cases := []struct {
		name        string
		status      model.Status
		candidateID int64
		interviewID int64
		code        appErr.ErrorCode
	}{
		{"other candidate", model.StatusScheduled, 43, 1, appErr.InterviewAccessDenied},
		{"missing", model.StatusScheduled, 42, 2, appErr.InterviewNotFound},
		{"already started", model.StatusInProgress, 42, 1, appErr.InterviewNotStartable},
		{"cancelled", model.StatusCancelled, 42, 1, appErr.InterviewNotStartable},
		{"completed", model.StatusCompleted, 42, 1, appErr.InterviewNotStartable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeInterviewRepo()
			seedInterview(repo, tc.status)
			svc := newLifecycle(t, repo, &fakeAssigner{}, slotStart.Add(time.Minute))
			_, err := svc.Start(context.Background(), tc.interviewID, tc.candidateID)
			testutil.AssertCode(t, err, tc.code)
		})
	}
}

func TestComplete(t *testing.T) {
	repo := newFakeInterviewRepo()
	seedInterview(repo, model.StatusInProgress)
	svc := newLifecycle(t, repo, &fakeAssigner{}, slotStart.Add(30*time.Minute))

	view, err := svc.Complete(context.Background(), 1, 42)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, view.Status, model.StatusCompleted)

	_, err = svc.Complete(context.Background(), 1, 42)
	testutil.AssertCode(t, err, appErr.InterviewNotActive)
}

func TestCancel(t *testing.T) {
	repo := newFakeInterviewRepo()
	seedInterview(repo, model.StatusScheduled)
	svc := newLifecycle(t, repo, &fakeAssigner{}, slotStart)

	_, err := svc.Cancel(context.Background(), 1, 8)
	testutil.AssertCode(t, err, appErr.InterviewAccessDenied)
	_, err = svc.Cancel(context.Background(), 1, 99)
	testutil.AssertCode(t, err, appErr.OrganizationNotResolved)

	view, err := svc.Cancel(context.Background(), 1, testRecruiter)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, view.Status, model.StatusCancelled)

	_, err = svc.Cancel(context.Background(), 1, testRecruiter)
	testutil.AssertCode(t, err, appErr.InvalidStatusChange)
}

func TestReassignQuestions(t *testing.T) {
	repo := newFakeInterviewRepo()
	seedInterview(repo, model.StatusScheduled)
	assigner := &fakeAssigner{}
	svc := newLifecycle(t, repo, assigner, slotStart)

	view, err := svc.ReassignQuestions(context.Background(), 1, testRecruiter)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, view.QuestionsAssigned, 2)
	testutil.AssertEqual(t, len(assigner.calls), 1)

	assigner.err = appErr.New(appErr.InsufficientQuestionPool)
	_, err = svc.ReassignQuestions(context.Background(), 1, testRecruiter)
	testutil.AssertCode(t, err, appErr.InsufficientQuestionPool)

	repo.put(model.Interview{ID: 3, OrganizationID: testOrg, Type: model.TypeBehavioral, Status: model.StatusScheduled})
	_, err = svc.ReassignQuestions(context.Background(), 3, testRecruiter)
	testutil.AssertCode(t, err, appErr.ValidationFailed)
}

func TestExpirySweepMarksOverdue(t *testing.T) {
	repo := newFakeInterviewRepo()
	now := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	repo.put(model.Interview{ID: 1, Status: model.StatusScheduled, TimeSlotEnd: now.Add(-time.Hour)})
	repo.put(model.Interview{ID: 2, Status: model.StatusPending, TimeSlotEnd: now.Add(-time.Minute)})
	repo.put(model.Interview{ID: 3, Status: model.StatusScheduled, TimeSlotEnd: now.Add(time.Hour)})
	repo.put(model.Interview{ID: 4, Status: model.StatusInProgress, TimeSlotEnd: now.Add(-time.Hour)})

	sw, err := NewExpirySweeper(repo, nil, ExpiryConfig{})
	testutil.AssertNoError(t, err)
	sw.now = func() time.Time { return now }

	testutil.AssertEqual(t, sw.Sweep(context.Background()), int64(2))
	testutil.AssertEqual(t, repo.status(1), model.StatusExpired)
	testutil.AssertEqual(t, repo.status(2), model.StatusExpired)
	testutil.AssertEqual(t, repo.status(3), model.StatusScheduled)
	testutil.AssertEqual(t, repo.status(4), model.StatusInProgress)
}

func TestExpirySweepSkipsWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	repo := newFakeInterviewRepo()
	sw, err := NewExpirySweeper(repo, rc, ExpiryConfig{})
	testutil.AssertNoError(t, err)

	ok, err := rc.TryLock(context.Background(), expiryLockKey, time.Minute)
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, ok, "lock acquired by another replica")
	sw.Sweep(context.Background())
	testutil.AssertEqual(t, repo.expireCalls, 0)

	testutil.AssertNoError(t, rc.Unlock(context.Background(), expiryLockKey))
	sw.Sweep(context.Background())
	testutil.AssertEqual(t, repo.expireCalls, 1)
	testutil.AssertTrue(t, !mr.Exists(expiryLockKey), "lock released after sweep")
}

func TestExpirySweepStopsOnError(t *testing.T) {
	repo := newFakeInterviewRepo()
	repo.expireErr = errors.New("db down")
	sw, err := NewExpirySweeper(repo, nil, ExpiryConfig{})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, sw.Sweep(context.Background()), int64(0))
	testutil.AssertEqual(t, repo.expireCalls, 1)
}

func TestExpiryRejectsBadSchedule(t *testing.T) {
	_, err := NewExpirySweeper(newFakeInterviewRepo(), nil, ExpiryConfig{Schedule: "every minute"})
	testutil.AssertTrue(t, err != nil, "bad schedule rejected")
}
