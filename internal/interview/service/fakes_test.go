package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"hirejudge/internal/common/db"
	"hirejudge/internal/interview/model"
	"hirejudge/internal/interview/repository"
	"hirejudge/internal/notify"
)

type fakeTransactor struct{}

func (fakeTransactor) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}

type fakeOrgRepo struct {
	orgs map[int64]int64
}

func (r *fakeOrgRepo) ResolveOrganization(_ context.Context, userID int64) (int64, error) {
	if id, ok := r.orgs[userID]; ok {
		return id, nil
	}
	return 0, repository.ErrOrganizationNotFound
}

type fakeJobRepo struct {
	jobs []model.Job
}

func (r *fakeJobRepo) FindJob(_ context.Context, jobID, orgID int64) (*model.Job, error) {
	for _, j := range r.jobs {
		if j.ID == jobID && j.OrganizationID == orgID {
			job := j
			return &job, nil
		}
	}
	return nil, repository.ErrJobNotFound
}

type fakeCandidateRepo struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]*model.Candidate
	hashes  map[string]string
}

func newFakeCandidateRepo() *fakeCandidateRepo {
	return &fakeCandidateRepo{nextID: 100, byEmail: map[string]*model.Candidate{}, hashes: map[string]string{}}
}

func (r *fakeCandidateRepo) GetByEmail(_ context.Context, _ db.Transaction, email string) (*model.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrCandidateNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCandidateRepo) Create(_ context.Context, _ db.Transaction, c *model.Candidate, hash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[c.Email]; ok {
		return 0, repository.ErrCandidateExists
	}
	r.nextID++
	cp := *c
	cp.ID = r.nextID
	r.byEmail[c.Email] = &cp
	r.hashes[c.Email] = hash
	return cp.ID, nil
}

type fakeApplicationRepo struct {
	mu     sync.Mutex
	nextID int64
	apps   map[[2]int64]*model.Application
}

func newFakeApplicationRepo() *fakeApplicationRepo {
	return &fakeApplicationRepo{nextID: 500, apps: map[[2]int64]*model.Application{}}
}

func (r *fakeApplicationRepo) GetByJobAndCandidate(_ context.Context, _ db.Transaction, jobID, candidateID int64) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[[2]int64{jobID, candidateID}]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeApplicationRepo) Create(_ context.Context, _ db.Transaction, a *model.Application) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{a.JobID, a.CandidateID}
	if _, ok := r.apps[key]; ok {
		return 0, repository.ErrApplicationExists
	}
	r.nextID++
	cp := *a
	cp.ID = r.nextID
	r.apps[key] = &cp
	return cp.ID, nil
}

type fakeInterviewRepo struct {
	mu         sync.Mutex
	nextID     int64
	interviews map[int64]*model.Interview
	// failFor makes Create fail for interviews of these candidates.
	failFor     map[int64]bool
	expireCalls int
	expired     int64
	expireErr   error
}

func newFakeInterviewRepo() *fakeInterviewRepo {
	return &fakeInterviewRepo{nextID: 1000, interviews: map[int64]*model.Interview{}, failFor: map[int64]bool{}}
}

func (r *fakeInterviewRepo) Create(_ context.Context, _ db.Transaction, iv *model.Interview) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[iv.CandidateID] {
		return 0, errors.New("insert failed")
	}
	r.nextID++
	cp := *iv
	cp.ID = r.nextID
	r.interviews[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeInterviewRepo) GetByID(_ context.Context, _ db.Transaction, id int64) (*model.Interview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.interviews[id]
	if !ok {
		return nil, repository.ErrInterviewNotFound
	}
	cp := *iv
	return &cp, nil
}

func (r *fakeInterviewRepo) TransitionStatus(_ context.Context, _ db.Transaction, id int64, from []model.Status, to model.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.interviews[id]
	if !ok {
		return repository.ErrInterviewNotFound
	}
	for _, s := range from {
		if iv.Status == s {
			iv.Status = to
			switch to {
			case model.StatusInProgress:
				t := at
				iv.StartedAt = &t
			case model.StatusCompleted:
				t := at
				iv.CompletedAt = &t
			}
			return nil
		}
	}
	return repository.ErrStatusConflict
}

func (r *fakeInterviewRepo) ExpireOverdue(_ context.Context, now time.Time, _ int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expireCalls++
	if r.expireErr != nil {
		return 0, r.expireErr
	}
	var n int64
	for _, iv := range r.interviews {
		if iv.Status.Startable() && iv.TimeSlotEnd.Before(now) {
			iv.Status = model.StatusExpired
			n++
		}
	}
	r.expired += n
	return n, nil
}

func (r *fakeInterviewRepo) put(iv model.Interview) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interviews[iv.ID] = &iv
}

func (r *fakeInterviewRepo) status(id int64) model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interviews[id].Status
}

type fakeAssigner struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (a *fakeAssigner) AssignQuestions(_ context.Context, interviewID int64) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, interviewID)
	if a.err != nil {
		return 0, a.err
	}
	return 2, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []notify.Notification
	// block holds Enqueue until closed or the context ends.
	block chan struct{}
}

func (q *fakeQueue) Enqueue(ctx context.Context, batch ...notify.Notification) error {
	if q.block != nil {
		select {
		case <-q.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, batch...)
	return nil
}

func (q *fakeQueue) delivered() []notify.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]notify.Notification(nil), q.sent...)
}

// chunkAssigner holds each call until every candidate of its slot has arrived,
// recording how many calls overlap.
type chunkAssigner struct {
	interviews *fakeInterviewRepo
	// want is the chunk size keyed by slot start (unix seconds).
	want map[int64]int

	mu        sync.Mutex
	active    map[int64]int
	reached   map[int64]bool
	maxActive int
	overlap   bool
}

func (a *chunkAssigner) AssignQuestions(ctx context.Context, interviewID int64) (int, error) {
	iv, err := a.interviews.GetByID(ctx, nil, interviewID)
	if err != nil {
		return 0, err
	}
	key := iv.TimeSlotStart.Unix()

	a.mu.Lock()
	a.active[key]++
	total := 0
	for k, n := range a.active {
		total += n
		if k != key && n > 0 {
			a.overlap = true
		}
	}
	if total > a.maxActive {
		a.maxActive = total
	}
	if a.active[key] >= a.want[key] {
		a.reached[key] = true
	}
	a.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		done := a.reached[key]
		a.mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}

	a.mu.Lock()
	a.active[key]--
	a.mu.Unlock()
	return 2, nil
}
