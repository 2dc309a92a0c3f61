package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hirejudge/internal/common/cache"
	"hirejudge/internal/common/db"
	"hirejudge/internal/question/model"
)

const (
	defaultPoolCacheTTL      = 5 * time.Minute
	defaultPoolCacheEmptyTTL = 30 * time.Second
	activePoolCacheKey       = "question:pool:active"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyAssigned means the interview already has question rows.
	ErrAlreadyAssigned = errors.New("questions already assigned")
)

// QuestionRepository reads the question catalog.
type QuestionRepository interface {
	// ActivePool returns every active question without test cases.
	ActivePool(ctx context.Context) ([]model.Question, error)
	GetByID(ctx context.Context, id int64) (*model.Question, error)
}

type MySQLQuestionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewQuestionRepository caches the active pool when cacheClient is set.
func NewQuestionRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) QuestionRepository {
	if ttl <= 0 {
		ttl = defaultPoolCacheTTL
	}
	return &MySQLQuestionRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: defaultPoolCacheEmptyTTL}
}

func (r *MySQLQuestionRepository) ActivePool(ctx context.Context) ([]model.Question, error) {
	if r.cache == nil {
		return r.activePoolFromDB(ctx)
	}
	pool, _, err := cache.GetOrLoad(ctx, r.cache, activePoolCacheKey,
		cache.Policy{TTL: r.ttl, MissTTL: r.emptyTTL},
		func(ctx context.Context) ([]model.Question, bool, error) {
			pool, err := r.activePoolFromDB(ctx)
			return pool, len(pool) > 0, err
		})
	return pool, err
}

func (r *MySQLQuestionRepository) activePoolFromDB(ctx context.Context) ([]model.Question, error) {
	query := "SELECT id, title, difficulty FROM questions WHERE status = ? ORDER BY id"
	rows, err := r.db.Query(ctx, query, model.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []model.Question
	for rows.Next() {
		q := model.Question{Status: model.StatusActive}
		var difficulty string
		if err := rows.Scan(&q.ID, &q.Title, &difficulty); err != nil {
			return nil, err
		}
		q.Difficulty = model.Difficulty(difficulty)
		pool = append(pool, q)
	}
	return pool, rows.Err()
}

func (r *MySQLQuestionRepository) GetByID(ctx context.Context, id int64) (*model.Question, error) {
	query := "SELECT id, title, description, difficulty, status, test_cases FROM questions WHERE id = ? LIMIT 1"
	q := &model.Question{}
	var difficulty string
	var testCases []byte
	if err := r.db.QueryRow(ctx, query, id).Scan(&q.ID, &q.Title, &q.Description, &difficulty, &q.Status, &testCases); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	q.Difficulty = model.Difficulty(difficulty)
	if len(testCases) > 0 {
		if err := json.Unmarshal(testCases, &q.TestCases); err != nil {
			return nil, fmt.Errorf("decode test cases of question %d: %w", id, err)
		}
	}
	return q, nil
}
