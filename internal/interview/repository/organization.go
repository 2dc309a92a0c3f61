package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"hirejudge/internal/common/cache"
	"hirejudge/internal/common/db"
	"hirejudge/internal/interview/model"
)

const (
	defaultOrgCacheTTL      = 10 * time.Minute
	defaultOrgCacheEmptyTTL = time.Minute
	orgCacheKeyPrefix       = "org:member:"
)

// OrganizationRepository resolves the organization a recruiter acts for.
type OrganizationRepository interface {
	ResolveOrganization(ctx context.Context, userID int64) (int64, error)
}

// JobRepository looks up jobs scoped to an organization.
type JobRepository interface {
	FindJob(ctx context.Context, jobID, organizationID int64) (*model.Job, error)
}

type MySQLOrganizationRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewOrganizationRepository caches membership lookups when cacheClient is set.
func NewOrganizationRepository(database db.Database, cacheClient cache.Cache, ttl time.Duration) OrganizationRepository {
	if ttl <= 0 {
		ttl = defaultOrgCacheTTL
	}
	return &MySQLOrganizationRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: defaultOrgCacheEmptyTTL}
}

func (r *MySQLOrganizationRepository) ResolveOrganization(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, ErrOrganizationNotFound
	}
	if r.cache == nil {
		return r.resolveFromDB(ctx, userID)
	}
	orgID, found, err := cache.GetOrLoad(ctx, r.cache, orgCacheKeyPrefix+strconv.FormatInt(userID, 10),
		cache.Policy{TTL: r.ttl, MissTTL: r.emptyTTL},
		func(ctx context.Context) (int64, bool, error) {
			id, err := r.resolveFromDB(ctx, userID)
			if errors.Is(err, ErrOrganizationNotFound) {
				return 0, false, nil
			}
			return id, err == nil, err
		})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrOrganizationNotFound
	}
	return orgID, nil
}

func (r *MySQLOrganizationRepository) resolveFromDB(ctx context.Context, userID int64) (int64, error) {
	query := "SELECT organization_id FROM organization_members WHERE user_id = ? ORDER BY created_at LIMIT 1"
	var orgID int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&orgID); err != nil {
		if db.IsNoRows(err) {
			return 0, ErrOrganizationNotFound
		}
		return 0, err
	}
	return orgID, nil
}

type MySQLJobRepository struct {
	db db.Database
}

func NewJobRepository(database db.Database) JobRepository {
	return &MySQLJobRepository{db: database}
}

func (r *MySQLJobRepository) FindJob(ctx context.Context, jobID, organizationID int64) (*model.Job, error) {
	query := "SELECT id, organization_id, title FROM jobs WHERE id = ? AND organization_id = ? LIMIT 1"
	job := &model.Job{}
	if err := r.db.QueryRow(ctx, query, jobID, organizationID).Scan(&job.ID, &job.OrganizationID, &job.Title); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}
