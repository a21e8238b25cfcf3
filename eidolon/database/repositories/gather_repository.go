package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"
)

var (
	ErrNodeNotFound  = errors.New("gather node not found")
	ErrClaimNotFound = errors.New("no claimable gather result")
)

const nodeCacheSize = 256

type GatherRepository interface {
	GetNode(ctx context.Context, nodeKey string) (*models.GatherNode, error)
	CountActiveJobs(ctx context.Context, idb bun.IDB, profileID int64, nodeKey string) (int, error)
	InsertJob(ctx context.Context, idb bun.IDB, job *models.GatherJob) error
	// DueJobIDs lists running jobs whose expected end has passed.
	DueJobIDs(ctx context.Context, profileID int64, now time.Time) ([]int64, error)
	// GetJobForUpdate locks the job row for the enclosing transaction; this
	// is the serialization point for settlement.
	GetJobForUpdate(ctx context.Context, idb bun.IDB, jobID int64) (*models.GatherJob, error)
	MarkCompleted(ctx context.Context, idb bun.IDB, job *models.GatherJob) error
	ListByProfile(ctx context.Context, profileID int64) ([]*models.GatherJob, error)
	UpdateProgress(ctx context.Context, jobID int64, progress float64) error
	InsertResults(ctx context.Context, idb bun.IDB, results []*models.GatherResult) error
	// AddSkillExperience upserts the profile skill row and returns the new
	// accumulated experience total.
	AddSkillExperience(ctx context.Context, idb bun.IDB, profileID int64, skillKey string, delta int64) (int64, error)
	SetSkillLevel(ctx context.Context, idb bun.IDB, profileID int64, skillKey string, level int) error
	GetSkill(ctx context.Context, profileID int64, skillKey string) (*models.ProfileSkill, error)
	// MarkClaimed flips the claimed flag on a completed job owned by the
	// profile and returns the refreshed job.
	MarkClaimed(ctx context.Context, jobID, profileID int64) (*models.GatherJob, error)
}

type gatherRepository struct {
	db        *bun.DB
	nodeCache *lru.Cache
	cacheTTL  time.Duration
}

type cachedNode struct {
	node      *models.GatherNode
	expiresAt time.Time
}

func NewGatherRepository(db *bun.DB) GatherRepository {
	cache, _ := lru.New(nodeCacheSize)
	return &gatherRepository{
		db:        db,
		nodeCache: cache,
		cacheTTL:  5 * time.Minute,
	}
}

func (r *gatherRepository) GetNode(ctx context.Context, nodeKey string) (*models.GatherNode, error) {
	if entry, ok := r.nodeCache.Get(nodeKey); ok {
		cached := entry.(cachedNode)
		if time.Now().Before(cached.expiresAt) {
			return cached.node, nil
		}
		r.nodeCache.Remove(nodeKey)
	}

	var node models.GatherNode
	err := r.db.NewSelect().
		Model(&node).
		Where("node_key = ?", nodeKey).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gather node: %w", err)
	}

	r.nodeCache.Add(nodeKey, cachedNode{node: &node, expiresAt: time.Now().Add(r.cacheTTL)})
	return &node, nil
}

func (r *gatherRepository) CountActiveJobs(ctx context.Context, idb bun.IDB, profileID int64, nodeKey string) (int, error) {
	count, err := idb.NewSelect().
		Model((*models.GatherJob)(nil)).
		Where("profile_id = ? AND node_key = ?", profileID, nodeKey).
		Where("status IN (?)", bun.In([]string{models.JobStatusQueued, models.JobStatusRunning})).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

func (r *gatherRepository) InsertJob(ctx context.Context, idb bun.IDB, job *models.GatherJob) error {
	if _, err := idb.NewInsert().Model(job).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert gather job: %w", err)
	}
	return nil
}

func (r *gatherRepository) DueJobIDs(ctx context.Context, profileID int64, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.GatherJob)(nil)).
		Column("id").
		Where("profile_id = ?", profileID).
		Where("status = ?", models.JobStatusRunning).
		Where("expected_end_at <= ?", now).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	return ids, nil
}

func (r *gatherRepository) GetJobForUpdate(ctx context.Context, idb bun.IDB, jobID int64) (*models.GatherJob, error) {
	var job models.GatherJob
	err := idb.NewSelect().
		Model(&job).
		Where("id = ?", jobID).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock gather job: %w", err)
	}
	return &job, nil
}

func (r *gatherRepository) MarkCompleted(ctx context.Context, idb bun.IDB, job *models.GatherJob) error {
	result, err := idb.NewUpdate().
		Model((*models.GatherJob)(nil)).
		Set("status = ?", models.JobStatusCompleted).
		Set("completed_at = ?", job.CompletedAt).
		Set("progress_percentage = 100").
		Set("result = ?", job.Result).
		Where("id = ?", job.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("gather job %d not found when completing", job.ID)
	}
	return nil
}

func (r *gatherRepository) ListByProfile(ctx context.Context, profileID int64) ([]*models.GatherJob, error) {
	var jobs []*models.GatherJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("profile_id = ?", profileID).
		Order("started_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list gather jobs: %w", err)
	}
	return jobs, nil
}

func (r *gatherRepository) UpdateProgress(ctx context.Context, jobID int64, progress float64) error {
	_, err := r.db.NewUpdate().
		Model((*models.GatherJob)(nil)).
		Set("progress_percentage = ?", progress).
		Where("id = ?", jobID).
		Where("status = ?", models.JobStatusRunning).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (r *gatherRepository) InsertResults(ctx context.Context, idb bun.IDB, results []*models.GatherResult) error {
	if len(results) == 0 {
		return nil
	}
	if _, err := idb.NewInsert().Model(&results).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert gather results: %w", err)
	}
	return nil
}

func (r *gatherRepository) AddSkillExperience(ctx context.Context, idb bun.IDB, profileID int64, skillKey string, delta int64) (int64, error) {
	skill := &models.ProfileSkill{
		ProfileID:  profileID,
		SkillKey:   skillKey,
		Level:      1,
		Experience: delta,
		UpdatedAt:  time.Now(),
	}

	var total int64
	err := idb.NewInsert().
		Model(skill).
		On("CONFLICT (profile_id, skill_key) DO UPDATE").
		Set("experience = profile_skills.experience + EXCLUDED.experience").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("experience").
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to add skill experience: %w", err)
	}
	return total, nil
}

func (r *gatherRepository) SetSkillLevel(ctx context.Context, idb bun.IDB, profileID int64, skillKey string, level int) error {
	_, err := idb.NewUpdate().
		Model((*models.ProfileSkill)(nil)).
		Set("level = ?", level).
		Set("updated_at = ?", time.Now()).
		Where("profile_id = ? AND skill_key = ?", profileID, skillKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set skill level: %w", err)
	}
	return nil
}

func (r *gatherRepository) GetSkill(ctx context.Context, profileID int64, skillKey string) (*models.ProfileSkill, error) {
	var skill models.ProfileSkill
	err := r.db.NewSelect().
		Model(&skill).
		Where("profile_id = ? AND skill_key = ?", profileID, skillKey).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ProfileSkill{
			ProfileID: profileID,
			SkillKey:  skillKey,
			Level:     1,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile skill: %w", err)
	}
	return &skill, nil
}

func (r *gatherRepository) MarkClaimed(ctx context.Context, jobID, profileID int64) (*models.GatherJob, error) {
	var job models.GatherJob
	err := r.db.NewUpdate().
		Model(&job).
		Set("result = jsonb_set(result, '{claimed}', 'true'::jsonb, true)").
		Where("id = ?", jobID).
		Where("profile_id = ?", profileID).
		Where("status = ?", models.JobStatusCompleted).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark result claimed: %w", err)
	}
	return &job, nil
}
