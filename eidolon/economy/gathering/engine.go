// Package gathering runs the idle-job lifecycle: timed jobs mature on their
// own and are settled lazily, at read time, exactly once.
package gathering

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/events"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
	"github.com/eidolonworld/eidolon/eidolon/logger"
	"github.com/uptrace/bun"
)

var (
	ErrNodeNotFound     = repositories.ErrNodeNotFound
	ErrClaimNotFound    = repositories.ErrClaimNotFound
	ErrCapacityExceeded = errors.New("gather node parallel job limit reached")
)

// JobSummary is the read model returned by job queries.
type JobSummary struct {
	ID                 int64          `json:"id"`
	NodeKey            string         `json:"nodeKey"`
	NodeName           string         `json:"nodeName"`
	Status             string         `json:"status"`
	StartedAt          time.Time      `json:"startedAt"`
	ExpectedEndAt      time.Time      `json:"expectedEndAt"`
	ProgressPercentage float64        `json:"progressPercentage"`
	Result             *JobResultView `json:"result,omitempty"`
}

type JobResultView struct {
	Items       []models.JobItem `json:"items"`
	Experience  int64            `json:"experience"`
	Claimed     bool             `json:"claimed"`
	CompletedAt time.Time        `json:"completedAt"`
	Offline     bool             `json:"offline"`
}

type Engine struct {
	tm        utils.TxManager
	repo      repositories.GatherRepository
	inventory repositories.InventoryRepository
	publisher events.Publisher
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(tm utils.TxManager, repo repositories.GatherRepository, inventory repositories.InventoryRepository, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		tm:        tm,
		repo:      repo,
		inventory: inventory,
		publisher: publisher,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StartJob creates a running job on a node for a profile. Cycles are clamped
// into [1,20]; the per-node parallel job limit is enforced inside the insert
// transaction so a failed start creates nothing.
func (e *Engine) StartJob(ctx context.Context, profileID int64, nodeKey string, cycles int) (*JobSummary, error) {
	start := time.Now()

	node, err := e.repo.GetNode(ctx, nodeKey)
	if err != nil {
		logger.LogEconomy("gather_start", time.Since(start), err)
		return nil, err
	}

	cycles = ClampCycles(cycles)
	now := e.now()
	durationSeconds := node.BaseDurationSeconds * int64(cycles)

	job := &models.GatherJob{
		ProfileID:       profileID,
		NodeKey:         nodeKey,
		Status:          models.JobStatusRunning,
		StartedAt:       now,
		ExpectedEndAt:   now.Add(time.Duration(durationSeconds) * time.Second),
		DurationSeconds: durationSeconds,
		Result: models.JobResult{
			Cycles: cycles,
			Items:  []models.JobItem{},
		},
	}

	err = e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		active, err := e.repo.CountActiveJobs(ctx, tx, profileID, nodeKey)
		if err != nil {
			return err
		}
		if active >= node.MaxParallelJobs {
			return fmt.Errorf("%w: %s (%d)", ErrCapacityExceeded, nodeKey, node.MaxParallelJobs)
		}
		return e.repo.InsertJob(ctx, tx, job)
	})

	logger.LogEconomy("gather_start", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return &JobSummary{
		ID:                 job.ID,
		NodeKey:            job.NodeKey,
		NodeName:           node.DisplayName,
		Status:             job.Status,
		StartedAt:          job.StartedAt,
		ExpectedEndAt:      job.ExpectedEndAt,
		ProgressPercentage: 0,
	}, nil
}

// ListJobs settles every due job for the profile, refreshes live progress on
// the jobs still running, and returns the full list most-recent-first.
func (e *Engine) ListJobs(ctx context.Context, profileID int64) ([]JobSummary, error) {
	now := e.now()

	dueIDs, err := e.repo.DueJobIDs(ctx, profileID, now)
	if err != nil {
		return nil, err
	}
	for _, jobID := range dueIDs {
		if err := e.settleJob(ctx, jobID); err != nil {
			return nil, err
		}
	}

	jobs, err := e.repo.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		progress := job.ProgressPercentage
		if job.Status == models.JobStatusRunning {
			progress = computeProgress(job, e.now())
			// Persisting refreshed progress is best-effort; the next read
			// recomputes it regardless.
			if err := e.repo.UpdateProgress(ctx, job.ID, progress); err != nil {
				logger.LogError("Failed to persist job progress", err)
			}
		}

		nodeName := job.NodeKey
		if node, err := e.repo.GetNode(ctx, job.NodeKey); err == nil {
			nodeName = node.DisplayName
		}

		summary := JobSummary{
			ID:                 job.ID,
			NodeKey:            job.NodeKey,
			NodeName:           nodeName,
			Status:             job.Status,
			StartedAt:          job.StartedAt,
			ExpectedEndAt:      job.ExpectedEndAt,
			ProgressPercentage: roundProgress(progress),
		}

		if job.Status == models.JobStatusCompleted {
			completedAt := job.ExpectedEndAt
			if job.CompletedAt != nil {
				completedAt = *job.CompletedAt
			}
			summary.Result = &JobResultView{
				Items:       job.Result.Items,
				Experience:  job.Result.Experience,
				Claimed:     job.Result.Claimed,
				CompletedAt: completedAt,
				Offline:     job.Result.Offline,
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// settleJob completes one due job at most once. The job row is locked before
// the status check, so a concurrent caller that lost the race observes
// status != running and backs off without producing rewards.
func (e *Engine) settleJob(ctx context.Context, jobID int64) error {
	start := time.Now()
	var settled *events.JobSettled

	err := e.tm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		job, err := e.repo.GetJobForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job == nil || job.Status != models.JobStatusRunning {
			return nil
		}

		node, err := e.repo.GetNode(ctx, job.NodeKey)
		if err != nil {
			return err
		}

		cycles := job.Result.Cycles
		if cycles < 1 {
			cycles = 1
		}

		e.rngMu.Lock()
		items, experience := generateOutcome(node, cycles, e.rng)
		e.rngMu.Unlock()

		shares := distributeExperience(items, experience)
		results := make([]*models.GatherResult, 0, len(items))
		for i, item := range items {
			if err := e.inventory.Grant(ctx, tx, job.ProfileID, item.ItemKey, item.Quantity); err != nil {
				return err
			}
			results = append(results, &models.GatherResult{
				JobID:            job.ID,
				ItemKey:          item.ItemKey,
				Quantity:         item.Quantity,
				ExperienceGained: shares[i],
				CreatedAt:        time.Now(),
			})
		}
		if err := e.repo.InsertResults(ctx, tx, results); err != nil {
			return err
		}

		skillKey := "gathering_" + node.SkillType
		total, err := e.repo.AddSkillExperience(ctx, tx, job.ProfileID, skillKey, experience)
		if err != nil {
			return err
		}
		if err := e.repo.SetSkillLevel(ctx, tx, job.ProfileID, skillKey, CalculateLevelFromExperience(total)); err != nil {
			return err
		}

		completedAt := e.now()
		job.CompletedAt = &completedAt
		job.Result.Items = items
		job.Result.Experience = experience
		job.Result.Claimed = false
		job.Result.Offline = true
		if err := e.repo.MarkCompleted(ctx, tx, job); err != nil {
			return err
		}

		itemTotals := make(map[string]int64, len(items))
		for _, item := range items {
			itemTotals[item.ItemKey] = item.Quantity
		}
		settled = &events.JobSettled{
			JobID:      job.ID,
			ProfileID:  job.ProfileID,
			NodeKey:    job.NodeKey,
			Experience: experience,
			Items:      itemTotals,
			SettledAt:  completedAt,
		}
		return nil
	})

	logger.LogEconomy("gather_settle", time.Since(start), err)
	if err != nil {
		return err
	}
	if settled != nil {
		e.publisher.PublishJobSettled(ctx, *settled)
	}
	return nil
}

// SkillProgress reports a profile's level and accumulated experience for a
// node skill type. Profiles that never gathered get the level-1 default.
func (e *Engine) SkillProgress(ctx context.Context, profileID int64, skillType string) (*models.ProfileSkill, error) {
	return e.repo.GetSkill(ctx, profileID, "gathering_"+skillType)
}

// ClaimResult marks a completed job's result as claimed. Re-claiming only
// re-sets the flag; rewards are never reissued.
func (e *Engine) ClaimResult(ctx context.Context, jobID, profileID int64) (*JobSummary, error) {
	job, err := e.repo.MarkClaimed(ctx, jobID, profileID)
	if err != nil {
		return nil, err
	}

	nodeName := job.NodeKey
	if node, err := e.repo.GetNode(ctx, job.NodeKey); err == nil {
		nodeName = node.DisplayName
	}

	completedAt := job.ExpectedEndAt
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}

	return &JobSummary{
		ID:                 job.ID,
		NodeKey:            job.NodeKey,
		NodeName:           nodeName,
		Status:             job.Status,
		StartedAt:          job.StartedAt,
		ExpectedEndAt:      job.ExpectedEndAt,
		ProgressPercentage: job.ProgressPercentage,
		Result: &JobResultView{
			Items:       job.Result.Items,
			Experience:  job.Result.Experience,
			Claimed:     job.Result.Claimed,
			CompletedAt: completedAt,
			Offline:     job.Result.Offline,
		},
	}, nil
}
