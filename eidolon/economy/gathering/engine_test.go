package gathering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
	"github.com/eidolonworld/eidolon/eidolon/database/repositories"
	"github.com/eidolonworld/eidolon/eidolon/economy/utils"
	"github.com/uptrace/bun"
)

type fakeTxManager struct{}

func (fakeTxManager) WithTransaction(ctx context.Context, _ *utils.TransactionOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

type fakeGatherRepo struct {
	nodes   map[string]*models.GatherNode
	jobs    map[int64]*models.GatherJob
	nextID  int64
	results []*models.GatherResult
	skills  map[string]*models.ProfileSkill

	// dueOverride simulates a stale due-job read from a concurrent caller.
	dueOverride []int64
}

func newFakeGatherRepo(nodes ...*models.GatherNode) *fakeGatherRepo {
	repo := &fakeGatherRepo{
		nodes:  map[string]*models.GatherNode{},
		jobs:   map[int64]*models.GatherJob{},
		skills: map[string]*models.ProfileSkill{},
	}
	for _, node := range nodes {
		repo.nodes[node.NodeKey] = node
	}
	return repo
}

func (f *fakeGatherRepo) GetNode(_ context.Context, nodeKey string) (*models.GatherNode, error) {
	node, ok := f.nodes[nodeKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrNodeNotFound, nodeKey)
	}
	return node, nil
}

func (f *fakeGatherRepo) CountActiveJobs(_ context.Context, _ bun.IDB, profileID int64, nodeKey string) (int, error) {
	count := 0
	for _, job := range f.jobs {
		if job.ProfileID == profileID && job.NodeKey == nodeKey &&
			(job.Status == models.JobStatusQueued || job.Status == models.JobStatusRunning) {
			count++
		}
	}
	return count, nil
}

func (f *fakeGatherRepo) InsertJob(_ context.Context, _ bun.IDB, job *models.GatherJob) error {
	f.nextID++
	job.ID = f.nextID
	stored := *job
	f.jobs[job.ID] = &stored
	return nil
}

func (f *fakeGatherRepo) DueJobIDs(_ context.Context, profileID int64, now time.Time) ([]int64, error) {
	if f.dueOverride != nil {
		return f.dueOverride, nil
	}
	var ids []int64
	for _, job := range f.jobs {
		if job.ProfileID == profileID && job.Status == models.JobStatusRunning && !job.ExpectedEndAt.After(now) {
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (f *fakeGatherRepo) GetJobForUpdate(_ context.Context, _ bun.IDB, jobID int64) (*models.GatherJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (f *fakeGatherRepo) MarkCompleted(_ context.Context, _ bun.IDB, job *models.GatherJob) error {
	stored := f.jobs[job.ID]
	stored.Status = models.JobStatusCompleted
	stored.CompletedAt = job.CompletedAt
	stored.ProgressPercentage = 100
	stored.Result = job.Result
	return nil
}

func (f *fakeGatherRepo) ListByProfile(_ context.Context, profileID int64) ([]*models.GatherJob, error) {
	var jobs []*models.GatherJob
	for _, job := range f.jobs {
		if job.ProfileID == profileID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs, nil
}

func (f *fakeGatherRepo) UpdateProgress(_ context.Context, jobID int64, progress float64) error {
	if job, ok := f.jobs[jobID]; ok && job.Status == models.JobStatusRunning {
		job.ProgressPercentage = progress
	}
	return nil
}

func (f *fakeGatherRepo) InsertResults(_ context.Context, _ bun.IDB, results []*models.GatherResult) error {
	f.results = append(f.results, results...)
	return nil
}

func (f *fakeGatherRepo) AddSkillExperience(_ context.Context, _ bun.IDB, profileID int64, skillKey string, delta int64) (int64, error) {
	key := fmt.Sprintf("%d/%s", profileID, skillKey)
	skill, ok := f.skills[key]
	if !ok {
		skill = &models.ProfileSkill{ProfileID: profileID, SkillKey: skillKey, Level: 1}
		f.skills[key] = skill
	}
	skill.Experience += delta
	return skill.Experience, nil
}

func (f *fakeGatherRepo) SetSkillLevel(_ context.Context, _ bun.IDB, profileID int64, skillKey string, level int) error {
	if skill, ok := f.skills[fmt.Sprintf("%d/%s", profileID, skillKey)]; ok {
		skill.Level = level
	}
	return nil
}

func (f *fakeGatherRepo) GetSkill(_ context.Context, profileID int64, skillKey string) (*models.ProfileSkill, error) {
	if skill, ok := f.skills[fmt.Sprintf("%d/%s", profileID, skillKey)]; ok {
		copied := *skill
		return &copied, nil
	}
	return &models.ProfileSkill{ProfileID: profileID, SkillKey: skillKey, Level: 1}, nil
}

func (f *fakeGatherRepo) MarkClaimed(_ context.Context, jobID, profileID int64) (*models.GatherJob, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.ProfileID != profileID || job.Status != models.JobStatusCompleted {
		return nil, repositories.ErrClaimNotFound
	}
	job.Result.Claimed = true
	copied := *job
	return &copied, nil
}

type fakeInventoryRepo struct {
	held map[string]int64
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{held: map[string]int64{}}
}

func invKey(profileID int64, itemKey string) string {
	return fmt.Sprintf("%d/%s", profileID, itemKey)
}

func (f *fakeInventoryRepo) Grant(_ context.Context, _ bun.IDB, profileID int64, itemKey string, quantity int64) error {
	f.held[invKey(profileID, itemKey)] += quantity
	return nil
}

func (f *fakeInventoryRepo) Deduct(_ context.Context, _ bun.IDB, profileID int64, itemKey string, quantity int64) error {
	key := invKey(profileID, itemKey)
	if f.held[key] < quantity {
		return fmt.Errorf("%w: %s", repositories.ErrInsufficientInventory, itemKey)
	}
	f.held[key] -= quantity
	if f.held[key] == 0 {
		delete(f.held, key)
	}
	return nil
}

func (f *fakeInventoryRepo) GetByProfile(_ context.Context, _ int64) ([]*models.InventoryEntry, error) {
	return nil, nil
}

func (f *fakeInventoryRepo) GetQuantity(_ context.Context, profileID int64, itemKey string) (int64, error) {
	return f.held[invKey(profileID, itemKey)], nil
}

func testNode() *models.GatherNode {
	return &models.GatherNode{
		NodeKey:             "tent_honey_harvest",
		DisplayName:         "Honey Harvest",
		SkillType:           "harvest",
		BaseDurationSeconds: 120,
		MaxParallelJobs:     2,
		SuccessRate:         1,
		OutputItemKey:       "tent_honey_nectar",
		OutputMin:           2,
		OutputMax:           2,
	}
}

func newTestEngine(repo *fakeGatherRepo, inventory *fakeInventoryRepo) *Engine {
	return NewEngine(fakeTxManager{}, repo, inventory, nil)
}

func TestStartJobCapacityExceeded(t *testing.T) {
	repo := newFakeGatherRepo(testNode())
	engine := newTestEngine(repo, newFakeInventoryRepo())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.StartJob(ctx, 1, "tent_honey_harvest", 1); err != nil {
			t.Fatalf("start %d failed: %v", i+1, err)
		}
	}

	_, err := engine.StartJob(ctx, 1, "tent_honey_harvest", 1)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("got %v, want ErrCapacityExceeded", err)
	}
	if len(repo.jobs) != 2 {
		t.Errorf("failed start created a job: %d jobs, want 2", len(repo.jobs))
	}

	// Another profile is not constrained by this profile's jobs.
	if _, err := engine.StartJob(ctx, 2, "tent_honey_harvest", 1); err != nil {
		t.Errorf("start for other profile failed: %v", err)
	}
}

func TestStartJobUnknownNode(t *testing.T) {
	engine := newTestEngine(newFakeGatherRepo(), newFakeInventoryRepo())

	_, err := engine.StartJob(context.Background(), 1, "no_such_node", 1)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("got %v, want ErrNodeNotFound", err)
	}
}

func TestStartJobClampsCycles(t *testing.T) {
	repo := newFakeGatherRepo(testNode())
	engine := newTestEngine(repo, newFakeInventoryRepo())

	summary, err := engine.StartJob(context.Background(), 1, "tent_honey_harvest", 99)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	job := repo.jobs[summary.ID]
	if job.Result.Cycles != 20 {
		t.Errorf("cycles = %d, want clamp to 20", job.Result.Cycles)
	}
	if job.DurationSeconds != 120*20 {
		t.Errorf("duration = %d, want %d", job.DurationSeconds, 120*20)
	}
}

func TestListJobsSettlesDueJobOnce(t *testing.T) {
	repo := newFakeGatherRepo(testNode())
	inventory := newFakeInventoryRepo()
	engine := newTestEngine(repo, inventory)
	ctx := context.Background()

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return started }
	summary, err := engine.StartJob(ctx, 1, "tent_honey_harvest", 3)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	engine.now = func() time.Time { return started.Add(time.Hour) }
	jobs, err := engine.ListJobs(ctx, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}

	settled := jobs[0]
	if settled.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", settled.Status)
	}
	if settled.ProgressPercentage != 100 {
		t.Errorf("progress = %v, want 100", settled.ProgressPercentage)
	}
	if settled.Result == nil {
		t.Fatal("completed job has no result")
	}
	if settled.Result.Claimed || !settled.Result.Offline {
		t.Errorf("result flags = claimed:%v offline:%v, want claimed:false offline:true",
			settled.Result.Claimed, settled.Result.Offline)
	}

	// success_rate 1 with fixed output 2 per cycle makes rewards deterministic
	wantQuantity := int64(2 * 3)
	if got, _ := inventory.GetQuantity(ctx, 1, "tent_honey_nectar"); got != wantQuantity {
		t.Errorf("inventory = %d, want %d", got, wantQuantity)
	}
	wantExp := int64(72) // round(120*3*0.2)
	if settled.Result.Experience != wantExp {
		t.Errorf("experience = %d, want %d", settled.Result.Experience, wantExp)
	}
	skill, _ := engine.SkillProgress(ctx, 1, "harvest")
	if skill.Experience != wantExp {
		t.Errorf("skill experience = %d, want %d", skill.Experience, wantExp)
	}
	if len(repo.results) != 1 {
		t.Fatalf("got %d result rows, want 1", len(repo.results))
	}

	// A second list with a stale due read must not settle again.
	repo.dueOverride = []int64{summary.ID}
	if _, err := engine.ListJobs(ctx, 1); err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if got, _ := inventory.GetQuantity(ctx, 1, "tent_honey_nectar"); got != wantQuantity {
		t.Errorf("inventory after re-list = %d, want unchanged %d (rewards reissued)", got, wantQuantity)
	}
	if len(repo.results) != 1 {
		t.Errorf("got %d result rows after re-list, want still 1", len(repo.results))
	}
	if skill, _ := engine.SkillProgress(ctx, 1, "harvest"); skill.Experience != wantExp {
		t.Errorf("skill experience after re-list = %d, want unchanged %d", skill.Experience, wantExp)
	}
}

func TestListJobsRefreshesRunningProgress(t *testing.T) {
	repo := newFakeGatherRepo(testNode())
	engine := newTestEngine(repo, newFakeInventoryRepo())
	ctx := context.Background()

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return started }
	if _, err := engine.StartJob(ctx, 1, "tent_honey_harvest", 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// 60s into a 120s job
	engine.now = func() time.Time { return started.Add(60 * time.Second) }
	jobs, err := engine.ListJobs(ctx, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if jobs[0].Status != models.JobStatusRunning {
		t.Fatalf("status = %s, want running", jobs[0].Status)
	}
	if jobs[0].ProgressPercentage != 50 {
		t.Errorf("progress = %v, want 50", jobs[0].ProgressPercentage)
	}
}

func TestClaimResult(t *testing.T) {
	repo := newFakeGatherRepo(testNode())
	engine := newTestEngine(repo, newFakeInventoryRepo())
	ctx := context.Background()

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return started }
	summary, err := engine.StartJob(ctx, 1, "tent_honey_harvest", 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Not completed yet
	if _, err := engine.ClaimResult(ctx, summary.ID, 1); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("claim on running job: got %v, want ErrClaimNotFound", err)
	}

	engine.now = func() time.Time { return started.Add(time.Hour) }
	if _, err := engine.ListJobs(ctx, 1); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if _, err := engine.ClaimResult(ctx, summary.ID, 2); !errors.Is(err, ErrClaimNotFound) {
		t.Fatalf("claim by wrong profile: got %v, want ErrClaimNotFound", err)
	}

	claimed, err := engine.ClaimResult(ctx, summary.ID, 1)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.Result == nil || !claimed.Result.Claimed {
		t.Error("claim did not set the claimed flag")
	}

	// Re-claiming succeeds and only re-sets the flag.
	if _, err := engine.ClaimResult(ctx, summary.ID, 1); err != nil {
		t.Errorf("re-claim failed: %v", err)
	}
}
