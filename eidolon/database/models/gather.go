package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Gather job statuses. Jobs start directly as running; queued exists in the
// schema for forward compatibility but no current flow produces it.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
)

// GatherNode is an admin-managed catalog row. The engine only reads it.
type GatherNode struct {
	bun.BaseModel `bun:"table:gather_nodes,alias:gn"`

	NodeKey             string    `bun:"node_key,pk"`
	DisplayName         string    `bun:"display_name,notnull"`
	DisplayNameEn       string    `bun:"display_name_en"`
	Scene               string    `bun:"scene,notnull"`
	SkillType           string    `bun:"skill_type,notnull"`
	MinLevel            int       `bun:"min_level,notnull,default:1"`
	BaseDurationSeconds int64     `bun:"base_duration_seconds,notnull"`
	MaxParallelJobs     int       `bun:"max_parallel_jobs,notnull,default:1"`
	EnergyCost          int       `bun:"energy_cost,notnull,default:0"`
	SuccessRate         float64   `bun:"success_rate,notnull"`
	OutputItemKey       string    `bun:"output_item_key,notnull"`
	OutputMin           int       `bun:"output_min,notnull"`
	OutputMax           int       `bun:"output_max,notnull"`
	RespawnSeconds      int       `bun:"respawn_seconds,notnull,default:0"`
	SeasonEventBonus    string    `bun:"season_event_bonus"`
	Notes               string    `bun:"notes"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// JobItem is one merged drop line inside a job result.
type JobItem struct {
	ItemKey  string `json:"itemKey"`
	Quantity int64  `json:"quantity"`
}

// JobResult is the structured result document stored on a gather job. It is a
// skeleton ({cycles,0,[],false,false}) while the job runs and is populated
// exactly once at settlement.
type JobResult struct {
	Cycles     int       `json:"cycles"`
	Items      []JobItem `json:"items"`
	Experience int64     `json:"experience"`
	Claimed    bool      `json:"claimed"`
	Offline    bool      `json:"offline"`
}

type GatherJob struct {
	bun.BaseModel `bun:"table:gather_jobs,alias:gj"`

	ID                 int64      `bun:"id,pk,autoincrement"`
	ProfileID          int64      `bun:"profile_id,notnull"`
	NodeKey            string     `bun:"node_key,notnull"`
	Status             string     `bun:"status,notnull,default:'running'"`
	StartedAt          time.Time  `bun:"started_at,notnull,default:current_timestamp"`
	ExpectedEndAt      time.Time  `bun:"expected_end_at,notnull"`
	DurationSeconds    int64      `bun:"duration_seconds,notnull"`
	CompletedAt        *time.Time `bun:"completed_at"`
	ProgressPercentage float64    `bun:"progress_percentage,notnull,default:0"`
	Result             JobResult  `bun:"result,type:jsonb"`
}

// GatherResult is the per-item reward ledger row written once at settlement.
type GatherResult struct {
	bun.BaseModel `bun:"table:gather_results,alias:gr"`

	ID               int64     `bun:"id,pk,autoincrement"`
	JobID            int64     `bun:"job_id,notnull"`
	ItemKey          string    `bun:"item_key,notnull"`
	Quantity         int64     `bun:"quantity,notnull"`
	ExperienceGained int64     `bun:"experience_gained,notnull"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type ProfileSkill struct {
	bun.BaseModel `bun:"table:profile_skills,alias:ps"`

	ID         int64     `bun:"id,pk,autoincrement"`
	ProfileID  int64     `bun:"profile_id,notnull,unique:profile_skills_profile_skill"`
	SkillKey   string    `bun:"skill_key,notnull,unique:profile_skills_profile_skill"`
	Level      int       `bun:"level,notnull,default:1"`
	Experience int64     `bun:"experience,notnull,default:0"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
