package gathering

import (
	"math"
	"math/rand"
	"time"

	"github.com/eidolonworld/eidolon/eidolon/database/models"
)

const (
	minCycles = 1
	maxCycles = 20

	// Experience floor per job and the per-second scaling factor.
	minJobExperience   = 10
	experiencePerCycle = 0.2

	levelCap            = 120
	baseLevelThreshold  = 100
	levelThresholdCurve = 1.35
)

// ClampCycles bounds a requested cycle count into [1,20]. Out-of-range
// requests are clamped, never rejected.
func ClampCycles(cycles int) int {
	if cycles < minCycles {
		return minCycles
	}
	if cycles > maxCycles {
		return maxCycles
	}
	return cycles
}

// CalculateLevelFromExperience derives a skill level from accumulated
// experience. It is a pure function of the total: level 1 at 0 exp, level 2
// at 100, each further step costing floor(100 * level^1.35) more, capped at
// level 120 no matter how much experience remains.
func CalculateLevelFromExperience(exp int64) int {
	level := 1
	threshold := int64(baseLevelThreshold)
	for exp >= threshold {
		level++
		threshold += int64(math.Floor(baseLevelThreshold * math.Pow(float64(level), levelThresholdCurve)))
		if level >= levelCap {
			break
		}
	}
	return level
}

func mergeItems(items []models.JobItem) []models.JobItem {
	quantities := make(map[string]int64)
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := quantities[item.ItemKey]; !seen {
			order = append(order, item.ItemKey)
		}
		quantities[item.ItemKey] += item.Quantity
	}

	merged := make([]models.JobItem, 0, len(order))
	for _, key := range order {
		merged = append(merged, models.JobItem{ItemKey: key, Quantity: quantities[key]})
	}
	return merged
}

// generateOutcome rolls the reward for a finished job: one independent
// success check per cycle, each success drawing a uniform quantity in
// [output_min, output_max]. Same-key drops merge into a single line.
// Experience depends only on node duration and cycle count, never on luck.
func generateOutcome(node *models.GatherNode, cycles int, rng *rand.Rand) ([]models.JobItem, int64) {
	drops := make([]models.JobItem, 0, cycles)
	for i := 0; i < cycles; i++ {
		if rng.Float64() <= node.SuccessRate {
			quantity := int64(node.OutputMin) + int64(rng.Intn(node.OutputMax-node.OutputMin+1))
			drops = append(drops, models.JobItem{ItemKey: node.OutputItemKey, Quantity: quantity})
		}
	}

	merged := mergeItems(drops)
	experience := int64(math.Round(float64(node.BaseDurationSeconds) * float64(cycles) * experiencePerCycle))
	if experience < minJobExperience {
		experience = minJobExperience
	}
	return merged, experience
}

// distributeExperience splits a job's experience across its merged item rows
// for per-item audit logging: an even integer share per row, with the
// division remainder attributed to the first row. The skill-experience grant
// always uses the undivided total.
func distributeExperience(items []models.JobItem, experience int64) []int64 {
	if len(items) == 0 {
		return nil
	}

	perItem := experience / int64(len(items))
	remainder := experience - perItem*int64(len(items))

	shares := make([]int64, len(items))
	for i := range items {
		shares[i] = perItem
		if i == 0 {
			shares[i] += remainder
		}
	}
	return shares
}

// computeProgress recomputes a running job's completion percentage at read
// time, clamped to [0,100].
func computeProgress(job *models.GatherJob, now time.Time) float64 {
	elapsedMs := float64(now.Sub(job.StartedAt).Milliseconds())
	progress := elapsedMs / (float64(job.DurationSeconds) * 1000) * 100
	return math.Min(100, math.Max(0, progress))
}

// roundProgress rounds for display with two decimal places.
func roundProgress(progress float64) float64 {
	return math.Round(progress*100) / 100
}
