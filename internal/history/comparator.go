package history

import (
	"fmt"
	"sort"
	"strings"
)

// BuildVerdict compares the current execution against the single most recent
// prior snapshot. prior may be nil for a first-seen query shape. The change
// percentage is always relative to that prior snapshot, never an older one.
func BuildVerdict(prior *ExecutionSnapshot, planHash string, cost float64, tableRows map[string]int64) RegressionVerdict {
	if prior == nil {
		return RegressionVerdict{
			Status:    StatusNewQuery,
			Narrative: "first time analyzing this query shape",
		}
	}

	if prior.PlanHash == planHash {
		return samePlanVerdict(prior, cost, tableRows)
	}
	return planChangedVerdict(prior, cost)
}

func samePlanVerdict(prior *ExecutionSnapshot, cost float64, tableRows map[string]int64) RegressionVerdict {
	if cost == 0 || prior.Cost == 0 {
		return RegressionVerdict{
			Status:    StatusStable,
			Narrative: "plan unchanged (cost data unavailable)",
		}
	}

	pct := pctChange(prior.Cost, cost)
	if abs(pct) < StableBandPct {
		return RegressionVerdict{
			Status:        StatusStable,
			CostChangePct: &pct,
			Narrative:     "performance stable, consistent with the previous execution",
		}
	}

	growth := tableGrowth(prior.TableRows, tableRows)
	isRegression := pct > 0

	v := RegressionVerdict{
		Status:        StatusCostChange,
		CostChangePct: &pct,
		IsRegression:  isRegression,
		DataGrowth:    growth,
	}
	if len(growth) > 0 {
		v.Status = StatusDataGrowth
		v.Narrative = fmt.Sprintf("cost changed %+.0f%%, likely due to data growth: %s",
			pct, strings.Join(growth, ", "))
	} else if isRegression {
		v.Narrative = fmt.Sprintf("cost regressed %+.0f%% with an unchanged plan", pct)
	} else {
		v.Narrative = fmt.Sprintf("cost improved %.0f%% with an unchanged plan", abs(pct))
	}
	return v
}

func planChangedVerdict(prior *ExecutionSnapshot, cost float64) RegressionVerdict {
	if cost == 0 || prior.Cost == 0 {
		return RegressionVerdict{
			Status:      StatusPlanChanged,
			PlanChanged: true,
			Narrative:   "execution plan changed (cost comparison unavailable)",
		}
	}

	pct := pctChange(prior.Cost, cost)
	improved := cost < prior.Cost

	v := RegressionVerdict{
		Status:        StatusPlanChanged,
		PlanChanged:   true,
		CostChangePct: &pct,
		IsRegression:  !improved,
	}
	if improved {
		v.Narrative = fmt.Sprintf("plan improved %.0f%%: the optimizer found a better strategy", abs(pct))
	} else {
		v.Narrative = fmt.Sprintf("plan regressed %+.0f%%: review optimizer statistics", pct)
	}
	return v
}

// tableGrowth lists per-table row-count deltas between the prior snapshot
// and the current stats, sorted by table name for deterministic output.
func tableGrowth(old, current map[string]int64) []string {
	var growth []string
	for table, oldRows := range old {
		newRows, ok := current[table]
		if !ok || oldRows <= 0 || newRows == oldRows {
			continue
		}
		growth = append(growth, fmt.Sprintf("%s: %+.0f%%",
			table, pctChange(float64(oldRows), float64(newRows))))
	}
	sort.Strings(growth)
	return growth
}

func pctChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return (new - old) / old * 100
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
