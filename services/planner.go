package services

import (
	"fmt"

	"listings-ingest/models"
	"listings-ingest/utils"
)

// Planner decides, for each normalized listing, which write it needs.
type Planner struct {
	strategy models.Strategy
	logger   *utils.Logger
}

// NewPlanner creates a Planner for the given strategy.
func NewPlanner(strategy models.Strategy, logger *utils.Logger) (*Planner, error) {
	if _, err := models.ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	return &Planner{strategy: strategy, logger: logger}, nil
}

// Strategy returns the configured reconciliation strategy.
func (p *Planner) Strategy() models.Strategy { return p.strategy }

// Plan partitions the batch against the identifiers already stored.
// existing may be nil, meaning the store is empty.
func (p *Planner) Plan(batch []*models.Listing, existing *utils.IDSet) *models.Plan {
	var plan *models.Plan
	switch p.strategy {
	case models.StrategyInsertIfAbsent:
		plan = planInsertIfAbsent(batch, existing)
	default:
		plan = planUpsert(batch, existing)
	}

	p.logger.Info("[planner] %s: %d rows → %d operations (new %d, updates %d, existing skipped %d, duplicates %d)",
		plan.Strategy, len(batch), plan.Len(), plan.Stats.New, plan.Stats.Updates,
		plan.Stats.Existing, plan.Stats.Duplicates)
	return plan
}

// planInsertIfAbsent keeps the first occurrence of each identifier the
// store does not hold yet.
func planInsertIfAbsent(batch []*models.Listing, existing *utils.IDSet) *models.Plan {
	plan := &models.Plan{Strategy: models.StrategyInsertIfAbsent}
	seen := utils.NewIDSet()

	for _, l := range batch {
		if existing.Contains(l.ExternalID) {
			plan.Stats.Existing++
			continue
		}
		if !seen.Add(l.ExternalID) {
			plan.Stats.Duplicates++
			continue
		}
		plan.Ops = append(plan.Ops, models.Operation{Kind: models.OpInsert, Record: l})
		plan.Stats.New++
	}
	return plan
}

// planUpsert emits one upsert per identifier. When an identifier repeats,
// the last occurrence wins and keeps its position in file order.
func planUpsert(batch []*models.Listing, existing *utils.IDSet) *models.Plan {
	plan := &models.Plan{Strategy: models.StrategyUpsert}

	last := make(map[int64]int, len(batch))
	for i, l := range batch {
		last[l.ExternalID] = i
	}

	for i, l := range batch {
		if last[l.ExternalID] != i {
			plan.Stats.Duplicates++
			continue
		}
		plan.Ops = append(plan.Ops, models.Operation{Kind: models.OpUpsert, Record: l})
		if existing.Contains(l.ExternalID) {
			plan.Stats.Updates++
		} else {
			plan.Stats.New++
		}
	}
	return plan
}

// Describe is a one-line summary of what a strategy will and will not do.
func Describe(s models.Strategy) string {
	switch s {
	case models.StrategyInsertIfAbsent:
		return "insert-if-absent: new identifiers are inserted, stored rows are never updated"
	case models.StrategyUpsert:
		return "upsert: every row is inserted or overwrites the stored row with the same identifier"
	}
	return fmt.Sprintf("unknown strategy %q", string(s))
}
