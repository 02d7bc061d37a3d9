package models

import "fmt"

// Strategy selects how the planner reconciles a batch against the store.
type Strategy string

const (
	// StrategyUpsert writes every record with insert-or-overwrite semantics.
	// It is the only strategy safe under concurrent ingestion runs.
	StrategyUpsert Strategy = "upsert"

	// StrategyInsertIfAbsent inserts only identifiers the store has never
	// seen. Existing rows are never touched, so price or status changes on
	// an existing unit are not picked up.
	StrategyInsertIfAbsent Strategy = "insert-if-absent"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyUpsert, StrategyInsertIfAbsent:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown ingest strategy %q (want %q or %q)",
		s, StrategyUpsert, StrategyInsertIfAbsent)
}

// OpKind is the store mutation an Operation performs.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpsert
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpsert:
		return "upsert"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Operation is one planned write.
type Operation struct {
	Kind   OpKind
	Record *Listing
}

// PlanStats counts how the planner classified the batch.
type PlanStats struct {
	// Duplicates is the number of rows dropped because their identifier
	// repeated inside the batch.
	Duplicates int
	// Existing is the number of rows dropped because the store already
	// holds their identifier (insert-if-absent only).
	Existing int
	New      int
	Updates  int
}

// Plan is the ordered list of writes for one batch.
type Plan struct {
	Strategy Strategy
	Ops      []Operation
	Stats    PlanStats
}

// Len returns the number of planned operations.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Ops)
}
