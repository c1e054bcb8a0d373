package domain

// Epoch is a contiguous, non-overlapping partition of register creation
// order, bounded externally by height or wall-clock period.
type Epoch struct {
	ID             EpochID      `json:"id"`
	BoundaryHeight uint64       `json:"boundary_height"`
	Members        []RegisterID `json:"members"`
}

// SummaryStrategy selects how GC groups consumed registers into summaries.
type SummaryStrategy string

const (
	SummarizeByResource SummaryStrategy = "by_resource"
	SummarizeByOwner    SummaryStrategy = "by_owner"
	SummarizeByKind     SummaryStrategy = "by_kind"
	// SummarizeCustom defers to a caller-supplied grouping function.
	SummarizeCustom SummaryStrategy = "custom"
)

// ArchivalPolicy is process-wide GC configuration; operations never mutate it.
type ArchivalPolicy struct {
	KeepEpochs      uint64          `json:"keep_epochs"`
	PruneAfter      uint64          `json:"prune_after"`
	SummaryStrategy SummaryStrategy `json:"summary_strategy"`
	ArchiveLocation string          `json:"archive_location"`
	BatchSize       int             `json:"batch_size"`
}

// RegisterSummary is the compact record GC persists per group of archived
// registers: net per-class amounts plus the members whose proof chain links
// initial and final state.
type RegisterSummary struct {
	GroupKey string                  `json:"group_key"`
	Epoch    EpochID                 `json:"epoch"`
	Count    int                     `json:"count"`
	Net      map[ResourceClass]int64 `json:"net,omitempty"`
	Members  []RegisterID            `json:"members"`
}
