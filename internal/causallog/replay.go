package causallog

import (
	"context"
	"fmt"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Lineage is the replayed causal structure: which transaction consumed each
// register and which registers it produced.
type Lineage struct {
	// ConsumedBy maps a register to the transaction that consumed it.
	ConsumedBy map[domain.RegisterID]domain.TransactionID
	// ProducedBy maps a register to the transaction that created it.
	ProducedBy map[domain.RegisterID]domain.TransactionID
	// Order is the transaction sequence in append order.
	Order []domain.TransactionID
}

// Replay folds the log back into register lineage. A register consumed twice
// is a corruption of the one-time-use invariant and aborts the replay.
func Replay(ctx context.Context, log Log) (*Lineage, error) {
	entries, err := log.Entries(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("read causal log: %w", err)
	}

	lineage := &Lineage{
		ConsumedBy: make(map[domain.RegisterID]domain.TransactionID),
		ProducedBy: make(map[domain.RegisterID]domain.TransactionID),
	}
	for _, entry := range entries {
		for _, id := range entry.InputIDs {
			if prior, ok := lineage.ConsumedBy[id]; ok {
				return nil, fmt.Errorf("register %s consumed by both %s and %s", id, prior, entry.TransactionID)
			}
			lineage.ConsumedBy[id] = entry.TransactionID
		}
		for _, id := range entry.OutputIDs {
			lineage.ProducedBy[id] = entry.TransactionID
		}
		lineage.Order = append(lineage.Order, entry.TransactionID)
	}
	return lineage, nil
}
