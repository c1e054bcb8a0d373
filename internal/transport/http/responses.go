package httptransport

import (
	"encoding/json"
	"time"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// ReceiptResponse reports a committed operation.
type ReceiptResponse struct {
	TransactionID domain.TransactionID `json:"transaction_id"`
	Outputs       []domain.RegisterID  `json:"outputs"`
	LogicalTime   uint64               `json:"logical_time"`
	CommittedAt   time.Time            `json:"committed_at"`
}

// FromReceipt converts the domain receipt to its wire form.
func FromReceipt(r *domain.Receipt) ReceiptResponse {
	return ReceiptResponse{
		TransactionID: r.TransactionID,
		Outputs:       r.Outputs,
		LogicalTime:   r.LogicalTime,
		CommittedAt:   r.CommittedAt,
	}
}

// RegisterResponse is the wire form of a register. Contents ride in the same
// tagged envelope used for persistence; archived registers carry the stub
// instead.
type RegisterResponse struct {
	ID          domain.RegisterID    `json:"id"`
	Owner       domain.Owner         `json:"owner"`
	Epoch       domain.EpochID       `json:"epoch"`
	Status      domain.Status        `json:"status"`
	Contents    json.RawMessage      `json:"contents,omitempty"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	LastUpdated time.Time            `json:"last_updated"`
	Stub        *domain.RegisterStub `json:"stub,omitempty"`
}

// FromRegister converts a register to its wire form.
func FromRegister(reg *domain.Register, stub *domain.RegisterStub) RegisterResponse {
	resp := RegisterResponse{
		ID:          reg.ID,
		Owner:       reg.Owner,
		Epoch:       reg.Epoch,
		Status:      reg.State.Status,
		Metadata:    reg.Metadata,
		CreatedAt:   reg.CreatedAt,
		LastUpdated: reg.LastUpdated,
		Stub:        stub,
	}
	if reg.Contents != nil && stub == nil {
		if raw, err := domain.MarshalContents(reg.Contents); err == nil {
			resp.Contents = raw
		}
	}
	return resp
}

// TimeMapResponse is the wire form of a time map snapshot.
type TimeMapResponse struct {
	Positions  map[domain.DomainID]domain.TimePosition `json:"positions"`
	ObservedAt uint64                                  `json:"observed_at"`
	Hash       domain.TimeMapHash                      `json:"hash"`
}

// FromTimeMap converts a time map to its wire form, including its content
// address.
func FromTimeMap(tm domain.TimeMap) TimeMapResponse {
	return TimeMapResponse{
		Positions:  tm.Positions,
		ObservedAt: tm.ObservedAt,
		Hash:       tm.ContentHash(),
	}
}

// CommitmentResponse reports a committed time map.
type CommitmentResponse struct {
	RegisterID        domain.RegisterID  `json:"register_id"`
	Hash              domain.TimeMapHash `json:"hash"`
	ProofID           string             `json:"proof_id"`
	LastUpdatedHeight uint64             `json:"last_updated_height"`
}

// GCResponse reports one garbage collection pass.
type GCResponse struct {
	Epoch      domain.EpochID      `json:"epoch"`
	Archived   int                 `json:"archived"`
	Failed     int                 `json:"failed"`
	Tombstoned int                 `json:"tombstoned"`
	Summaries  []domain.RegisterID `json:"summaries,omitempty"`
}
