package httptransport

import (
	"encoding/json"
	"time"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

// OperationRequest is the wire form of a register operation. Output contents
// arrive as tagged envelopes and are decoded into the domain sum type before
// validation.
type OperationRequest struct {
	Type            domain.OperationType `json:"type"`
	Caller          string               `json:"caller"`
	Inputs          []domain.RegisterID  `json:"inputs"`
	Outputs         []OutputRequest      `json:"outputs"`
	ObservedTimeMap TimeMapRequest       `json:"observed_time_map"`
	Authorization   string               `json:"authorization,omitempty"`
}

// OutputRequest describes one proposed output register.
type OutputRequest struct {
	Owner    domain.Owner      `json:"owner"`
	Contents json.RawMessage   `json:"contents"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TimeMapRequest is the wire form of an observed time map.
type TimeMapRequest struct {
	Positions  []PositionRequest `json:"positions"`
	ObservedAt uint64            `json:"observed_at"`
}

// PositionRequest is the wire form of one domain position.
type PositionRequest struct {
	Domain    domain.DomainID `json:"domain"`
	Height    uint64          `json:"height"`
	BlockHash string          `json:"block_hash"`
	Timestamp time.Time       `json:"timestamp"`
}

// ToOperation decodes the request into the domain form.
func (r OperationRequest) ToOperation() (domain.Operation, error) {
	outputs := make([]domain.ProposedOutput, 0, len(r.Outputs))
	for i, out := range r.Outputs {
		if len(out.Contents) == 0 {
			return domain.Operation{}, ledgererrors.Newf(ledgererrors.CodeBadRequest,
				"output %d has no contents", i)
		}
		contents, err := domain.UnmarshalContents(out.Contents)
		if err != nil {
			return domain.Operation{}, ledgererrors.Wrap(err, ledgererrors.CodeBadRequest,
				"decode output contents")
		}
		outputs = append(outputs, domain.ProposedOutput{
			Owner:    out.Owner,
			Contents: contents,
			Metadata: out.Metadata,
		})
	}
	return domain.Operation{
		Type:                  r.Type,
		Caller:                r.Caller,
		Inputs:                r.Inputs,
		Outputs:               outputs,
		ObservedTimeMap:       r.ObservedTimeMap.ToTimeMap(),
		AuthorizationEvidence: r.Authorization,
	}, nil
}

// ToTimeMap decodes the wire form into the domain form.
func (r TimeMapRequest) ToTimeMap() domain.TimeMap {
	positions := make([]domain.TimePosition, 0, len(r.Positions))
	for _, p := range r.Positions {
		positions = append(positions, p.ToPosition())
	}
	return domain.NewTimeMap(r.ObservedAt, positions...)
}

// ToPosition decodes the wire form into the domain form.
func (r PositionRequest) ToPosition() domain.TimePosition {
	return domain.TimePosition{
		Domain:    r.Domain,
		Height:    r.Height,
		BlockHash: r.BlockHash,
		Timestamp: r.Timestamp,
	}
}

// ObserveRequest delivers newly observed domain positions.
type ObserveRequest struct {
	Positions []PositionRequest `json:"positions"`
}
