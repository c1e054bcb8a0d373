// Package archive stores full register bodies evicted from the hot path by
// garbage collection, keyed by archive id with an integrity hash.
package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Record is an archived register body plus its integrity hash.
type Record struct {
	ArchiveID     domain.ArchiveID  `json:"archive_id"`
	RegisterID    domain.RegisterID `json:"register_id"`
	Body          []byte            `json:"body"`
	IntegrityHash string            `json:"integrity_hash"`
}

// Archive persists archived register bodies. Put must be durable and
// verifiable before the caller replaces the hot-path entry.
type Archive interface {
	Put(ctx context.Context, reg *domain.Register) (Record, error)
	Get(ctx context.Context, id domain.ArchiveID) (Record, error)
	// Verify re-hashes the stored body against the recorded integrity hash.
	Verify(ctx context.Context, id domain.ArchiveID) (bool, error)
}

// EncodeBody serializes a register for archival. Contents ride in the tagged
// envelope form so replay tooling can decode them.
func EncodeBody(reg *domain.Register) ([]byte, error) {
	contents, err := domain.MarshalContents(reg.Contents)
	if err != nil {
		return nil, fmt.Errorf("encode archived contents: %w", err)
	}
	return json.Marshal(struct {
		Register *domain.Register `json:"register"`
		Contents json.RawMessage  `json:"contents"`
	}{Register: reg, Contents: contents})
}

// HashBody returns the hex blake2b integrity hash of an encoded body.
func HashBody(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
