package domain

// DomainID names an independent external ledger (chain, event log) with its
// own consensus and block height.
type DomainID string

// RegisterID is the content address of a register: the blake2b hash of its
// contents, owner, and creation epoch, hex encoded.
type RegisterID string

// Owner identifies the party a register belongs to. The authorization model
// behind ownership is an external collaborator concern.
type Owner string

// TransactionID identifies a committed operation. Referenced by consumed
// inputs' ConsumedBy field and by the causal log.
type TransactionID string

// ArchiveID locates an archived register body in the configured archive
// backend.
type ArchiveID string

// EpochID numbers contiguous, non-overlapping partitions of register
// creation order.
type EpochID uint64

// ResourceClass groups quantities for conservation accounting. Fungible
// balances of the same token share a class; an NFT is its own class.
type ResourceClass string
