package domain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ContentKind tags a register contents variant. The set is closed: adding a
// kind means extending every exhaustive switch below, which the compiler
// flags via the default-panic in canonicalize.
type ContentKind string

const (
	KindResource           ContentKind = "resource"
	KindTokenBalance       ContentKind = "token_balance"
	KindNFT                ContentKind = "nft"
	KindStateCommitment    ContentKind = "state_commitment"
	KindTimeMapCommitment  ContentKind = "time_map_commitment"
	KindDataObject         ContentKind = "data_object"
	KindEffectRef          ContentKind = "effect_ref"
	KindNullifier          ContentKind = "nullifier"
	KindResourceCommitment ContentKind = "resource_commitment"
	KindComposite          ContentKind = "composite"
)

// Contents is the closed sum of register payload variants. Each variant is
// opaque payload plus the type tag used for conservation accounting.
type Contents interface {
	Kind() ContentKind
	// Amounts reports the signed quantities this payload contributes per
	// resource class. Non-quantitative variants report nothing.
	Amounts() map[ResourceClass]int64
	isContents()
}

// Resource is a generic quantified resource occurrence.
type Resource struct {
	Class    ResourceClass `json:"class"`
	Quantity int64         `json:"quantity"`
}

// TokenBalance is a fungible token amount.
type TokenBalance struct {
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

// NFTContent is a unique token; it conserves as quantity one of its own class.
type NFTContent struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
}

// StateCommitment binds an external state root.
type StateCommitment struct {
	Root string `json:"root"`
}

// TimeMapContents stores a time map as register payload so commitments are
// themselves content addressed.
type TimeMapContents struct {
	TimeMap TimeMap `json:"time_map"`
}

// DataObject is opaque caller data.
type DataObject struct {
	Data []byte `json:"data"`
}

// EffectRef references an effect DAG node by content hash.
type EffectRef struct {
	Hash string `json:"hash"`
}

// Nullifier marks a register as consumed, preventing reuse.
type Nullifier struct {
	Target RegisterID `json:"target"`
}

// ResourceCommitment is a provable binding of a resource value.
type ResourceCommitment struct {
	Commitment string `json:"commitment"`
}

// Composite holds an ordered list of payloads; conservation accounting sums
// over the members.
type Composite struct {
	Items []Contents `json:"-"`
}

func (Resource) Kind() ContentKind           { return KindResource }
func (TokenBalance) Kind() ContentKind       { return KindTokenBalance }
func (NFTContent) Kind() ContentKind         { return KindNFT }
func (StateCommitment) Kind() ContentKind    { return KindStateCommitment }
func (TimeMapContents) Kind() ContentKind    { return KindTimeMapCommitment }
func (DataObject) Kind() ContentKind         { return KindDataObject }
func (EffectRef) Kind() ContentKind          { return KindEffectRef }
func (Nullifier) Kind() ContentKind          { return KindNullifier }
func (ResourceCommitment) Kind() ContentKind { return KindResourceCommitment }
func (Composite) Kind() ContentKind          { return KindComposite }

func (c Resource) Amounts() map[ResourceClass]int64 {
	return map[ResourceClass]int64{c.Class: c.Quantity}
}

func (c TokenBalance) Amounts() map[ResourceClass]int64 {
	return map[ResourceClass]int64{ResourceClass("token:" + c.Token): c.Amount}
}

func (c NFTContent) Amounts() map[ResourceClass]int64 {
	return map[ResourceClass]int64{ResourceClass("nft:" + c.Collection + "/" + c.TokenID): 1}
}

func (StateCommitment) Amounts() map[ResourceClass]int64    { return nil }
func (TimeMapContents) Amounts() map[ResourceClass]int64    { return nil }
func (DataObject) Amounts() map[ResourceClass]int64         { return nil }
func (EffectRef) Amounts() map[ResourceClass]int64          { return nil }
func (Nullifier) Amounts() map[ResourceClass]int64          { return nil }
func (ResourceCommitment) Amounts() map[ResourceClass]int64 { return nil }

func (c Composite) Amounts() map[ResourceClass]int64 {
	total := make(map[ResourceClass]int64)
	for _, item := range c.Items {
		for class, amount := range item.Amounts() {
			total[class] += amount
		}
	}
	if len(total) == 0 {
		return nil
	}
	return total
}

func (Resource) isContents()           {}
func (TokenBalance) isContents()       {}
func (NFTContent) isContents()         {}
func (StateCommitment) isContents()    {}
func (TimeMapContents) isContents()    {}
func (DataObject) isContents()         {}
func (EffectRef) isContents()          {}
func (Nullifier) isContents()          {}
func (ResourceCommitment) isContents() {}
func (Composite) isContents()          {}

// canonicalize writes a deterministic byte encoding of contents for hashing.
// The switch is exhaustive over the closed set; an unknown variant is a
// programming error.
func canonicalize(w io.Writer, c Contents) {
	writeString(w, string(c.Kind()))
	switch v := c.(type) {
	case Resource:
		writeString(w, string(v.Class))
		writeInt64(w, v.Quantity)
	case TokenBalance:
		writeString(w, v.Token)
		writeInt64(w, v.Amount)
	case NFTContent:
		writeString(w, v.Collection)
		writeString(w, v.TokenID)
	case StateCommitment:
		writeString(w, v.Root)
	case TimeMapContents:
		writeString(w, string(v.TimeMap.ContentHash()))
	case DataObject:
		writeBytes(w, v.Data)
	case EffectRef:
		writeString(w, v.Hash)
	case Nullifier:
		writeString(w, string(v.Target))
	case ResourceCommitment:
		writeString(w, v.Commitment)
	case Composite:
		writeInt64(w, int64(len(v.Items)))
		for _, item := range v.Items {
			canonicalize(w, item)
		}
	default:
		panic(fmt.Sprintf("unknown contents kind %T", c))
	}
}

func writeString(w io.Writer, s string) { writeBytes(w, []byte(s)) }

func writeBytes(w io.Writer, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	w.Write(n[:])
	w.Write(b)
}

func writeInt64(w io.Writer, v int64) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(v))
	w.Write(n[:])
}

func writeUint64(w io.Writer, v uint64) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], v)
	w.Write(n[:])
}

// contentsEnvelope is the persisted JSON form: a kind tag plus the variant
// payload, so the Postgres store and causal replay round-trip the sum type.
type contentsEnvelope struct {
	Kind    ContentKind       `json:"kind"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Items   []json.RawMessage `json:"items,omitempty"`
}

// MarshalContents encodes contents into the tagged envelope form.
func MarshalContents(c Contents) ([]byte, error) {
	env := contentsEnvelope{Kind: c.Kind()}
	if comp, ok := c.(Composite); ok {
		for _, item := range comp.Items {
			raw, err := MarshalContents(item)
			if err != nil {
				return nil, err
			}
			env.Items = append(env.Items, raw)
		}
		return json.Marshal(env)
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	env.Payload = payload
	return json.Marshal(env)
}

// UnmarshalContents decodes the tagged envelope form back into the sum type.
func UnmarshalContents(data []byte) (Contents, error) {
	var env contentsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode contents envelope: %w", err)
	}
	if env.Kind == KindComposite {
		comp := Composite{}
		for _, raw := range env.Items {
			item, err := UnmarshalContents(raw)
			if err != nil {
				return nil, err
			}
			comp.Items = append(comp.Items, item)
		}
		return comp, nil
	}
	decode := func(v Contents) (Contents, error) {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return nil, fmt.Errorf("decode %s contents: %w", env.Kind, err)
		}
		return v, nil
	}
	switch env.Kind {
	case KindResource:
		v, err := decode(&Resource{})
		if err != nil {
			return nil, err
		}
		return *v.(*Resource), nil
	case KindTokenBalance:
		v, err := decode(&TokenBalance{})
		if err != nil {
			return nil, err
		}
		return *v.(*TokenBalance), nil
	case KindNFT:
		v, err := decode(&NFTContent{})
		if err != nil {
			return nil, err
		}
		return *v.(*NFTContent), nil
	case KindStateCommitment:
		v, err := decode(&StateCommitment{})
		if err != nil {
			return nil, err
		}
		return *v.(*StateCommitment), nil
	case KindTimeMapCommitment:
		v, err := decode(&TimeMapContents{})
		if err != nil {
			return nil, err
		}
		return *v.(*TimeMapContents), nil
	case KindDataObject:
		v, err := decode(&DataObject{})
		if err != nil {
			return nil, err
		}
		return *v.(*DataObject), nil
	case KindEffectRef:
		v, err := decode(&EffectRef{})
		if err != nil {
			return nil, err
		}
		return *v.(*EffectRef), nil
	case KindNullifier:
		v, err := decode(&Nullifier{})
		if err != nil {
			return nil, err
		}
		return *v.(*Nullifier), nil
	case KindResourceCommitment:
		v, err := decode(&ResourceCommitment{})
		if err != nil {
			return nil, err
		}
		return *v.(*ResourceCommitment), nil
	default:
		return nil, fmt.Errorf("unknown contents kind %q", env.Kind)
	}
}
