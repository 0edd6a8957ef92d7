package crdt

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/parcad/internal/ir"
)

// OpKind distinguishes replicated mutations.
type OpKind string

const (
	// OpSet writes a map slot.
	OpSet OpKind = "set"
	// OpDelete tombstones a map slot.
	OpDelete OpKind = "del"
	// OpInsert inserts an element into a sequence after Origin.
	OpInsert OpKind = "ins"
	// OpRemove tombstones a sequence element.
	OpRemove OpKind = "rm"
)

// Op is one replicated mutation. An Update carries the ops of one logical
// transaction.
type Op struct {
	ID     OpID
	Seq    uint64 // Contiguous per-replica delivery number
	Kind   OpKind
	Target string // Container name
	Key    string // OpSet, OpDelete
	Value  ir.Value
	Origin OpID   // OpInsert; zero means sequence head
	Elem   string // OpInsert payload
	Ref    OpID   // OpRemove target element
}

// Update is a batch of ops, serialized as an opaque blob.
type Update struct {
	Ops []Op
}

// toObject renders op into its canonical wire form.
func (op Op) toObject() ir.Object {
	obj := ir.Object{
		"id":     ir.String(op.ID.String()),
		"seq":    ir.Int(int64(op.Seq)),
		"kind":   ir.String(string(op.Kind)),
		"target": ir.String(op.Target),
	}
	switch op.Kind {
	case OpSet:
		obj["key"] = ir.String(op.Key)
		obj["value"] = op.Value
	case OpDelete:
		obj["key"] = ir.String(op.Key)
	case OpInsert:
		obj["elem"] = ir.String(op.Elem)
		if !op.Origin.IsZero() {
			obj["origin"] = ir.String(op.Origin.String())
		}
	case OpRemove:
		obj["ref"] = ir.String(op.Ref.String())
	}
	return obj
}

// EncodeUpdate serializes an update to canonical JSON.
func EncodeUpdate(u Update) ([]byte, error) {
	ops := make(ir.Array, len(u.Ops))
	for i, op := range u.Ops {
		if op.Kind == OpSet && op.Value == nil {
			return nil, fmt.Errorf("encode update: op %s: set without value", op.ID)
		}
		ops[i] = op.toObject()
	}
	blob, err := ir.MarshalCanonical(ir.Object{
		"v":   ir.Int(ir.WireVersion),
		"ops": ops,
	})
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return blob, nil
}

type wireUpdate struct {
	V   int      `json:"v"`
	Ops []wireOp `json:"ops"`
}

type wireOp struct {
	ID     string          `json:"id"`
	Seq    uint64          `json:"seq"`
	Kind   OpKind          `json:"kind"`
	Target string          `json:"target"`
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
	Origin string          `json:"origin"`
	Elem   string          `json:"elem"`
	Ref    string          `json:"ref"`
}

// DecodeUpdate parses and validates an update blob.
func DecodeUpdate(blob []byte) (Update, error) {
	var w wireUpdate
	if err := json.Unmarshal(blob, &w); err != nil {
		return Update{}, fmt.Errorf("decode update: %w", err)
	}
	if w.V != ir.WireVersion {
		return Update{}, fmt.Errorf("decode update: unsupported wire version %d", w.V)
	}

	u := Update{Ops: make([]Op, 0, len(w.Ops))}
	for i, wo := range w.Ops {
		op, err := wo.toOp()
		if err != nil {
			return Update{}, fmt.Errorf("decode update: ops[%d]: %w", i, err)
		}
		u.Ops = append(u.Ops, op)
	}
	return u, nil
}

func (wo wireOp) toOp() (Op, error) {
	id, err := ParseOpID(wo.ID)
	if err != nil {
		return Op{}, err
	}
	if wo.Seq == 0 {
		return Op{}, fmt.Errorf("op %s: seq must be positive", id)
	}
	if wo.Target == "" {
		return Op{}, fmt.Errorf("op %s: missing target", id)
	}
	op := Op{ID: id, Seq: wo.Seq, Kind: wo.Kind, Target: wo.Target}

	switch wo.Kind {
	case OpSet:
		if len(wo.Value) == 0 {
			return Op{}, fmt.Errorf("op %s: set without value", id)
		}
		v, err := ir.UnmarshalValue(wo.Value)
		if err != nil {
			return Op{}, fmt.Errorf("op %s: value: %w", id, err)
		}
		op.Key, op.Value = wo.Key, v
	case OpDelete:
		op.Key = wo.Key
	case OpInsert:
		op.Elem = wo.Elem
		if wo.Origin != "" {
			if op.Origin, err = ParseOpID(wo.Origin); err != nil {
				return Op{}, fmt.Errorf("op %s: origin: %w", id, err)
			}
		}
	case OpRemove:
		if op.Ref, err = ParseOpID(wo.Ref); err != nil {
			return Op{}, fmt.Errorf("op %s: ref: %w", id, err)
		}
	default:
		return Op{}, fmt.Errorf("op %s: unknown kind %q", id, wo.Kind)
	}
	return op, nil
}
