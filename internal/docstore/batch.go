package docstore

import "fmt"

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type batchOp struct {
	kind   opKind
	ref    Ref
	data   any
	fields map[string]any
}

// Batch collects writes that are committed together.
type Batch struct {
	ops []batchOp
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Set(ref Ref, data any) *Batch {
	b.ops = append(b.ops, batchOp{kind: opSet, ref: ref, data: data})
	return b
}

func (b *Batch) Update(ref Ref, fields map[string]any) *Batch {
	b.ops = append(b.ops, batchOp{kind: opUpdate, ref: ref, fields: fields})
	return b
}

func (b *Batch) Delete(ref Ref) *Batch {
	b.ops = append(b.ops, batchOp{kind: opDelete, ref: ref})
	return b
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Apply replays the batch inside tx, stopping at the first failure.
func (b *Batch) Apply(tx Tx) error {
	for i, op := range b.ops {
		var err error
		switch op.kind {
		case opSet:
			err = tx.Set(op.ref, op.data)
		case opUpdate:
			err = tx.Update(op.ref, op.fields)
		case opDelete:
			err = tx.Delete(op.ref)
		}
		if err != nil {
			return fmt.Errorf("batch op %d on %s: %w", i, op.ref, err)
		}
	}
	return nil
}
