// Package index maps named entities of an optimization problem to contiguous
// column ranges of the decision vector.
//
// A [Builder] is filled in a fixed order each time the problem structure
// changes and produces an immutable [Handler]. Components look up columns by
// entity instead of hard-coding offsets.
package index

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEntity   = errors.New("index: unknown entity")
	ErrDuplicateEntity = errors.New("index: duplicate entity")
	ErrInvalidSize     = errors.New("index: invalid block size")
	ErrOutOfRange      = errors.New("index: local offset out of range")
)

type Kind uint8

const (
	Joint Kind = iota
	Rho
	SegmentCoM
	SegmentRho
)

func (k Kind) String() string {
	switch k {
	case Joint:
		return "joint"
	case Rho:
		return "rho"
	case SegmentCoM:
		return "segment_com"
	case SegmentRho:
		return "segment_rho"
	}
	return "unknown"
}

type Entity struct {
	Kind Kind
	Name string
}

func (e Entity) String() string { return e.Kind.String() + "/" + e.Name }

// Range is the half-open column interval [Start, Start+Size).
type Range struct {
	Start int
	Size  int
}

func (r Range) End() int { return r.Start + r.Size }

type block struct {
	entity Entity
	size   int
}

type Builder struct {
	blocks []block
}

func NewBuilder(capacity int) *Builder {
	return &Builder{blocks: make([]block, 0, capacity)}
}

func (b *Builder) Add(kind Kind, name string, size int) *Builder {
	b.blocks = append(b.blocks, block{entity: Entity{kind, name}, size: size})
	return b
}

func (b *Builder) Reset() { b.blocks = b.blocks[:0] }

func (b *Builder) Build() (*Handler, error) {
	h := &Handler{
		ranges: make(map[Entity]Range, len(b.blocks)),
		order:  make([]Entity, 0, len(b.blocks)),
	}
	offset := 0
	for _, blk := range b.blocks {
		if blk.size < 0 {
			return nil, fmt.Errorf("%s size %d: %w", blk.entity, blk.size, ErrInvalidSize)
		}
		if _, ok := h.ranges[blk.entity]; ok {
			return nil, fmt.Errorf("%s: %w", blk.entity, ErrDuplicateEntity)
		}
		h.ranges[blk.entity] = Range{Start: offset, Size: blk.size}
		h.order = append(h.order, blk.entity)
		offset += blk.size
	}
	h.total = offset
	return h, nil
}

// Handler is the immutable result of a Builder.
type Handler struct {
	ranges map[Entity]Range
	order  []Entity
	total  int
}

func (h *Handler) Total() int { return h.total }

func (h *Handler) Range(kind Kind, name string) (Range, error) {
	r, ok := h.ranges[Entity{kind, name}]
	if !ok {
		return Range{}, fmt.Errorf("%s/%s: %w", kind, name, ErrUnknownEntity)
	}
	return r, nil
}

// Column returns the absolute column of the local-th variable of an entity.
func (h *Handler) Column(kind Kind, name string, local int) (int, error) {
	r, err := h.Range(kind, name)
	if err != nil {
		return -1, err
	}
	if local < 0 || local >= r.Size {
		return -1, fmt.Errorf("%s/%s[%d] of %d: %w", kind, name, local, r.Size, ErrOutOfRange)
	}
	return r.Start + local, nil
}

// Entities returns the entities in column order.
func (h *Handler) Entities() []Entity {
	out := make([]Entity, len(h.order))
	copy(out, h.order)
	return out
}

// KindTotal sums the sizes of all entities of one kind.
func (h *Handler) KindTotal(kind Kind) int {
	n := 0
	for _, e := range h.order {
		if e.Kind == kind {
			n += h.ranges[e].Size
		}
	}
	return n
}
