package index

import (
	"errors"
	"testing"
)

func TestContiguousRanges(t *testing.T) {
	h, err := NewBuilder(4).
		Add(Joint, "a", 1).
		Add(Joint, "b", 1).
		Add(Rho, "left_foot", 16).
		Add(Rho, "right_foot", 8).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if h.Total() != 26 {
		t.Fatalf("expected total 26, got %d", h.Total())
	}

	prev := 0
	for _, e := range h.Entities() {
		r, err := h.Range(e.Kind, e.Name)
		if err != nil {
			t.Fatal(err)
		}
		if r.Start != prev {
			t.Errorf("%s starts at %d, expected %d", e, r.Start, prev)
		}
		prev = r.End()
	}

	col, err := h.Column(Rho, "right_foot", 3)
	if err != nil {
		t.Fatal(err)
	}
	if col != 21 {
		t.Errorf("expected column 21, got %d", col)
	}
	if got := h.KindTotal(Rho); got != 24 {
		t.Errorf("expected 24 rho columns, got %d", got)
	}
}

func TestLookupErrors(t *testing.T) {
	h, err := NewBuilder(1).Add(SegmentCoM, "0", 12).Build()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		kind  Kind
		ent   string
		local int
		want  error
	}{
		{"unknown", SegmentCoM, "1", 0, ErrUnknownEntity},
		{"wrong kind", SegmentRho, "0", 0, ErrUnknownEntity},
		{"negative", SegmentCoM, "0", -1, ErrOutOfRange},
		{"past end", SegmentCoM, "0", 12, ErrOutOfRange},
	}
	for _, tt := range tests {
		_, err := h.Column(tt.kind, tt.ent, tt.local)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := NewBuilder(2).Add(Joint, "a", 1).Add(Joint, "a", 1).Build()
	if !errors.Is(err, ErrDuplicateEntity) {
		t.Errorf("expected duplicate error, got %v", err)
	}

	_, err = NewBuilder(1).Add(Joint, "a", -1).Build()
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestBuilderReset(t *testing.T) {
	b := NewBuilder(2)
	b.Add(Joint, "a", 3)
	b.Reset()
	h, err := b.Add(Joint, "b", 2).Build()
	if err != nil {
		t.Fatal(err)
	}
	if h.Total() != 2 {
		t.Errorf("expected 2 columns after reset, got %d", h.Total())
	}
	if _, err := h.Range(Joint, "a"); err == nil {
		t.Error("expected a to be gone after reset")
	}
}
