package command

import "fmt"

// List collects the commands of one tick. It is reset, not reallocated,
// between ticks.
type List struct {
	commands []Command

	// Resolve scratch.
	hard  map[axisKey]int
	masks [][6]bool
	sel   []bool
}

func NewList(capacity int) *List {
	return &List{
		commands: make([]Command, 0, capacity),
		hard:     make(map[axisKey]int),
		sel:      make([]bool, 0, 6*capacity),
	}
}

func (l *List) Add(c Command)       { l.commands = append(l.commands, c) }
func (l *List) Len() int            { return len(l.commands) }
func (l *List) At(i int) *Command   { return &l.commands[i] }
func (l *List) Commands() []Command { return l.commands }
func (l *List) Reset()              { l.commands = l.commands[:0] }

// OfKind returns the commands of the given kind in insertion order.
func (l *List) OfKind(k Kind) []*Command {
	var out []*Command
	for i := range l.commands {
		if l.commands[i].Kind == k {
			out = append(out, &l.commands[i])
		}
	}
	return out
}

func axesOf(k Kind) int {
	switch k {
	case SpatialAcceleration:
		return 6
	case CenterOfMass:
		return 3
	default:
		return 1
	}
}

type axisKey struct {
	kind   Kind
	target string
	yaw    float64
}

// Resolve lets hard commands win over soft ones: every axis a hard command
// constrains is removed from soft commands of the same kind and target
// expressed in the same frame. Commands whose yaw differs are never
// reconciled, so callers that want a hard command to override a soft one
// must issue both in one frame. Soft commands left with no axes are
// dropped. It returns the number of axes removed.
func (l *List) Resolve() int {
	clear(l.hard)
	l.masks = l.masks[:0]
	for i := range l.commands {
		c := &l.commands[i]
		if c.Kind.IsMPC() || !c.IsHard() {
			continue
		}
		key := axisKey{c.Kind, c.Target, c.Yaw}
		k, ok := l.hard[key]
		if !ok {
			k = len(l.masks)
			l.masks = append(l.masks, [6]bool{})
			l.hard[key] = k
		}
		mask := &l.masks[k]
		for a := 0; a < axesOf(c.Kind); a++ {
			mask[a] = mask[a] || c.Selected(a)
		}
	}
	if len(l.hard) == 0 {
		return 0
	}

	removed := 0
	l.sel = l.sel[:0]
	kept := l.commands[:0]
	for _, c := range l.commands {
		if c.Kind.IsMPC() || c.IsHard() {
			kept = append(kept, c)
			continue
		}
		k, ok := l.hard[axisKey{c.Kind, c.Target, c.Yaw}]
		if !ok {
			kept = append(kept, c)
			continue
		}
		mask := &l.masks[k]
		n := axesOf(c.Kind)
		from := len(l.sel)
		keep := false
		for a := 0; a < n; a++ {
			on := c.Selected(a) && !mask[a]
			if c.Selected(a) && mask[a] {
				removed++
			}
			l.sel = append(l.sel, on)
			keep = keep || on
		}
		if !keep {
			continue
		}
		c.Selection = l.sel[from:len(l.sel):len(l.sel)]
		kept = append(kept, c)
	}
	l.commands = kept
	return removed
}

// Handler consumes one command during problem assembly.
type Handler func(*Command) error

// Table dispatches commands on their Kind.
type Table [numKinds]Handler

func (t *Table) Register(k Kind, h Handler) { t[k] = h }

// Apply runs the handler of every command in order and stops at the first
// error.
func (t *Table) Apply(l *List) error {
	for i := range l.commands {
		c := &l.commands[i]
		if c.Kind >= numKinds || t[c.Kind] == nil {
			return fmt.Errorf("%s: %w", c.Kind, ErrUnhandledKind)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := t[c.Kind](c); err != nil {
			return fmt.Errorf("%s %q: %w", c.Kind, c.Target, err)
		}
	}
	return nil
}
