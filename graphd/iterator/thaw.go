package iterator

import (
	"context"
	"strings"
	"sync"

	"github.com/wbrown/janus-graphd/graphd/annotations"
)

// Cursor is a split cursor handed to a ThawFunc
type Cursor struct {
	Kind    string
	SetText string // the whole SET section, "kind:..."

	// Set is positioned after "kind:". Position and State are nil when
	// the cursor does not carry those sections.
	Set      *Scanner
	Position *Scanner
	State    *Scanner

	// Original is a live instance previously frozen with the same SET,
	// if the environment's original cache holds one.
	Original *Iterator
}

// ThawFunc rebuilds an iterator of one kind from its cursor
type ThawFunc func(c *Cursor) (*Iterator, error)

var (
	thawersMu sync.RWMutex
	thawers   = make(map[string]ThawFunc)
)

// Register makes kind's cursors thawable. It panics when kind is
// registered twice.
func Register(kind string, fn ThawFunc) {
	thawersMu.Lock()
	defer thawersMu.Unlock()
	if _, dup := thawers[kind]; dup {
		panic("iterator: Register called twice for " + kind)
	}
	thawers[kind] = fn
}

func lookupThawer(kind string) (ThawFunc, bool) {
	thawersMu.RLock()
	defer thawersMu.RUnlock()
	fn, ok := thawers[kind]
	return fn, ok
}

// Thaw rebuilds an iterator from cursor text. It fails with ErrTooHard
// once ctx's deadline has passed, with a *CursorError for malformed text
// and with ErrStateLost when the opaque state cannot be recovered.
func Thaw(ctx context.Context, env *Env, text string) (*Iterator, error) {
	it, err := thaw(NewScanner(ctx, env, text))
	if err != nil {
		return nil, err
	}
	if env.Tracing() {
		env.Emit(annotations.CursorThawed, map[string]interface{}{
			"kind": it.Kind(), "length": len(text),
		})
	}
	return it, nil
}

func thaw(s *Scanner) (*Iterator, error) {
	if err := s.env.CheckDeadline(s.ctx); err != nil {
		return nil, err
	}
	text := s.text
	set, position, state, err := SplitCursor(text)
	if err != nil {
		if ce, ok := err.(*CursorError); ok {
			ce.Offset += s.base
			ce.Text = s.full
		}
		return nil, err
	}

	colon := strings.IndexByte(set, ':')
	if colon < 0 {
		return nil, s.Lexical("expected kind: prefix")
	}
	kind := set[:colon]
	fn, ok := lookupThawer(kind)
	if !ok {
		return nil, s.Semantic("unknown iterator kind %q", kind)
	}

	c := &Cursor{
		Kind:    kind,
		SetText: set,
		Set:     s.Section(set[colon+1:], s.base+colon+1),
	}
	hasPosition := len(set) < len(text)
	hasState := hasPosition && len(set)+1+len(position) < len(text)
	posOffset := s.base + len(set) + 1

	// A masquerading iterator is rebuilt from its SET alone and then
	// repositioned to its generic position.
	if hasPosition && strings.HasPrefix(position, "=") {
		if hasState && state != "-" {
			return nil, s.Section(state, posOffset+len(position)+1).Lexical("masquerade cursor with state")
		}
		ps := s.Section(position[1:], posOffset+1)
		last, ordinal, eof, err := ps.Position()
		if err != nil {
			return nil, err
		}
		if err := ps.End(); err != nil {
			return nil, err
		}
		it, err := fn(c)
		if err != nil {
			return nil, err
		}
		// A variant that evolved into the masquerading form during
		// statistics must evolve again before it can be repositioned.
		if !eof && ordinal > 0 && !it.StatsDone() {
			restore := s.env.Unyielding()
			b := Budget(s.env.Tuning.PreEvalMaxCost)
			err := it.Statistics(&b)
			restore()
			if err != nil && !IsMore(err) {
				it.Finish()
				return nil, err
			}
		}
		it.Reposition(last, ordinal, eof)
		return it, nil
	}

	if hasPosition {
		c.Position = s.Section(position, posOffset)
	}
	if hasState {
		c.State = s.Section(state, posOffset+len(position)+1)
	}
	if s.env.Originals != nil {
		if orig, ok := s.env.Originals.Get(set); ok {
			c.Original = orig
			s.env.Emit(annotations.CursorOriginalHit, map[string]interface{}{"kind": kind})
		}
	}
	return fn(c)
}

// ApplyPosition reads a generic position (see Writer.Position) from the
// cursor, if it has one, and repositions it.
func (c *Cursor) ApplyPosition(it *Iterator) error {
	if c.Position == nil {
		return nil
	}
	last, ordinal, eof, err := c.Position.Position()
	if err != nil {
		return err
	}
	if err := c.Position.End(); err != nil {
		return err
	}
	it.Reposition(last, ordinal, eof)
	return nil
}

// SkipState accepts an empty state section ("-")
func (c *Cursor) SkipState() error {
	if c.State == nil {
		return nil
	}
	if err := c.State.Expect("-"); err != nil {
		return err
	}
	return c.State.End()
}
