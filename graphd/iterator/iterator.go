// Package iterator is the lazy, budgeted, resumable iterator contract of the
// graph core together with the simple forms other iterators evolve into.
//
// An *Iterator is a stable handle. Its behavior lives in an Impl that may be
// replaced at runtime (evolution); every replacement bumps the handle's
// generation so holders can detect it.
package iterator

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
)

// Impl is one concrete iterator variant. Every method receives the handle
// it is installed in; variants keep no back-pointer to it.
type Impl interface {
	// Kind names the variant; it is also the cursor prefix
	Kind() string

	Next(it *Iterator, b *Budget) (graphd.ID, error)
	Find(it *Iterator, id graphd.ID, b *Budget) (graphd.ID, error)
	Check(it *Iterator, id graphd.ID, b *Budget) error
	Statistics(it *Iterator, b *Budget) error

	// Clone returns a fresh handle over the same result set, positioned
	// at the start. Use it.NewClone to build the handle.
	Clone(it *Iterator) (*Iterator, error)
	Reset(it *Iterator)

	FreezeSet(it *Iterator, w *Writer)
	FreezePosition(it *Iterator, w *Writer)
	FreezeState(it *Iterator, w *Writer)

	Finish(it *Iterator)
}

// Stats are the estimates produced by the statistics phase
type Stats struct {
	Valid     bool
	N         int64 // estimated result count
	NextCost  int64
	FindCost  int64
	CheckCost int64
}

var generation uint64

func nextGeneration() uint64 {
	return atomic.AddUint64(&generation, 1)
}

// resumePoint is a pending catch-up to a position recorded in a cursor
type resumePoint struct {
	last    graphd.ID
	ordinal int64
	skipped int64
}

// Iterator is the stable handle every caller holds
type Iterator struct {
	env  *Env
	impl Impl
	gen  uint64

	low, high graphd.ID
	forward   bool
	sorted    bool
	ordering  string
	stats     Stats

	original   *Iterator
	origGen    uint64
	masquerade string

	last     graphd.ID
	returned int64
	eof      bool
	resume   *resumePoint
	finished bool
}

// New installs impl in a fresh handle over [low, high)
func New(env *Env, impl Impl, low, high graphd.ID, forward bool) *Iterator {
	if high > graphd.IDMax {
		high = graphd.IDMax
	}
	it := &Iterator{
		env:     env,
		impl:    impl,
		gen:     nextGeneration(),
		low:     low,
		high:    high,
		forward: forward,
		last:    graphd.IDNone,
	}
	if env.Tracing() {
		env.Emit(annotations.IteratorCreated, map[string]interface{}{
			"kind": impl.Kind(), "low": uint64(low), "high": uint64(high),
		})
	}
	return it
}

// NewClone builds the handle for a clone of it running impl. The clone
// shares its range, direction, sortedness and statistics, and points at
// its original.
func (it *Iterator) NewClone(impl Impl) *Iterator {
	orig := it.Original()
	return &Iterator{
		env:        it.env,
		impl:       impl,
		gen:        nextGeneration(),
		low:        it.low,
		high:       it.high,
		forward:    it.forward,
		sorted:     it.sorted,
		ordering:   it.ordering,
		stats:      it.stats,
		original:   orig,
		origGen:    orig.gen,
		masquerade: it.masquerade,
		last:       graphd.IDNone,
	}
}

func (it *Iterator) Env() *Env            { return it.env }
func (it *Iterator) Impl() Impl           { return it.impl }
func (it *Iterator) Kind() string         { return it.impl.Kind() }
func (it *Iterator) Generation() uint64   { return it.gen }
func (it *Iterator) Low() graphd.ID       { return it.low }
func (it *Iterator) High() graphd.ID      { return it.high }
func (it *Iterator) Forward() bool        { return it.forward }
func (it *Iterator) Sorted() bool         { return it.sorted }
func (it *Iterator) Ordering() string     { return it.ordering }
func (it *Iterator) Stats() Stats         { return it.stats }
func (it *Iterator) N() int64             { return it.stats.N }
func (it *Iterator) Masquerade() string   { return it.masquerade }
func (it *Iterator) Finished() bool       { return it.finished }
func (it *Iterator) EOF() bool            { return it.eof }
func (it *Iterator) Returned() int64      { return it.returned }
func (it *Iterator) StatsDone() bool      { return it.stats.Valid }
func (it *Iterator) IsOriginal() bool     { return it.original == nil }
func (it *Iterator) Resuming() bool       { return it.resume != nil }
func (it *Iterator) SetOrdering(o string) { it.ordering = o }

// Original returns the instance owning shared state: it itself, or the
// original it was cloned from.
func (it *Iterator) Original() *Iterator {
	if it.original == nil {
		return it
	}
	return it.original
}

// Last returns the most recent id produced by next or find
func (it *Iterator) Last() (graphd.ID, bool) {
	return it.last, it.last != graphd.IDNone
}

// SetSorted records sortedness; variants call it on construction and when
// statistics decide their production method.
func (it *Iterator) SetSorted(sorted bool) {
	it.sorted = sorted
}

// SetStats publishes completed statistics
func (it *Iterator) SetStats(s Stats) {
	s.Valid = true
	it.stats = s
	if it.env.Tracing() {
		it.env.Emit(annotations.StatsComplete, map[string]interface{}{
			"kind":       it.impl.Kind(),
			"n":          s.N,
			"next.cost":  s.NextCost,
			"find.cost":  s.FindCost,
			"check.cost": s.CheckCost,
			"sorted":     it.sorted,
		})
	}
}

// SetMasquerade makes the iterator freeze its SET as text instead of its
// own form. The empty string removes it.
func (it *Iterator) SetMasquerade(text string) {
	it.masquerade = text
}

// InRange reports whether id lies in [low, high)
func (it *Iterator) InRange(id graphd.ID) bool {
	return id >= it.low && id < it.high
}

// CanEvolve reports whether the iterator may still replace its variant:
// nothing produced yet and no reposition pending.
func (it *Iterator) CanEvolve() bool {
	return it.returned == 0 && it.resume == nil && !it.eof && it.last == graphd.IDNone
}

// Become replaces its variant with repl's. repl's handle is consumed.
// Evolution is only allowed before results have been produced.
func (it *Iterator) Become(repl *Iterator, reason string) {
	if !it.CanEvolve() {
		it.env.Invariant("%s evolving into %s after %d results", it.impl.Kind(), repl.impl.Kind(), it.returned)
	}
	from := it.impl.Kind()
	old := it.impl

	it.impl = repl.impl
	it.sorted = repl.sorted
	it.ordering = repl.ordering
	it.stats = repl.stats
	if repl.masquerade != "" {
		it.masquerade = repl.masquerade
	}
	it.gen = nextGeneration()

	repl.impl = nullImpl{}
	repl.finished = true
	old.Finish(it)

	if it.env.Tracing() {
		it.env.Emit(annotations.IteratorEvolved, map[string]interface{}{
			"from": from, "to": it.impl.Kind(), "reason": reason, "n": it.stats.N,
		})
	}
}

// Next returns the next result in the iterator's direction
func (it *Iterator) Next(b *Budget) (graphd.ID, error) {
	if it.finished {
		return graphd.IDNone, ErrFinished
	}
	if it.eof {
		return graphd.IDNone, ErrNo
	}
	if it.resume != nil {
		id, done, err := it.catchUp(b)
		if err != nil {
			return graphd.IDNone, err
		}
		if done {
			return it.produced(id)
		}
	}
	id, err := it.impl.Next(it, b)
	if err != nil {
		return graphd.IDNone, it.failed(err)
	}
	return it.produced(id)
}

func (it *Iterator) produced(id graphd.ID) (graphd.ID, error) {
	if !it.InRange(id) {
		it.env.Invariant("%s produced %v outside [%v, %v)", it.impl.Kind(), id, it.low, it.high)
	}
	if it.sorted && it.last != graphd.IDNone {
		if (it.forward && id <= it.last) || (!it.forward && id >= it.last) {
			it.env.Invariant("sorted %s produced %v after %v", it.impl.Kind(), id, it.last)
		}
	}
	it.last = id
	it.returned++
	return id, nil
}

func (it *Iterator) failed(err error) error {
	if errors.Is(err, ErrNo) {
		it.eof = true
	}
	return err
}

// Find returns the least result >= id (forward) or greatest <= id
// (backward). It requires a sorted iterator.
func (it *Iterator) Find(id graphd.ID, b *Budget) (graphd.ID, error) {
	if it.finished {
		return graphd.IDNone, ErrFinished
	}
	if !it.sorted {
		return graphd.IDNone, fmt.Errorf("%w: %s", ErrNotSorted, it.impl.Kind())
	}
	if it.forward {
		if id < it.low {
			id = it.low
		}
		if id >= it.high {
			it.eof = true
			return graphd.IDNone, ErrNo
		}
	} else {
		if id >= it.high {
			id = it.high - 1
		}
		if id < it.low || id == graphd.IDNone {
			it.eof = true
			return graphd.IDNone, ErrNo
		}
	}
	it.resume = nil
	it.eof = false
	got, err := it.impl.Find(it, id, b)
	if err != nil {
		return graphd.IDNone, it.failed(err)
	}
	if !it.InRange(got) || (it.forward && got < id) || (!it.forward && got > id) {
		it.env.Invariant("%s find(%v) returned %v", it.impl.Kind(), id, got)
	}
	it.last = got
	it.returned++
	return got, nil
}

// Check tests membership of id. ErrNo means not a member.
func (it *Iterator) Check(id graphd.ID, b *Budget) error {
	if it.finished {
		return ErrFinished
	}
	if !it.InRange(id) {
		return ErrNo
	}
	return it.impl.Check(it, id, b)
}

// Statistics fills in estimates. The variant may evolve while doing so;
// compare Generation before and after to notice.
func (it *Iterator) Statistics(b *Budget) error {
	if it.finished {
		return ErrFinished
	}
	if it.stats.Valid {
		return nil
	}
	return it.impl.Statistics(it, b)
}

// Clone returns an independent iterator over the same results. A clone
// whose original has since evolved clones the evolved original instead.
func (it *Iterator) Clone() (*Iterator, error) {
	if it.finished {
		return nil, ErrFinished
	}
	if orig := it.original; orig != nil && !orig.finished && orig.gen != it.origGen {
		return orig.Clone()
	}
	return it.impl.Clone(it)
}

// Reset rewinds to the initial position
func (it *Iterator) Reset() {
	if it.finished {
		return
	}
	it.last = graphd.IDNone
	it.returned = 0
	it.eof = false
	it.resume = nil
	it.impl.Reset(it)
}

// Finish releases what the iterator owns. Calling it twice is harmless.
func (it *Iterator) Finish() {
	if it == nil || it.finished {
		return
	}
	kind := it.impl.Kind()
	it.impl.Finish(it)
	it.finished = true
	if it.IsOriginal() {
		it.env.Originals.Forget(it)
	}
	if it.env.Tracing() {
		it.env.Emit(annotations.IteratorFinished, map[string]interface{}{
			"kind": kind, "returned": it.returned,
		})
	}
}

// Pinned returns the constant every result carries on linkage l, if the
// variant knows one (a fan-in or VIP list keyed on l).
func (it *Iterator) Pinned(l graphd.Linkage) (graphd.ID, bool) {
	if p, ok := it.impl.(interface {
		Pinned(graphd.Linkage) (graphd.ID, bool)
	}); ok {
		return p.Pinned(l)
	}
	return graphd.IDNone, false
}

// Values returns the results of a fixed-array iterator in ascending order
func (it *Iterator) Values() ([]graphd.ID, bool) {
	if a, ok := it.impl.(*arrayImpl); ok && a.source == sourceFixed {
		return a.window(it), true
	}
	return nil, false
}

// Reposition arranges for the next call to Next to continue after a
// position recorded in a cursor: last is the last id returned, ordinal
// how many results had been returned.
func (it *Iterator) Reposition(last graphd.ID, ordinal int64, eof bool) {
	it.resume = nil
	it.eof = eof
	if eof || ordinal == 0 {
		it.last = last
		it.returned = ordinal
		return
	}
	it.resume = &resumePoint{last: last, ordinal: ordinal}
}

// SetPosition records that ordinal results ending with last were already
// produced, for variants that restored their own state from a cursor.
func (it *Iterator) SetPosition(last graphd.ID, ordinal int64) {
	it.resume = nil
	it.last = last
	it.returned = ordinal
}

// catchUp drives a pending reposition. done reports that id is the next
// result, found on the way.
func (it *Iterator) catchUp(b *Budget) (id graphd.ID, done bool, err error) {
	r := it.resume
	if it.sorted {
		target := r.last + 1
		if !it.forward {
			if r.last == 0 {
				it.finishCatchUp(r)
				it.eof = true
				return graphd.IDNone, false, ErrNo
			}
			target = r.last - 1
		}
		if (it.forward && target >= it.high) || (!it.forward && target < it.low) {
			it.finishCatchUp(r)
			it.eof = true
			return graphd.IDNone, false, ErrNo
		}
		id, err := it.impl.Find(it, target, b)
		if err != nil {
			if IsMore(err) {
				return graphd.IDNone, false, err
			}
			it.finishCatchUp(r)
			return graphd.IDNone, false, it.failed(err)
		}
		it.finishCatchUp(r)
		return id, true, nil
	}

	for r.skipped < r.ordinal {
		id, err := it.impl.Next(it, b)
		if err != nil {
			if IsMore(err) {
				return graphd.IDNone, false, err
			}
			if IsNo(err) {
				return graphd.IDNone, false, it.stateLost("ran out after %d of %d results", r.skipped, r.ordinal)
			}
			return graphd.IDNone, false, err
		}
		r.skipped++
		if r.skipped == r.ordinal && id != r.last {
			return graphd.IDNone, false, it.stateLost("result %d is %v, expected %v", r.ordinal, id, r.last)
		}
	}
	it.finishCatchUp(r)
	return graphd.IDNone, false, nil
}

func (it *Iterator) finishCatchUp(r *resumePoint) {
	it.resume = nil
	it.last = r.last
	it.returned = r.ordinal
}

func (it *Iterator) stateLost(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	it.resume = nil
	it.env.Emit(annotations.ErrorStateLost, map[string]interface{}{"kind": it.impl.Kind(), "error": msg})
	return fmt.Errorf("%w: %s catch-up: %s", ErrStateLost, it.impl.Kind(), msg)
}

// SetText returns the SET section of the iterator's cursor
func (it *Iterator) SetText() (string, error) {
	if it.finished {
		return "", ErrFinished
	}
	w := NewWriter(it.env)
	it.freeze(w, FlagSet)
	return w.String(), w.err
}

// String returns the SET part of the cursor, for logs
func (it *Iterator) String() string {
	text, err := it.SetText()
	if err != nil {
		return fmt.Sprintf("%s(%v)", it.impl.Kind(), err)
	}
	return text
}
