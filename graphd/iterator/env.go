package iterator

import (
	"context"
	"fmt"
	"time"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/config"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// Env is what every iterator of one request shares: the store, tuning,
// the original-instance cache, the annotation collector and the optional
// yield policy. Env is not safe for concurrent use; one request drives one
// Env from a single goroutine.
type Env struct {
	Store     storage.Store
	Tuning    config.Tuning
	Originals *OriginalCache
	Events    *annotations.Collector
	Yield     YieldPolicy

	work         int64 // cost units charged through Charge
	workAtYield  int64 // work when the last forced yield happened
	forcedYields int64
}

// NewEnv creates an environment with default tuning and no originals cache
func NewEnv(store storage.Store) *Env {
	return &Env{
		Store:  store,
		Tuning: config.Default(),
	}
}

// Charge spends cost from b before the work it pays for. When b cannot
// cover it nothing is spent and the caller gets ErrMore, so no operation
// ever consumes more than its budget.
func (e *Env) Charge(b *Budget, cost int64) error {
	if int64(*b) < cost {
		return ErrMore
	}
	b.Spend(cost)
	e.work += cost
	return nil
}

// Hold sets aside cost for the work that follows a sub call, or returns
// ErrMore when b cannot cover it. The caller releases it with b.Release
// once the sub call returns.
func (e *Env) Hold(b *Budget, cost int64) error {
	if !b.Hold(cost) {
		return ErrMore
	}
	return nil
}

// Suspend reports whether an operation at a suspension point must return
// ErrMore now. A forced yield needs work charged since the previous one,
// so resumption always makes progress.
func (e *Env) Suspend(b *Budget) bool {
	if b.Exhausted() {
		return true
	}
	if e.Yield == nil || e.work == e.workAtYield {
		return false
	}
	if e.Yield.ForceYield() {
		e.workAtYield = e.work
		e.forcedYields++
		return true
	}
	return false
}

// Unyielding switches the yield policy off until the returned function
// is called. Creation-time work that cannot be resumed runs this way.
func (e *Env) Unyielding() (restore func()) {
	saved := e.Yield
	e.Yield = nil
	return func() { e.Yield = saved }
}

// Work returns the total cost charged so far
func (e *Env) Work() int64 {
	return e.work
}

// ForcedYields returns how many suspensions the yield policy forced
func (e *Env) ForcedYields() int64 {
	return e.forcedYields
}

// Primitive reads a primitive record, charging the tuned cost
func (e *Env) Primitive(b *Budget, id graphd.ID) (*graphd.Primitive, error) {
	if err := e.Charge(b, e.Tuning.CostPrimitive); err != nil {
		return nil, err
	}
	return e.read(id)
}

// FollowCost is what one Follow charges
func (e *Env) FollowCost() int64 {
	return e.Tuning.CostPrimitive + e.Tuning.CostLinkage
}

// Follow reads id's primitive and returns its linkage l target.
// ok is false when the primitive carries no such linkage.
func (e *Env) Follow(b *Budget, id graphd.ID, l graphd.Linkage) (target graphd.ID, ok bool, err error) {
	if err := e.Charge(b, e.FollowCost()); err != nil {
		return graphd.IDNone, false, err
	}
	p, err := e.read(id)
	if err != nil {
		return graphd.IDNone, false, err
	}
	target, ok = p.Link(l)
	return target, ok, nil
}

func (e *Env) read(id graphd.ID) (*graphd.Primitive, error) {
	p, err := e.Store.Primitive(id)
	if err != nil {
		e.emit(annotations.ErrorBackend, map[string]interface{}{"error": err.Error(), "id": uint64(id)})
		return nil, err
	}
	return p, nil
}

// CheckDeadline fails with ErrTooHard once ctx's deadline has passed
func (e *Env) CheckDeadline(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Now().After(deadline) {
		return fmt.Errorf("%w: deadline passed %v ago", ErrTooHard, time.Since(deadline))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTooHard, err)
	}
	return nil
}

// Emit records an annotation event
func (e *Env) Emit(name string, data map[string]interface{}) {
	e.emit(name, data)
}

// Tracing reports whether events are being recorded
func (e *Env) Tracing() bool {
	return e != nil && e.Events.Enabled()
}

func (e *Env) emit(name string, data map[string]interface{}) {
	if e == nil || !e.Events.Enabled() {
		return
	}
	e.Events.Emit(name, data)
}

// Invariant records an error/invariant event and panics with an
// *InvariantError. It never returns.
func (e *Env) Invariant(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.emit(annotations.ErrorInvariant, map[string]interface{}{"error": msg})
	invariant("%s", msg)
}
