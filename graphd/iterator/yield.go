package iterator

// YieldPolicy can force an operation to suspend at a suspension point even
// though budget remains. Tests use it to drive every save/resume path; it
// changes the pacing of a computation, never its results.
type YieldPolicy interface {
	// ForceYield is consulted at each suspension point
	ForceYield() bool
}

// everyNth forces a yield on every n-th consultation
type everyNth struct {
	n     int
	count int
}

// EveryNth returns a policy that forces every n-th suspension point to
// yield. n < 2 is treated as 2 so that progress is always possible.
func EveryNth(n int) YieldPolicy {
	if n < 2 {
		n = 2
	}
	return &everyNth{n: n}
}

func (p *everyNth) ForceYield() bool {
	p.count++
	return p.count%p.n == 0
}
