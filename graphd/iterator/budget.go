package iterator

// Budget is the number of cost units an operation may still spend.
// Operations deduct what they use; a budget at or below zero at a
// suspension point makes the operation return ErrMore.
type Budget int64

// Unlimited is a budget large enough to never run out in practice
const Unlimited Budget = 1 << 62

// Spend deducts cost
func (b *Budget) Spend(cost int64) {
	*b -= Budget(cost)
}

// Exhausted reports whether nothing is left
func (b *Budget) Exhausted() bool {
	return *b <= 0
}

// Split carves share (0..1) of the remaining budget into a new budget.
// The caller returns unused units with Refund.
func (b *Budget) Split(share float64) Budget {
	if *b <= 0 {
		return 0
	}
	part := Budget(float64(*b) * share)
	if part < 1 {
		part = 1
	}
	*b -= part
	return part
}

// Refund returns unused units of a split budget
func (b *Budget) Refund(part Budget) {
	if part > 0 {
		*b += part
	}
}

// Hold sets cost aside for work that must follow the next call, so the
// call cannot spend it. It reports false, holding nothing, when b cannot
// cover cost.
func (b *Budget) Hold(cost int64) bool {
	if int64(*b) < cost {
		return false
	}
	*b -= Budget(cost)
	return true
}

// Release returns units set aside by Hold
func (b *Budget) Release(cost int64) {
	*b += Budget(cost)
}

// Used returns how much was spent since start was captured
func (b *Budget) Used(start Budget) int64 {
	return int64(start - *b)
}
