package pool

// Naive starts one fresh goroutine per job; n is advisory and unused
// (§4.8). It is trivially correct and exists as the baseline the other two
// variants are benchmarked and reasoned against.
type Naive struct{}

// NewNaive constructs the thread-per-job pool. n is accepted only to
// satisfy the common New(kind, n) call site and is otherwise ignored.
func NewNaive(n uint) (*Naive, error) {
	return &Naive{}, nil
}

// Spawn runs job on a brand-new goroutine.
func (*Naive) Spawn(job func()) {
	go job()
}
