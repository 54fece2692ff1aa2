package ledger

// splitMix64 is the PRNG used for voter sampling. It is specified
// explicitly (Steele et al., "Fast Splittable Pseudorandom Number
// Generators") so a replayed command draws the same sequence on any
// build of this program, which math/rand does not guarantee.
type splitMix64 struct {
	state uint64
}

func newSplitMix64(seed uint64) *splitMix64 {
	return &splitMix64{state: seed}
}

func (r *splitMix64) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// intn returns a draw in [0, n). Modulo bias is irrelevant here; the
// draw only has to be reproducible, not statistically perfect.
func (r *splitMix64) intn(n int) int {
	return int(r.next() % uint64(n))
}
