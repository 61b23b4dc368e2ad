package filter

import (
	"sync"

	"github.com/opendiamond-go/adiskd/internal/constants"
)

// Optimizer periodically re-evaluates the active permutation against
// observed per-filter cost/selectivity statistics and swaps in a better
// one at an object boundary. It is grounded on
// original_source/.../fexec_stats.c's fexec_evaluate, translated from the
// C out-param idiom into a (utility, evaluable) return pair.
type Optimizer struct {
	mu   sync.Mutex
	perm Permutation
	gen  int
}

// NewOptimizer creates an optimizer starting from the given initial
// permutation (generation 0).
func NewOptimizer(initial Permutation) *Optimizer {
	return &Optimizer{perm: initial.Clone()}
}

// Current returns the live permutation. Safe to call from the filter
// worker goroutine between objects.
func (o *Optimizer) Current() Permutation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.perm.Clone()
}

// Evaluate computes the utility U = -Σ(Πj<i pj)(ci/ni) for perm against
// set's current statistics at generation gen, matching fexec_evaluate's
// loop exactly: a filter that has not yet been called
// constants.SignificantNumber(gen) times makes the whole permutation
// not-evaluable, and a filter with no recorded conditional-pass entry for
// its prefix also makes the permutation not-evaluable (the original gives
// up rather than guessing independence).
func Evaluate(set *Set, perm Permutation, gen int) (utility float64, evaluable bool) {
	pass := 1.0
	var totalCost float64
	var prefix []ID

	threshold := int64(constants.SignificantNumber(gen))

	for _, fid := range perm {
		info := set.Filters[fid]
		n := info.Counters.Called()
		if n < threshold {
			return 0, false
		}
		c := float64(info.Counters.TimeNS())

		totalCost += pass * c / float64(n)

		numExec, numPass, found := set.Prob.Lookup(fid, prefix)
		if !found || numExec == 0 {
			return 0, false
		}
		p := float64(numPass) / float64(numExec)

		pass *= p
		if pass < constants.SmallFraction {
			pass = constants.SmallFraction
		}

		prefix = append(prefix, fid)
	}

	return -totalCost, true
}

// Step runs one optimizer pass: it evaluates the current permutation plus
// its bounded neighbor set, and swaps in the best strictly-better
// evaluable candidate, favoring the current permutation on ties (the
// "stability" rule of spec §4.5). Step should be called by the filter
// worker goroutine only at an object boundary, so in-flight objects never
// observe a permutation mid-swap (invariant i).
func (o *Optimizer) Step(set *Set) (changed bool) {
	o.mu.Lock()
	current := o.perm.Clone()
	gen := o.gen
	o.mu.Unlock()

	bestUtil, bestEvaluable := Evaluate(set, current, gen)
	best := current

	for _, cand := range current.neighbors() {
		u, ok := Evaluate(set, cand, gen)
		if !ok {
			continue
		}
		if !bestEvaluable || u > bestUtil {
			bestUtil, bestEvaluable, best = u, true, cand
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	if bestEvaluable && !best.Equal(o.perm) {
		o.perm = best
		return true
	}
	return false
}

// SplitPolicy implements the FIXED/DYNAMIC split-ratio bookkeeping of
// spec §4.5: how much work executes locally vs is offloaded upstream,
// driven by observed pending-object queue depth.
type SplitPolicy struct {
	mu sync.Mutex

	Type    constants.SplitType
	Ratio   int // 0-100
	smoothed float64
}

// NewSplitPolicy returns a policy with the defaults from
// internal/constants (FIXED, ratio 100).
func NewSplitPolicy() *SplitPolicy {
	return &SplitPolicy{
		Type:  constants.SplitDefaultType,
		Ratio: constants.SplitDefaultRatio,
	}
}

// Update adjusts the split ratio given the current pending-object count,
// a no-op under FIXED. Under DYNAMIC: above
// SPLIT_DEFAULT_PEND_HIGH*split_mult the ratio steps up by
// split_auto_step; below SPLIT_DEFAULT_PEND_LOW it steps down; the result
// is clamped to [0,100] and becomes Ratio, and SmoothedRatio tracks it with
// the same EMA form the rings use.
func (s *SplitPolicy) Update(pendObjs int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Type != constants.SplitTypeDynamic {
		return
	}

	high := constants.SplitDefaultPendHigh * constants.SplitDefaultMult
	low := constants.SplitDefaultPendLow

	target := s.Ratio
	switch {
	case pendObjs > high:
		target += constants.SplitDefaultAutoStep
	case pendObjs < low:
		target -= constants.SplitDefaultAutoStep
	}
	if target < constants.SplitRatioMin {
		target = constants.SplitRatioMin
	}
	if target > constants.SplitRatioMax {
		target = constants.SplitRatioMax
	}

	const w = float64(constants.RateAvgWindow)
	s.Ratio = target
	s.smoothed = ((w - 1) / w * s.smoothed) + (float64(target) / w)
}

// SmoothedRatio returns the current smoothed (EMA) split ratio as a float.
func (s *SplitPolicy) SmoothedRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoothed
}

// SetRatio pins the policy to FIXED and sets an explicit split ratio,
// clamped to [0,100] — the client-driven override a set_offload control
// call makes, distinct from Update's automatic queue-depth-driven
// adjustment under DYNAMIC.
func (s *SplitPolicy) SetRatio(pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pct < constants.SplitRatioMin {
		pct = constants.SplitRatioMin
	}
	if pct > constants.SplitRatioMax {
		pct = constants.SplitRatioMax
	}
	s.Type = constants.SplitTypeFixed
	s.Ratio = pct
	s.smoothed = float64(pct)
}
