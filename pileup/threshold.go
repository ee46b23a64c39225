package pileup

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultSampleReads is the sampled Threshold Estimator's default reservoir
// capacity (§4.2). The capacity counts call probabilities per code, not
// reads: every read fed to AddRead is visited.
const DefaultSampleReads = 10042

// DefaultPercentile is the default nearest-rank percentile used to derive a
// per-code threshold from sampled probabilities (§4.2).
const DefaultPercentile = 10.0

// ThresholdSet holds, per modification code, the minimum call probability
// required for the Code Transformer's classification rule to count that
// code's winning call as modified; a winning call below it counts as a
// failed call (§4.2, §4.4).
type ThresholdSet struct {
	perCode map[ModCode]float64
	global  float64
	hasGlobal bool
}

// NewExplicitThresholdSet builds a ThresholdSet from user-supplied values:
// global applies to any code without a specific override in perCode (§4.2
// "--threshold" and "--per-mod-threshold").
func NewExplicitThresholdSet(global float64, perCode map[ModCode]float64) *ThresholdSet {
	t := &ThresholdSet{perCode: make(map[ModCode]float64, len(perCode)), global: global, hasGlobal: true}
	for k, v := range perCode {
		t.perCode[k] = v
	}
	return t
}

// Threshold returns the probability threshold to apply for code.
func (t *ThresholdSet) Threshold(code ModCode) float64 {
	if v, ok := t.perCode[code]; ok {
		return v
	}
	return t.global
}

// ThresholdSampler keeps a uniform random subset of the candidate-call
// probabilities it is fed, one reservoir per code (§4.2), then derives a
// ThresholdSet from their per-code percentile. The unit of sampling is the
// single probability, not the read.
type ThresholdSampler struct {
	maxReads   int
	percentile float64
	rng        *rand.Rand
	seen       map[ModCode]int
	reservoir  map[ModCode][]float64
	readsSeen  int
}

// NewThresholdSampler creates a sampler whose per-code reservoirs hold at most
// maxReads probabilities each, and which estimates one threshold per code at
// the given percentile. seed
// makes the reservoir sampling deterministic (§4.2 "seeded").
func NewThresholdSampler(maxReads int, percentile float64, seed int64) *ThresholdSampler {
	if maxReads <= 0 {
		maxReads = DefaultSampleReads
	}
	if percentile <= 0 {
		percentile = DefaultPercentile
	}
	return &ThresholdSampler{
		maxReads:   maxReads,
		percentile: percentile,
		rng:        rand.New(rand.NewSource(seed)),
		seen:       make(map[ModCode]int),
		reservoir:  make(map[ModCode][]float64),
	}
}

// Done reports whether the sampler has consumed its full read quota.
func (s *ThresholdSampler) Done() bool {
	return s.readsSeen >= s.maxReads
}

// AddRead feeds one read's candidate-call probabilities into the reservoir.
// Every candidate probability for a given code found on this read is offered
// to that code's reservoir (capacity maxReads) via standard reservoir
// sampling (Algorithm R), with one draw per probability, so calls from the
// same read are kept or dropped independently of each other.
func (s *ThresholdSampler) AddRead(probsByCode map[ModCode][]float64) {
	s.readsSeen++
	for code, probs := range probsByCode {
		n := s.seen[code]
		for _, p := range probs {
			n++
			r, ok := s.reservoir[code]
			if !ok {
				r = make([]float64, 0, s.maxReads)
			}
			if len(r) < s.maxReads {
				r = append(r, p)
			} else {
				j := s.rng.Intn(n)
				if j < s.maxReads {
					r[j] = p
				}
			}
			s.reservoir[code] = r
		}
		s.seen[code] = n
	}
}

// Estimate derives a ThresholdSet from the sampled reservoirs: for each code
// with at least one observation, the threshold is the nearest-rank
// percentile (empirical CDF) of its sampled probabilities.
func (s *ThresholdSampler) Estimate() *ThresholdSet {
	t := &ThresholdSet{perCode: make(map[ModCode]float64, len(s.reservoir))}
	for code, probs := range s.reservoir {
		if len(probs) == 0 {
			continue
		}
		sorted := append([]float64(nil), probs...)
		sort.Float64s(sorted)
		t.perCode[code] = stat.Quantile(s.percentile/100.0, stat.Empirical, sorted, nil)
	}
	return t
}
