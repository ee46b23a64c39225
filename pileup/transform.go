package pileup

// Code Transformer (§4.4): rewrites a read's PositionContribution in place
// before it reaches the Position Aggregator, then classifies the surviving
// codes into the counter buckets the Aggregator increments. collapse and
// combine-mods are call-level rewrites (applied per PositionContribution, in
// that order); combine-strands is a position-level fold applied later, in
// the Aggregator, once every read's contribution to a position is known.
type Transformer struct {
	// Collapse lists codes whose probability mass is redistributed into the
	// canonical call (§4.4 "--collapse"); a collapsed code is removed from
	// every list on a PositionContribution as if it had never been a
	// candidate there.
	Collapse map[ModCode]bool

	// CombineMods merges every code sharing a canonical base into that
	// base's synthetic uppercase code (§4.4 "--combine-mods").
	CombineMods bool
}

// Apply rewrites pc in place per the collapse and combine-mods rules, in
// that order (§9 Open Question: collapse always runs first, since
// combine-mods needs to see the surviving per-base code set, not codes that
// were dropped).
func (t *Transformer) Apply(pc *PositionContribution) {
	if len(t.Collapse) != 0 {
		t.applyCollapse(pc)
	}
	if t.CombineMods {
		t.applyCombineMods(pc)
	}
}

func (t *Transformer) applyCollapse(pc *PositionContribution) {
	for code := range pc.Calls {
		if t.Collapse[code] {
			delete(pc.Calls, code)
		}
	}
	pc.NoCallCodes = filterCodes(pc.NoCallCodes, t.Collapse)
	pc.CanonicalCodes = filterCodes(pc.CanonicalCodes, t.Collapse)
	pc.DiffCodes = filterCodes(pc.DiffCodes, t.Collapse)
	pc.DeleteCodes = filterCodes(pc.DeleteCodes, t.Collapse)
}

func filterCodes(codes []ModCode, drop map[ModCode]bool) []ModCode {
	if len(codes) == 0 {
		return codes
	}
	out := codes[:0]
	for _, c := range codes {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}

func (t *Transformer) applyCombineMods(pc *PositionContribution) {
	if len(pc.Calls) != 0 {
		merged := make(map[ModCode]float64, len(pc.Calls))
		for code, p := range pc.Calls {
			base, ok := CanonicalBase(code)
			if !ok {
				merged[code] = p
				continue
			}
			combined := CombinedCode(base)
			if cur, ok := merged[combined]; !ok || p > cur {
				merged[combined] = p
			}
		}
		pc.Calls = merged
	}
	pc.NoCallCodes = combineCodeList(pc.NoCallCodes)
	pc.CanonicalCodes = combineCodeList(pc.CanonicalCodes)
	pc.DiffCodes = combineCodeList(pc.DiffCodes)
	pc.DeleteCodes = combineCodeList(pc.DeleteCodes)
}

func combineCodeList(codes []ModCode) []ModCode {
	if len(codes) == 0 {
		return codes
	}
	seen := make(map[ModCode]bool, len(codes))
	out := codes[:0]
	for _, c := range codes {
		base, ok := CanonicalBase(c)
		combined := c
		if ok {
			combined = CombinedCode(base)
		}
		if !seen[combined] {
			seen[combined] = true
			out = append(out, combined)
		}
	}
	return out
}

// classification is the outcome of applying the classification rule (§4.4)
// to every code sharing one canonical base at one read's contribution to one
// position.
type classification struct {
	noCall    bool
	canonical bool
	fail      bool
	winner    ModCode // valid when hasWin
	hasWin    bool
	otherOf   []ModCode // every other code sharing the winner's canonical base
}

// ClassifyBase applies the classification rule to the codes a read
// registered for one canonical base at one position: the highest-probability
// explicit candidate among them is compared to its threshold; ties broken in
// map iteration order are not expected, since code strings are distinct.
// codes is the full set of codes the read's groups declared for this base
// (from Calls, NoCallCodes, and CanonicalCodes combined); calls holds the
// explicit probabilities among them; semantic is '.' or '?' for whichever
// group(s) had no explicit candidate here.
func ClassifyBase(codes []ModCode, calls map[ModCode]float64, semantic byte, thresholds *ThresholdSet) classification {
	var best ModCode
	bestProb := -1.0
	for _, c := range codes {
		if p, ok := calls[c]; ok && p > bestProb {
			best, bestProb = c, p
		}
	}
	if bestProb < 0 {
		// No explicit candidate for this base at this position: the group's
		// own semantic flag decides whether that means "canonical" or
		// "no-call" (§4.1 paragraph 4).
		if semantic == '?' {
			return classification{noCall: true}
		}
		return classification{canonical: true}
	}
	if bestProb < thresholds.Threshold(best) {
		return classification{fail: true}
	}
	var others []ModCode
	for _, c := range codes {
		if c != best {
			others = append(others, c)
		}
	}
	return classification{winner: best, hasWin: true, otherOf: others}
}
