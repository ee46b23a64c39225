package pileup

import "sort"

// Counters holds the seven per-(position, strand, code) counters the
// bedMethyl output is derived from (§4.5, §6).
type Counters struct {
	NMod       uint64
	NCanonical uint64
	NOtherMod  uint64
	NDelete    uint64
	NFail      uint64
	NDiff      uint64
	NNoCall    uint64
}

// NValidCov is the "valid coverage" bedMethyl reports as column 10: reads
// that produced a usable classification for this code at this position
// (§6).
func (c Counters) NValidCov() uint64 {
	return c.NMod + c.NCanonical + c.NOtherMod
}

// FractionModified is the bedMethyl column 11 ratio (N_mod / N_valid_cov,
// §3), 0 when there is no valid coverage (such rows are suppressed by the
// Emitter rather than output with a 0 fraction).
func (c Counters) FractionModified() float64 {
	v := c.NValidCov()
	if v == 0 {
		return 0
	}
	return float64(c.NMod) / float64(v)
}

// positionKey identifies one output row: a reference position, strand, and
// modification code.
type positionKey struct {
	refID  int
	pos    PosType
	strand Strand
	code   ModCode
}

// Aggregator accumulates PositionContributions from every read overlapping a
// region into per-(position, strand, code) Counters, applying the Code
// Transformer and Motif Filter along the way (§4.4, §4.5).
type Aggregator struct {
	transformer    *Transformer
	thresholds     *ThresholdSet
	motif          *MotifFilter
	combineStrands bool
	refs           ReferenceSet

	rows map[positionKey]*Counters
}

// NewAggregator constructs an Aggregator. thresholds must be non-nil;
// transformer and motif may be zero-valued/disabled instances.
func NewAggregator(transformer *Transformer, thresholds *ThresholdSet, motif *MotifFilter, combineStrands bool, refs ReferenceSet) *Aggregator {
	return &Aggregator{
		transformer:    transformer,
		thresholds:     thresholds,
		motif:          motif,
		combineStrands: combineStrands,
		refs:           refs,
		rows:           make(map[positionKey]*Counters),
	}
}

// baseGroup tracks, for one canonical base within a single
// PositionContribution, every code the read registered there and the
// no-call/implicit-canonical semantic flag shared by those that had no
// explicit candidate (parseModTags already rejects conflicting flags for the
// same base on one read, so a single shared flag is always well-defined).
type baseGroup struct {
	codes    []ModCode
	semantic byte
}

func groupByBase(pc *PositionContribution) map[Base]*baseGroup {
	groups := make(map[Base]*baseGroup)
	get := func(code ModCode) *baseGroup {
		base, ok := CanonicalBase(code)
		if !ok {
			return nil
		}
		g, ok := groups[base]
		if !ok {
			g = &baseGroup{semantic: '.'}
			groups[base] = g
		}
		return g
	}
	add := func(code ModCode) {
		g := get(code)
		if g == nil {
			return
		}
		for _, c := range g.codes {
			if c == code {
				return
			}
		}
		g.codes = append(g.codes, code)
	}
	for code := range pc.Calls {
		add(code)
	}
	for _, code := range pc.CanonicalCodes {
		add(code)
		get(code).semantic = '.'
	}
	for _, code := range pc.NoCallCodes {
		add(code)
		get(code).semantic = '?'
	}
	return groups
}

func (a *Aggregator) row(key positionKey) *Counters {
	c, ok := a.rows[key]
	if !ok {
		c = &Counters{}
		a.rows[key] = c
	}
	return c
}

// Add folds one read's contribution to one reference position into the
// running counters, after applying collapse/combine-mods and the motif
// filter.
func (a *Aggregator) Add(pc PositionContribution) {
	if a.transformer != nil {
		a.transformer.Apply(&pc)
	}
	if a.motif != nil && !a.motif.Eligible(a.refs.Seq(pc.RefID), pc.Pos, pc.Strand) {
		return
	}

	for _, code := range pc.DiffCodes {
		a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, code}).NDiff++
	}
	for _, code := range pc.DeleteCodes {
		a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, code}).NDelete++
	}

	for _, g := range groupByBase(&pc) {
		cls := ClassifyBase(g.codes, pc.Calls, g.semantic, a.thresholds)
		switch {
		case cls.noCall:
			for _, code := range g.codes {
				a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, code}).NNoCall++
			}
		case cls.canonical:
			for _, code := range g.codes {
				a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, code}).NCanonical++
			}
		case cls.fail:
			for _, code := range g.codes {
				a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, code}).NFail++
			}
		case cls.hasWin:
			a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, cls.winner}).NMod++
			for _, code := range cls.otherOf {
				a.row(positionKey{pc.RefID, pc.Pos, pc.Strand, code}).NOtherMod++
			}
		}
	}
}

// Row is one finished output row, after the optional combine-strands fold.
type Row struct {
	RefID  int
	Pos    PosType
	Strand Strand
	Code   ModCode
	Counters
}

func addCounters(dst *Counters, src Counters) {
	dst.NMod += src.NMod
	dst.NCanonical += src.NCanonical
	dst.NOtherMod += src.NOtherMod
	dst.NDelete += src.NDelete
	dst.NFail += src.NFail
	dst.NDiff += src.NDiff
	dst.NNoCall += src.NNoCall
}

// Rows returns every accumulated row, sorted by (refID, pos, strand, code),
// applying combine-strands (§4.4) if requested: a '-'-strand row at position
// p+1 is folded into the '+'-strand row at position p (its CpG dinucleotide
// partner), and the result is emitted with strand '.'.
func (a *Aggregator) Rows() []Row {
	if a.combineStrands {
		return a.combinedRows()
	}
	rows := make([]Row, 0, len(a.rows))
	for k, c := range a.rows {
		rows = append(rows, Row{k.refID, k.pos, k.strand, k.code, *c})
	}
	sortRows(rows)
	return rows
}

func (a *Aggregator) combinedRows() []Row {
	merged := make(map[positionKey]*Counters)
	for k, c := range a.rows {
		var target positionKey
		switch k.strand {
		case StrandMinus:
			target = positionKey{k.refID, k.pos - 1, StrandCombined, k.code}
		default:
			target = positionKey{k.refID, k.pos, StrandCombined, k.code}
		}
		dst, ok := merged[target]
		if !ok {
			dst = &Counters{}
			merged[target] = dst
		}
		addCounters(dst, *c)
	}
	rows := make([]Row, 0, len(merged))
	for k, c := range merged {
		rows = append(rows, Row{k.refID, k.pos, k.strand, k.code, *c})
	}
	sortRows(rows)
	return rows
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.RefID != b.RefID {
			return a.RefID < b.RefID
		}
		if a.Pos != b.Pos {
			return a.Pos < b.Pos
		}
		if a.Strand != b.Strand {
			return a.Strand < b.Strand
		}
		return a.Code < b.Code
	})
}
