package pileup

import (
	"github.com/biogo/hts/sam"
)

// Alignment Projector (§4.1, continued from tag.go): walks a read's CIGAR
// operations, turning the read-space candidate groups parsed by
// parseModTags into reference-anchored PositionContributions.

// StandardCodesForBase returns the modification codes this implementation
// recognizes whose canonical base is b, excluding the --combine-mods
// synthetic uppercase codes and the unspecified-canonical-base code 'n'.
// This is the "every modification code whose canonical base matches" set
// referenced throughout §4.1 for substitution and deletion bookkeeping.
func StandardCodesForBase(b Base) []ModCode {
	return standardCodesForBase[b]
}

var standardCodesForBase = func() map[Base][]ModCode {
	m := make(map[Base][]ModCode)
	for code, base := range canonicalBaseOf {
		if code >= 'A' && code <= 'Z' {
			continue // combine-mods synthetic code, not a real tag code
		}
		if base == BaseN {
			continue // 'n': canonical base unspecified, not substitution-trackable
		}
		m[base] = append(m[base], code)
	}
	return m
}()

// ShouldSkipRecord reports whether rec must be skipped outright per §4.1:
// secondary and supplementary alignments, and duplicate-marked reads.
func ShouldSkipRecord(rec *sam.Record) bool {
	return rec.Flags&(sam.Secondary|sam.Supplementary|sam.Duplicate) != 0
}

// RecordStrand returns the alignment strand of rec.
func RecordStrand(rec *sam.Record) Strand {
	if rec.Flags&sam.Reverse != 0 {
		return StrandMinus
	}
	return StrandPlus
}

// candidateIndex maps a read-forward-sequence offset to the explicit
// modification candidates (code -> probability) declared there, across every
// group in a read (§4.1 "pair them positionally with probabilities").
type candidateIndex map[int]map[ModCode]float64

func buildCandidateIndex(rg *recordGroups) candidateIndex {
	idx := make(candidateIndex)
	for _, groups := range rg.byBase {
		for _, g := range groups {
			for i, off := range g.offsets {
				byCode, ok := idx[off]
				if !ok {
					byCode = make(map[ModCode]float64)
					idx[off] = byCode
				}
				byCode[g.code] = g.probs[i]
			}
		}
	}
	return idx
}

// ReadCandidateProbs parses rec's MM/ML tags and returns every candidate
// call's probability, grouped by code, without projecting them onto the
// reference. Used by the Threshold Estimator's sampling pass (§4.2), which
// only needs the raw probability distribution per code.
func ReadCandidateProbs(rec *sam.Record) (map[ModCode][]float64, error) {
	seq := unpackSeq(rec)
	rg, ok, err := parseModTags(rec, seq)
	if err != nil || !ok {
		return nil, err
	}
	out := make(map[ModCode][]float64)
	for _, groups := range rg.byBase {
		for _, g := range groups {
			out[g.code] = append(out[g.code], g.probs...)
		}
	}
	return out, nil
}

// Project converts one alignment record into the PositionContributions it
// makes to the reference positions it overlaps (§4.1). refSeq is the ASCII
// (uppercase A/C/G/T/N) reference sequence for rec's contig; it may be nil,
// in which case substitution (N_diff) and deletion (N_delete) bookkeeping is
// skipped, since both require knowing the true reference base (§6: the
// reference is only required when those diagnostics, motif filtering, or
// strand-combining are requested).
func Project(rec *sam.Record, refSeq []byte) ([]PositionContribution, error) {
	seq := unpackSeq(rec)
	rg, ok, err := parseModTags(rec, seq)
	if err != nil || !ok {
		return nil, err
	}
	if len(rg.byBase) == 0 {
		return nil, nil
	}
	idx := buildCandidateIndex(rg)

	refID := rec.Ref.ID()
	strand := RecordStrand(rec)
	refPos := PosType(rec.Pos)
	readPos := 0
	var out []PositionContribution

	emitMatch := func() {
		if readPos >= len(seq) {
			return
		}
		readBase := nibbleToBase[seq[readPos]&0xf]
		if readBase == BaseN {
			readPos++
			refPos++
			return
		}
		var refBase Base
		refKnown := false
		if refSeq != nil && int(refPos) < len(refSeq) {
			if b, ok := ParseBase(refSeq[refPos]); ok {
				refBase, refKnown = b, true
			}
		}
		var pc PositionContribution
		pc.RefID, pc.Pos, pc.Strand = refID, refPos, strand

		if refKnown && refBase != readBase {
			pc.DiffCodes = append(pc.DiffCodes, StandardCodesForBase(refBase)...)
		} else {
			groups := rg.byBase[readBase]
			cands := idx[readPos]
			for _, g := range groups {
				if cands != nil {
					if p, ok := cands[g.code]; ok {
						if pc.Calls == nil {
							pc.Calls = make(map[ModCode]float64)
						}
						pc.Calls[g.code] = p
						continue
					}
				}
				if g.semantic == '?' {
					pc.NoCallCodes = append(pc.NoCallCodes, g.code)
				} else {
					pc.CanonicalCodes = append(pc.CanonicalCodes, g.code)
				}
			}
		}
		if len(pc.Calls) != 0 || len(pc.NoCallCodes) != 0 || len(pc.CanonicalCodes) != 0 || len(pc.DiffCodes) != 0 {
			out = append(out, pc)
		}
		readPos++
		refPos++
	}

	emitDeletion := func() {
		if refSeq == nil || int(refPos) >= len(refSeq) {
			refPos++
			return
		}
		b, ok := ParseBase(refSeq[refPos])
		if ok {
			codes := StandardCodesForBase(b)
			if len(codes) != 0 {
				out = append(out, PositionContribution{
					RefID: refID, Pos: refPos, Strand: strand,
					DeleteCodes: codes,
				})
			}
		}
		refPos++
	}

	for _, co := range rec.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				emitMatch()
			}
		case sam.CigarInsertion, sam.CigarSoftClipped:
			readPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			for i := 0; i < n; i++ {
				emitDeletion()
			}
		case sam.CigarHardClipped, sam.CigarPadded:
			// consumes neither read nor reference coordinates
		default:
			// CigarBack and any future op: no coordinate semantics we need to
			// support.
		}
	}
	return out, nil
}

// unpackSeq extracts rec's SEQ field into one nt16 nibble value per byte, in
// the same forward-sequence orientation MM-tag offsets use.
func unpackSeq(rec *sam.Record) []byte {
	packed := rec.Seq.Seq
	n := rec.Seq.Length
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := packed[i/2]
		if i%2 == 0 {
			out[i] = byte(b >> 4)
		} else {
			out[i] = byte(b & 0xf)
		}
	}
	return out
}
