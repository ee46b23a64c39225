package pileup

// MotifFilter restricts which reference positions are eligible to appear in
// output, per §4.3. The only motif supported is CpG: a '+'-strand call at
// position p is eligible if ref[p]=='C' and ref[p+1]=='G'; a '-'-strand call
// at position p is eligible if it is the partner of that same dinucleotide,
// i.e. ref[p-1]=='C' and ref[p]=='G'.
type MotifFilter struct {
	enabled bool
}

// NewCpGMotifFilter returns a filter that restricts output to CpG positions.
func NewCpGMotifFilter() *MotifFilter {
	return &MotifFilter{enabled: true}
}

// NoMotifFilter returns a filter that admits every position (the default,
// when --cpg is not given).
func NoMotifFilter() *MotifFilter {
	return &MotifFilter{enabled: false}
}

// Eligible reports whether the (strand, pos) call on refSeq passes the
// filter. refSeq must be the uppercase ASCII reference sequence for the
// call's contig; Eligible returns false if it is nil or too short to check,
// since CpG filtering cannot be applied without a reference (§6).
func (m *MotifFilter) Eligible(refSeq []byte, pos PosType, strand Strand) bool {
	if !m.enabled {
		return true
	}
	if refSeq == nil {
		return false
	}
	switch strand {
	case StrandMinus:
		if pos < 1 || int(pos) >= len(refSeq) {
			return false
		}
		return refSeq[pos-1] == 'C' && refSeq[pos] == 'G'
	default:
		if int(pos)+1 >= len(refSeq) {
			return false
		}
		return refSeq[pos] == 'C' && refSeq[pos+1] == 'G'
	}
}
