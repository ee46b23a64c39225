package pileup

// RawCall is a read-space candidate modification call (§3 "Raw call"):
// a single (offset, canonical base, code, probability) tuple recovered from
// one read's MM/ML tag pair. Offset is relative to the read's forward
// sequence exactly as stored in the BAM record's SEQ field.
type RawCall struct {
	ReadOffset int
	Base       Base
	Code       ModCode
	Prob       float64 // midpoint of [b/256, (b+1)/256), i.e. (b+0.5)/256
}

// ProjectedCall is a reference-space modification call (§3 "Projected
// call"): a RawCall that has been mapped through the read's alignment to a
// reference contig and position.
type ProjectedCall struct {
	RefID  int
	Pos    PosType
	Strand Strand
	Base   Base
	Code   ModCode
	Prob   float64
}

// PositionContribution describes everything one read contributes toward the
// aggregates rooted at one reference position (§4.1, §4.5). Exactly one of
// Calls, NoCallCodes, CanonicalCodes, DiffCodes, DeleteCodes applies to any
// given (position, code) pair; the Aggregator resolves the final counter
// bucket per code via the classification rule in §4.4.
type PositionContribution struct {
	RefID  int
	Pos    PosType
	Strand Strand

	// Calls holds every explicit modification-tag candidate observed at this
	// read/position, keyed by code. Competing codes sharing a canonical base
	// are resolved against each other by the Code Transformer's classification
	// rule (ClassifyBase); the leftover canonical mass is not compared.
	Calls map[ModCode]float64

	// NoCallCodes lists codes whose group exists for this read's canonical
	// base but has no explicit candidate at this offset, under an
	// "explicit-unknown" semantic flag (§4.1 paragraph 4).
	NoCallCodes []ModCode

	// CanonicalCodes is the implicit-canonical analogue of NoCallCodes.
	CanonicalCodes []ModCode

	// DiffCodes lists codes whose canonical base equals the reference base
	// at this position but the read's base differs (a substitution) (§4.1).
	DiffCodes []ModCode

	// DeleteCodes lists codes whose canonical base equals the reference base
	// at a position the read's alignment deletes (§4.1, §8 boundary case).
	DeleteCodes []ModCode
}
