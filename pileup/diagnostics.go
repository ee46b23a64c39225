package pileup

import (
	"fmt"
	"sync/atomic"
)

// Diagnostics accumulates per-record skip/warn counts across every window
// worker (§9 "MUST be called out in logs"; SUPPLEMENTED in SPEC_FULL.md as an
// end-of-run summary rather than a single WARN line per occurrence). Every
// field is updated with atomic.AddUint64 since workers run concurrently
// against one shared Diagnostics value (§5 "Shared resources").
type Diagnostics struct {
	SecondaryOrSupplementary uint64
	DuplicateMarked          uint64
	Unmapped                 uint64
	DuplicatePrimary         uint64
	MalformedRecord          uint64
}

// Every inc* method is a no-op on a nil receiver, so callers may pass a nil
// *Diagnostics when they don't care about the summary.

func (d *Diagnostics) incSecondaryOrSupplementary() {
	if d != nil {
		atomic.AddUint64(&d.SecondaryOrSupplementary, 1)
	}
}

func (d *Diagnostics) incDuplicateMarked() {
	if d != nil {
		atomic.AddUint64(&d.DuplicateMarked, 1)
	}
}

func (d *Diagnostics) incUnmapped() {
	if d != nil {
		atomic.AddUint64(&d.Unmapped, 1)
	}
}

func (d *Diagnostics) incDuplicatePrimary() {
	if d != nil {
		atomic.AddUint64(&d.DuplicatePrimary, 1)
	}
}

func (d *Diagnostics) incMalformedRecord() {
	if d != nil {
		atomic.AddUint64(&d.MalformedRecord, 1)
	}
}

// Summary renders a one-line end-of-run summary suitable for the final
// grailbio/base/log.Printf call in cmd/modkit-pileup.
func (d *Diagnostics) Summary() string {
	return fmt.Sprintf(
		"skipped: %d unmapped, %d secondary/supplementary, %d duplicate-marked, %d malformed-tag; "+
			"%d reads had multiple primary alignments counted twice (see design notes)",
		atomic.LoadUint64(&d.Unmapped),
		atomic.LoadUint64(&d.SecondaryOrSupplementary),
		atomic.LoadUint64(&d.DuplicateMarked),
		atomic.LoadUint64(&d.MalformedRecord),
		atomic.LoadUint64(&d.DuplicatePrimary),
	)
}
