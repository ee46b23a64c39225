package pileup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticsSummaryCounts(t *testing.T) {
	var d Diagnostics
	d.incUnmapped()
	d.incUnmapped()
	d.incSecondaryOrSupplementary()
	d.incDuplicateMarked()
	d.incDuplicatePrimary()
	d.incMalformedRecord()

	assert.EqualValues(t, 2, d.Unmapped)
	assert.EqualValues(t, 1, d.SecondaryOrSupplementary)
	assert.EqualValues(t, 1, d.DuplicateMarked)
	assert.EqualValues(t, 1, d.DuplicatePrimary)
	assert.EqualValues(t, 1, d.MalformedRecord)
	assert.Contains(t, d.Summary(), "2 unmapped")
}

func TestDiagnosticsNilReceiverIsNoOp(t *testing.T) {
	var d *Diagnostics
	d.incUnmapped()
	d.incMalformedRecord()
}
