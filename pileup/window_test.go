package pileup

import (
	"context"
	"testing"

	"github.com/MatthiasZepper/modkit/encoding/bamprovider"
	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/require"
)

func TestRunWindowsEndToEnd(t *testing.T) {
	header, err := sam.NewHeader(nil, []*sam.Reference{testChr1})
	require.NoError(t, err)

	r1 := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+m,0;", []byte{250})
	r2 := newAlignedRecord("read2", 10, "ACGTACGT", false, "C+h,0;", []byte{250})
	provider := bamprovider.NewFakeProvider(header, []*sam.Record{r1, r2})

	diag := &Diagnostics{}
	opts := WindowOpts{
		WindowSize:  1000,
		Workers:     2,
		Transformer: &Transformer{},
		Thresholds:  NewExplicitThresholdSet(0.8, nil),
		Motif:       NoMotifFilter(),
		Diagnostics: diag,
	}
	rows, err := RunWindows(context.Background(), provider, opts)
	require.NoError(t, err)

	byCode := make(map[ModCode]Row)
	for _, row := range rows {
		if row.Pos == 11 {
			byCode[row.Code] = row
		}
	}
	require.Contains(t, byCode, ModCode('m'))
	require.Contains(t, byCode, ModCode('h'))
	require.EqualValues(t, 1, byCode['m'].NMod)
	require.EqualValues(t, 1, byCode['m'].NOtherMod)
}

// TestRunWindowsClipsAcrossWindowBoundary covers §4.6/§5's clipping
// requirement: a single read whose alignment spans two adjacent windows must
// contribute each reference position to exactly one of them, even though the
// Window Scheduler's overlap padding (§4.6) causes both windows to fetch the
// read.
func TestRunWindowsClipsAcrossWindowBoundary(t *testing.T) {
	header, err := sam.NewHeader(nil, []*sam.Reference{testChr1})
	require.NoError(t, err)

	// read1 aligns at ref pos 10, covering positions 10-17 (seq length 8).
	// Cs sit at read offsets 1 and 5, i.e. ref positions 11 and 15.
	r := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+m,0,0;", []byte{250, 250})
	provider := bamprovider.NewFakeProvider(header, []*sam.Record{r})

	// WindowSize 12 splits the contig into [0,12), [12,24), ... so ref
	// position 11 falls in the first window and ref position 15 falls in
	// the second, while the Window Scheduler's default padding makes both
	// windows' BAM fetch overlap the whole read.
	opts := WindowOpts{
		WindowSize:  12,
		Workers:     1,
		Transformer: &Transformer{},
		Thresholds:  NewExplicitThresholdSet(0.1, nil),
		Motif:       NoMotifFilter(),
	}
	rows, err := RunWindows(context.Background(), provider, opts)
	require.NoError(t, err)

	var matches []Row
	for _, row := range rows {
		if row.Code == 'm' && (row.Pos == 11 || row.Pos == 15) {
			matches = append(matches, row)
		}
	}
	require.Len(t, matches, 2, "each position must be emitted by exactly one window, not both")
	for _, row := range matches {
		require.EqualValues(t, 1, row.NMod)
	}
}

func TestRunWindowsEmptyProviderYieldsNoRows(t *testing.T) {
	header, err := sam.NewHeader(nil, []*sam.Reference{testChr1})
	require.NoError(t, err)
	provider := bamprovider.NewFakeProvider(header, nil)

	opts := WindowOpts{
		WindowSize:  1000,
		Workers:     1,
		Transformer: &Transformer{},
		Thresholds:  NewExplicitThresholdSet(0.8, nil),
		Motif:       NoMotifFilter(),
	}
	rows, err := RunWindows(context.Background(), provider, opts)
	require.NoError(t, err)
	require.Empty(t, rows)
}
