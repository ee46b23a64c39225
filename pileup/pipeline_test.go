package pileup

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChr1, _ = sam.NewReference("chr1", "", "", 1000, nil, nil)

func matchCigar(n int) sam.Cigar {
	return sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)}
}

func newAlignedRecord(name string, pos int, seq string, reverse bool, mm string, ml []byte) *sam.Record {
	r := newTestRecord(name, seq, mm, ml)
	r.Ref = testChr1
	r.Pos = pos
	r.Cigar = matchCigar(len(seq))
	if reverse {
		r.Flags |= sam.Reverse
	}
	return r
}

func TestProjectSingleCallAboveThreshold(t *testing.T) {
	// 5-mC call on the C at read offset 1, projected to ref pos = pos+1. The
	// second C (read offset 5) has no call under the '.' flag, so it yields a
	// second, implicit-canonical contribution.
	r := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+m,0;", []byte{230})
	contribs, err := Project(r, nil)
	require.NoError(t, err)
	require.Len(t, contribs, 2)
	pc := contribs[0]
	assert.Equal(t, PosType(11), pc.Pos)
	assert.Equal(t, StrandPlus, pc.Strand)
	assert.InDelta(t, (230.0+0.5)/256.0, pc.Calls['m'], 1e-9)
}

func TestProjectSkipsSecondaryAndDuplicate(t *testing.T) {
	r := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+m,0;", []byte{230})
	r.Flags |= sam.Secondary
	assert.True(t, ShouldSkipRecord(r))
}

func TestClassifyAboveThresholdWinsMod(t *testing.T) {
	codes := []ModCode{'m', 'h'}
	calls := map[ModCode]float64{'m': 0.95}
	thresholds := NewExplicitThresholdSet(0.8, nil)
	cls := ClassifyBase(codes, calls, '.', thresholds)
	require.True(t, cls.hasWin)
	assert.Equal(t, ModCode('m'), cls.winner)
	assert.Equal(t, []ModCode{'h'}, cls.otherOf)
}

func TestClassifyBelowThresholdFails(t *testing.T) {
	codes := []ModCode{'m'}
	calls := map[ModCode]float64{'m': 0.5}
	thresholds := NewExplicitThresholdSet(0.8, nil)
	cls := ClassifyBase(codes, calls, '.', thresholds)
	assert.True(t, cls.fail)
}

func TestClassifyNoCandidateImplicitCanonical(t *testing.T) {
	codes := []ModCode{'m'}
	thresholds := NewExplicitThresholdSet(0.8, nil)
	cls := ClassifyBase(codes, nil, '.', thresholds)
	assert.True(t, cls.canonical)
}

func TestClassifyNoCandidateExplicitNoCall(t *testing.T) {
	codes := []ModCode{'a'}
	thresholds := NewExplicitThresholdSet(0.8, nil)
	cls := ClassifyBase(codes, nil, '?', thresholds)
	assert.True(t, cls.noCall)
}

func TestAggregateTwoReadsOpposingCodes(t *testing.T) {
	r1 := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+m,0;", []byte{250})
	r2 := newAlignedRecord("read2", 10, "ACGTACGT", false, "C+h,0;", []byte{250})

	thresholds := NewExplicitThresholdSet(0.8, nil)
	agg := NewAggregator(&Transformer{}, thresholds, NoMotifFilter(), false, nil)
	for _, r := range []*sam.Record{r1, r2} {
		contribs, err := Project(r, nil)
		require.NoError(t, err)
		for _, pc := range contribs {
			agg.Add(pc)
		}
	}
	rows := agg.Rows()
	byCode := make(map[ModCode]Row)
	for _, row := range rows {
		if row.Pos == 11 {
			byCode[row.Code] = row
		}
	}
	require.Contains(t, byCode, ModCode('m'))
	require.Contains(t, byCode, ModCode('h'))
	assert.EqualValues(t, 1, byCode['m'].NMod)
	assert.EqualValues(t, 1, byCode['m'].NOtherMod)
	assert.EqualValues(t, 1, byCode['h'].NMod)
	assert.EqualValues(t, 1, byCode['h'].NOtherMod)
}

func TestAggregateSingleReadCompetingCodesSameBase(t *testing.T) {
	// One read registers both 'm' and 'h' candidates for the same C; 'm' has
	// the higher probability and should win, with 'h' counted as other_mod.
	r := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+m,0;C+h,0;", []byte{250, 50})
	thresholds := NewExplicitThresholdSet(0.8, nil)
	agg := NewAggregator(&Transformer{}, thresholds, NoMotifFilter(), false, nil)
	contribs, err := Project(r, nil)
	require.NoError(t, err)
	for _, pc := range contribs {
		agg.Add(pc)
	}
	rows := agg.Rows()
	byCode := make(map[ModCode]Row)
	for _, row := range rows {
		if row.Pos == 11 {
			byCode[row.Code] = row
		}
	}
	require.Contains(t, byCode, ModCode('m'))
	require.Contains(t, byCode, ModCode('h'))
	assert.EqualValues(t, 1, byCode['m'].NMod)
	assert.EqualValues(t, 0, byCode['h'].NMod)
	assert.EqualValues(t, 1, byCode['h'].NOtherMod)
}

func TestTransformerCollapse(t *testing.T) {
	r := newAlignedRecord("read1", 10, "ACGTACGT", false, "C+h,0;", []byte{250})
	thresholds := NewExplicitThresholdSet(0.8, nil)
	transformer := &Transformer{Collapse: map[ModCode]bool{'h': true}}
	agg := NewAggregator(transformer, thresholds, NoMotifFilter(), false, nil)
	contribs, err := Project(r, nil)
	require.NoError(t, err)
	for _, pc := range contribs {
		agg.Add(pc)
	}
	rows := agg.Rows()
	for _, row := range rows {
		assert.NotEqual(t, ModCode('h'), row.Code)
	}
}

func TestMotifFilterCpG(t *testing.T) {
	ref := []byte("AACGTTT") // CpG at offset 2 (C at 2, G at 3)
	m := NewCpGMotifFilter()
	assert.True(t, m.Eligible(ref, 2, StrandPlus))
	assert.False(t, m.Eligible(ref, 0, StrandPlus))
	assert.True(t, m.Eligible(ref, 3, StrandMinus))
}

func TestCombineStrandsFold(t *testing.T) {
	plus := newAlignedRecord("readP", 10, "ACGTACGT", false, "C+m,0;", []byte{250})
	minus := newAlignedRecord("readM", 11, "ACGTACGT", true, "C+m,0;", []byte{250})

	thresholds := NewExplicitThresholdSet(0.8, nil)
	agg := NewAggregator(&Transformer{}, thresholds, NoMotifFilter(), true, nil)
	for _, r := range []*sam.Record{plus, minus} {
		contribs, err := Project(r, nil)
		require.NoError(t, err)
		for _, pc := range contribs {
			agg.Add(pc)
		}
	}
	rows := agg.Rows()
	var found bool
	for _, row := range rows {
		if row.Pos == 11 && row.Code == 'm' {
			found = true
			assert.Equal(t, StrandCombined, row.Strand)
		}
	}
	assert.True(t, found)
}
