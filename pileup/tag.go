package pileup

import (
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// Alignment Projector (§4.1): parses a read's MM/ML (or Mm/Ml) tag pair into
// per-canonical-base candidate groups, then walks the read's CIGAR to turn
// those read-space candidates into reference-space PositionContributions.

var (
	mmTagNames = []sam.Tag{{'M', 'M'}, {'M', 'm'}}
	mlTagNames = []sam.Tag{{'M', 'L'}, {'M', 'l'}}
)

// nibbleToBase maps the 4-bit BAM SEQ encoding (the nt16 alphabet) to a Base,
// BaseN for anything other than an unambiguous A/C/G/T.
var nibbleToBase = [...]Base{
	BaseN, BaseA, BaseC, BaseN, BaseG, BaseN, BaseN, BaseN,
	BaseT, BaseN, BaseN, BaseN, BaseN, BaseN, BaseN, BaseN,
}

// modGroup is one parsed MM-tag group: a (canonical base, code, semantic)
// tuple plus the resolved read-space offsets of its candidates, paired with
// their probabilities.
type modGroup struct {
	base     Base
	code     ModCode
	semantic byte // '.' (implicit-canonical) or '?' (explicit-unknown)
	minus    bool // group's own read-strand indicator, independent of alignment strand
	skips    []int
	offsets  []int
	probs    []float64 // parallel to offsets
}

// recordGroups holds every parsed MM/ML group for one read, indexed so the
// projector can, for a given read offset and canonical base, find which
// codes are candidates there and which are not.
type recordGroups struct {
	semanticOf map[Base]byte
	byBase     map[Base][]*modGroup
}

// parseModTags locates the MM/ML (or Mm/Ml) tags on rec and parses them into
// recordGroups. Returns ok=false (no error) when neither tag is present —
// per §6, a missing tag means the read is simply skipped, not an error.
func parseModTags(rec *sam.Record, seq []byte) (rg *recordGroups, ok bool, err error) {
	mmStr, found := auxString(rec, mmTagNames)
	if !found {
		return nil, false, nil
	}
	mlBytes, found := auxBytes(rec, mlTagNames)
	if !found {
		return nil, false, errors.Errorf("read %s: MM/Mm tag present without ML/Ml tag", rec.Name)
	}

	groups, err := parseGroupHeaders(mmStr)
	if err != nil {
		return nil, false, errors.Wrapf(err, "read %s: malformed MM tag", rec.Name)
	}

	probCursor := 0
	for _, g := range groups {
		offsets, derr := resolveCandidateOffsets(seq, g, rec.Name)
		if derr != nil {
			return nil, false, derr
		}
		g.offsets = offsets
		if probCursor+len(offsets) > len(mlBytes) {
			return nil, false, errors.Errorf(
				"read %s: ML tag has %d probability bytes, need at least %d",
				rec.Name, len(mlBytes), probCursor+len(offsets))
		}
		g.probs = make([]float64, len(offsets))
		for i := range offsets {
			g.probs[i] = (float64(mlBytes[probCursor+i]) + 0.5) / 256.0
		}
		probCursor += len(offsets)
	}

	rg = &recordGroups{
		semanticOf: make(map[Base]byte),
		byBase:     make(map[Base][]*modGroup),
	}
	for _, g := range groups {
		if prev, seen := rg.semanticOf[g.base]; seen && prev != g.semantic {
			return nil, false, errors.Errorf(
				"read %s: conflicting modification-flag semantics for canonical base %s", rec.Name, g.base)
		}
		rg.semanticOf[g.base] = g.semantic
		rg.byBase[g.base] = append(rg.byBase[g.base], g)
	}
	return rg, true, nil
}

// parseGroupHeaders splits the MM tag value (e.g. "C+m,5,12,0;A+a?,3;") into
// its constituent groups.
func parseGroupHeaders(mm string) ([]*modGroup, error) {
	mm = strings.TrimSuffix(mm, ";")
	if mm == "" {
		return nil, nil
	}
	var groups []*modGroup
	for _, part := range strings.Split(mm, ";") {
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		header := fields[0]
		if len(header) < 3 {
			return nil, errors.Errorf("malformed MM group header %q", header)
		}
		base, ok := ParseBase(header[0])
		if !ok {
			return nil, errors.Errorf("unsupported or ambiguous canonical base in group %q", header)
		}
		var minus bool
		switch header[1] {
		case '+':
			minus = false
		case '-':
			minus = true
		default:
			return nil, errors.Errorf("malformed MM group header %q: expected +/- strand indicator", header)
		}
		codePart := header[2:]
		semantic := byte('.')
		if n := len(codePart); n > 0 {
			switch codePart[n-1] {
			case '.', '?':
				semantic = codePart[n-1]
				codePart = codePart[:n-1]
			}
		}
		if len(codePart) != 1 {
			return nil, errors.Errorf("malformed MM group header %q: expected exactly one modification code", header)
		}
		code := ModCode(codePart[0])
		if _, known := CanonicalBase(code); !known {
			return nil, errors.Errorf("unrecognized modification code %q", string(code))
		}

		skips := make([]int, 0, len(fields)-1)
		for _, f := range fields[1:] {
			n, err := strconv.Atoi(f)
			if err != nil || n < 0 {
				return nil, errors.Errorf("malformed skip count %q in group %q", f, header)
			}
			skips = append(skips, n)
		}
		groups = append(groups, &modGroup{base: base, code: code, semantic: semantic, minus: minus, skips: skips})
	}
	return groups, nil
}

// resolveCandidateOffsets walks seq (the nt16-encoded SEQ field, in the
// orientation it is stored in the BAM record, i.e. the same orientation as
// MM-tag offsets) and converts g's skip-run-length list into absolute
// read-forward-sequence offsets (§4.1).
func resolveCandidateOffsets(seq []byte, g *modGroup, readName string) ([]int, error) {
	skips := g.skips
	if len(skips) == 0 {
		return nil, nil
	}
	scan := seq
	if g.minus {
		scan = reverseComplementNibbles(seq)
	}
	offsets := make([]int, 0, len(skips))
	skipIdx := 0
	remaining := skips[0]
	for i := 0; i < len(scan) && skipIdx < len(skips); i++ {
		if nibbleToBase[scan[i]&0xf] != g.base {
			continue
		}
		if remaining > 0 {
			remaining--
			continue
		}
		pos := i
		if g.minus {
			pos = len(seq) - 1 - i
		}
		offsets = append(offsets, pos)
		skipIdx++
		if skipIdx < len(skips) {
			remaining = skips[skipIdx]
		}
	}
	if skipIdx != len(skips) {
		return nil, errors.Errorf("read %s: MM group for %s%s ran out of %s occurrences before exhausting skip list",
			readName, g.base, string(g.code), g.base)
	}
	return offsets, nil
}

func reverseComplementNibbles(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		base := nibbleToBase[b&0xf]
		out[len(seq)-1-i] = nibbleEncoding[ComplementBase(base)]
	}
	return out
}

// nibbleEncoding is the inverse of nibbleToBase for the four unambiguous
// bases (A=1, C=2, G=4, T=8 per the nt16 alphabet).
var nibbleEncoding = map[Base]byte{
	BaseA: 1,
	BaseC: 2,
	BaseG: 4,
	BaseT: 8,
	BaseN: 15,
}

// auxString returns the string value of the first tag in names present on
// rec.
func auxString(rec *sam.Record, names []sam.Tag) (string, bool) {
	for _, name := range names {
		if aux, ok := rec.AuxFields.Get(name); ok {
			if s, ok := aux.Value().(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// auxBytes returns the byte-array value of the first tag in names present on
// rec.
func auxBytes(rec *sam.Record, names []sam.Tag) ([]byte, bool) {
	for _, name := range names {
		if aux, ok := rec.AuxFields.Get(name); ok {
			switch v := aux.Value().(type) {
			case []byte:
				return v, true
			case []uint8:
				return v, true
			}
		}
	}
	return nil, false
}
