package pileup

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"

	"github.com/MatthiasZepper/modkit/biosimd"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/pkg/errors"
)

// ReferenceSet holds the loaded reference sequence for every contig named in
// a BAM header, keyed by header ref ID. A nil entry means the contig's
// sequence was not found in the FASTA; Project simply skips
// reference-dependent bookkeeping (N_diff, N_delete) for reads on that
// contig (§6: reference is required only for the diagnostics, motif
// filtering, and strand-combining that need it).
type ReferenceSet [][]byte

const maxReferenceLineLen = 1 << 28

// LoadReference reads a (optionally gzip-compressed) FASTA file at fapath and
// returns its sequences as uppercase ASCII byte slices indexed by the ref ID
// the sequence's name resolves to in headerRefs.
func LoadReference(ctx context.Context, fapath string, headerRefs []*sam.Reference) (refSeqs ReferenceSet, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(fapath) == fileio.Gzip {
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	scanner := bufio.NewScanner(reader)
	startSize := bufio.MaxScanTokenSize
	buf := make([]byte, startSize, maxReferenceLineLen)
	scanner.Buffer(buf, maxReferenceLineLen)

	bamRefMap := make(map[string]int, len(headerRefs))
	for i, r := range headerRefs {
		bamRefMap[r.Name()] = i
	}
	refSeqs = make(ReferenceSet, len(headerRefs))

	refIdx := 0
	keepRef := false
	var refSeq []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if keepRef {
				refSeqs[refIdx] = refSeq
			}
			name := gunsafe.BytesToString(line[1:])
			if sp := indexByte(name, ' '); sp >= 0 {
				name = name[:sp]
			}
			refIdx, keepRef = bamRefMap[name]
			if keepRef {
				refSeq = make([]byte, 0, headerRefs[refIdx].Len())
			}
			continue
		}
		if !keepRef {
			continue
		}
		refSeq = append(refSeq, line...)
	}
	if keepRef {
		refSeqs[refIdx] = refSeq
	}
	if err = scanner.Err(); err != nil {
		err = errors.Wrapf(err, "scanning reference %s", fapath)
		return
	}
	for i, s := range refSeqs {
		if s != nil {
			biosimd.CleanASCIISeqInplace(s)
			refSeqs[i] = s
		}
	}
	return
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// Seq returns the reference sequence for refID, or nil if unavailable.
func (r ReferenceSet) Seq(refID int) []byte {
	if refID < 0 || refID >= len(r) {
		return nil
	}
	return r[refID]
}
