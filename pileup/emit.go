package pileup

import (
	"context"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Record Emitter (§4.5, §6): renders finished Rows as bedMethyl text, and
// optionally as per-(code,strand) bedGraph files.

// RefNamer resolves a BAM header ref ID to its contig name.
type RefNamer func(refID int) string

// WriteBedMethyl writes rows to path in the 18-column bedMethyl format
// (§6), suppressing rows with zero valid coverage.
func WriteBedMethyl(ctx context.Context, path string, rows []Row, refName RefNamer) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, f, &err)

	w := tsv.NewWriter(f.Writer(ctx))
	for _, r := range rows {
		if r.NValidCov() == 0 {
			continue
		}
		writeBedMethylRow(w, r, refName(r.RefID))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeBedMethylRow(w *tsv.Writer, r Row, chrom string) {
	start := int64(r.Pos)
	end := start + 1
	w.WriteString(chrom)
	w.WriteString(strconv.FormatInt(start, 10))
	w.WriteString(strconv.FormatInt(end, 10))
	w.WriteString(string(r.Code))
	w.WriteString(strconv.FormatUint(r.NValidCov(), 10))
	w.WriteString(r.Strand.String())
	w.WriteString(strconv.FormatInt(start, 10))
	w.WriteString(strconv.FormatInt(end, 10))
	w.WriteString("255,0,0")
	w.WriteString(strconv.FormatUint(r.NValidCov(), 10))
	w.WriteString(strconv.FormatFloat(r.FractionModified(), 'f', 6, 64))
	w.WriteString(strconv.FormatUint(r.NMod, 10))
	w.WriteString(strconv.FormatUint(r.NCanonical, 10))
	w.WriteString(strconv.FormatUint(r.NOtherMod, 10))
	w.WriteString(strconv.FormatUint(r.NDelete, 10))
	w.WriteString(strconv.FormatUint(r.NFail, 10))
	w.WriteString(strconv.FormatUint(r.NDiff, 10))
	w.WriteString(strconv.FormatUint(r.NNoCall, 10))
}

// WriteBedGraphs writes one bedGraph file per distinct (code, strand)
// combination present in rows, named "<prefix>.<code>.<strand>.bedgraph"
// (§6 "--bedgraph"). Each row is `chrom start end fraction_modified
// N_valid_cov`, per §6's bedGraph alternate-output format.
func WriteBedGraphs(ctx context.Context, prefix string, rows []Row, refName RefNamer) (err error) {
	type fileKey struct {
		code   ModCode
		strand Strand
	}
	writers := make(map[fileKey]*tsv.Writer)
	files := make(map[fileKey]file.File)
	defer func() {
		for _, f := range files {
			if e := f.Close(ctx); e != nil && err == nil {
				err = e
			}
		}
	}()

	for _, r := range rows {
		if r.NValidCov() == 0 {
			continue
		}
		key := fileKey{r.Code, r.Strand}
		w, ok := writers[key]
		if !ok {
			path := prefix + "." + string(r.Code) + "." + r.Strand.String() + ".bedgraph"
			var f file.File
			if f, err = file.Create(ctx, path); err != nil {
				return err
			}
			files[key] = f
			w = tsv.NewWriter(f.Writer(ctx))
			writers[key] = w
		}
		start := int64(r.Pos)
		w.WriteString(refName(r.RefID))
		w.WriteString(strconv.FormatInt(start, 10))
		w.WriteString(strconv.FormatInt(start+1, 10))
		w.WriteString(strconv.FormatFloat(r.FractionModified(), 'f', 2, 64))
		w.WriteString(strconv.FormatUint(r.NValidCov(), 10))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	for _, w := range writers {
		if err = w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
