package pileup

import (
	"context"

	"github.com/MatthiasZepper/modkit/encoding/bamprovider"
	gbam "github.com/MatthiasZepper/modkit/encoding/bam"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"
)

// DefaultWindowSize is the default width, in reference bases, of one
// scheduling unit (§4.6).
const DefaultWindowSize = 100000

// DefaultMaxReadSpan is the default upper bound on the reference span of one
// read, used as the Window Scheduler's overlap padding (§4.6 "overlap
// padding equal to the 99.9-percentile read span, or a safe constant"),
// matching the teacher's own `--max-read-span` default.
const DefaultMaxReadSpan = 511

// cancelCheckInterval is how often, in records processed, a window worker
// rechecks ctx for cancellation (§4.6).
const cancelCheckInterval = 10000

// WindowOpts configures the Window Scheduler.
type WindowOpts struct {
	WindowSize  int
	MaxReadSpan int
	Workers     int
	Transformer *Transformer
	Thresholds  *ThresholdSet
	Motif       *MotifFilter
	Combine     bool
	Refs        ReferenceSet

	// Region, if non-empty, restricts windowing to the named contig
	// (§6 "--region"); sub-contig ranges are not supported.
	Region string

	// Diagnostics, if non-nil, accumulates per-record skip/warn counts
	// across every worker (§9, SPEC_FULL.md's end-of-run summary).
	Diagnostics *Diagnostics
}

func (o *WindowOpts) normalize() {
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.MaxReadSpan <= 0 {
		o.MaxReadSpan = DefaultMaxReadSpan
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
}

// windowResult is one window's contribution to the run, kept in its
// scheduling slot so results can be returned in genomic order. Every
// window's slot is kept in memory until all windows have finished; the
// opts.Workers*2 semaphore in RunWindows bounds only how many windows are
// processed at once, not how many finished results are held.
type windowResult struct {
	rows []Row
	err  error
}

// RunWindows partitions provider's reads into fixed-size genomic windows and
// processes them with a bounded worker pool, returning every surviving Row
// in ascending genomic order (§4.6). ctx cancellation is honored between
// windows and at least every cancelCheckInterval records within a window.
func RunWindows(ctx context.Context, provider bamprovider.Provider, opts WindowOpts) ([]Row, error) {
	opts.normalize()

	header, err := provider.GetHeader()
	if err != nil {
		return nil, errors.Wrap(err, "reading BAM header")
	}
	windows := buildWindows(header, opts.WindowSize, opts.MaxReadSpan, opts.Region)
	if len(windows) == 0 {
		return nil, nil
	}

	reorderBudget := opts.Workers * 2
	if reorderBudget < 1 {
		reorderBudget = 1
	}
	results := make([]windowResult, len(windows))
	sem := make(chan struct{}, reorderBudget)

	err = traverse.Each(opts.Workers, func(workerIdx int) error {
		for wIdx := workerIdx; wIdx < len(windows); wIdx += opts.Workers {
			if ctx.Err() != nil {
				results[wIdx] = windowResult{err: ctx.Err()}
				return ctx.Err()
			}
			sem <- struct{}{}
			rows, werr := processWindow(ctx, provider, windows[wIdx], &opts)
			<-sem
			results[wIdx] = windowResult{rows: rows, err: werr}
			if werr != nil {
				return werr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var all []Row
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.rows...)
	}
	return all, nil
}

// buildWindows splits every reference contig in header into fixed-size,
// non-overlapping shards (§4.6). Each shard's Padding is set to maxReadSpan
// so its BAM iterator is opened on (window_start-maxReadSpan,
// window_end+maxReadSpan), each end capped to the contig (§4.6): the start
// padding is what lets a read that starts upstream of the window but
// overlaps into it still be found. processWindow clips every projected
// contribution back to [shard.Start, shard.End) so the padding never causes
// a position to be double-counted by two adjacent windows.
func buildWindows(header *sam.Header, windowSize, maxReadSpan int, region string) []gbam.Shard {
	var shards []gbam.Shard
	idx := 0
	for _, ref := range header.Refs() {
		if region != "" && ref.Name() != region {
			continue
		}
		length := ref.Len()
		for start := 0; start < length; start += windowSize {
			end := start + windowSize
			if end > length {
				end = length
			}
			shards = append(shards, gbam.Shard{
				StartRef: ref,
				EndRef:   ref,
				Start:    start,
				End:      end,
				Padding:  maxReadSpan,
				ShardIdx: idx,
			})
			idx++
		}
	}
	return shards
}

// processWindow runs the Alignment Projector and Position Aggregator over
// every read in shard, returning its finished rows.
func processWindow(ctx context.Context, provider bamprovider.Provider, shard gbam.Shard, opts *WindowOpts) ([]Row, error) {
	agg := NewAggregator(opts.Transformer, opts.Thresholds, opts.Motif, opts.Combine, opts.Refs)
	iter := provider.NewIterator(shard)
	defer iter.Close() // nolint: errcheck

	n := 0
	var dupPrimarySeen = make(map[string]bool)
	for iter.Scan() {
		n++
		if n%cancelCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rec := iter.Record()
		if rec.Flags&sam.Unmapped != 0 {
			opts.Diagnostics.incUnmapped()
			continue
		}
		if rec.Flags&sam.Duplicate != 0 {
			opts.Diagnostics.incDuplicateMarked()
			continue
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			opts.Diagnostics.incSecondaryOrSupplementary()
			continue
		}
		if dupPrimarySeen[rec.Name] {
			// §9: both primary alignments are consumed (a known over-count
			// hazard), not deduplicated; only the diagnostic is new here.
			log.Printf("modkit-pileup: read %s has multiple primary alignments in this window; both are being counted (known over-count hazard, see design notes)", rec.Name)
			opts.Diagnostics.incDuplicatePrimary()
		}
		dupPrimarySeen[rec.Name] = true

		contribs, err := Project(rec, opts.Refs.Seq(rec.Ref.ID()))
		if err != nil {
			log.Printf("modkit-pileup: skipping read %s: %v", rec.Name, err)
			opts.Diagnostics.incMalformedRecord()
			continue
		}
		for _, pc := range contribs {
			// A read fetched via the shard's start padding (§4.6) may carry
			// contributions upstream of shard.Start, already owned by the
			// previous window; a read whose CIGAR runs past shard.End
			// likewise has contributions that belong to the next window.
			// Clip to this shard's own range so every position is
			// aggregated by exactly one window.
			if pc.Pos < PosType(shard.Start) || pc.Pos >= PosType(shard.End) {
				continue
			}
			agg.Add(pc)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return agg.Rows(), nil
}
