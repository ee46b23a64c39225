// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/MatthiasZepper/modkit/encoding/bamprovider"
	"github.com/MatthiasZepper/modkit/pileup"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

var (
	refPath        = flag.String("ref", "", "Reference FASTA path. Required for --cpg, --combine-strands, and N_diff/N_delete reporting")
	cpg            = flag.Bool("cpg", false, "Restrict output to CpG dinucleotide positions (requires --ref)")
	preset         = flag.String("preset", "", "Named option bundle; currently only 'traditional' is supported (--cpg --collapse h --combine-strands)")
	collapse       = flag.String("collapse", "", "Comma-separated modification codes whose probability mass is folded into the canonical call")
	combineMods    = flag.Bool("combine-mods", false, "Merge every modification code sharing a canonical base into one synthetic row")
	combineStrands = flag.Bool("combine-strands", false, "Fold the '-' strand CpG partner position into the '+' strand row (requires --cpg)")
	threshold      = flag.Float64("threshold", 0, "Global minimum call probability; 0 means estimate via sampling")
	perModThresh   = flag.String("per-mod-threshold", "", "Comma-separated code:threshold overrides, e.g. \"h:0.8,m:0.7\"")
	samplePercent  = flag.Float64("sample-probs-percentile", pileup.DefaultPercentile, "Percentile used to derive a threshold from sampled probabilities")
	sampleReads    = flag.Int("sample-reads", pileup.DefaultSampleReads, "Per-code reservoir size, in call probabilities, of the threshold sampler (every read is visited)")
	seed           = flag.Int64("seed", 42, "Seed for the threshold sampler's reservoir sampling")
	threads        = flag.Int("threads", 0, "Number of window workers; 0 = runtime.NumCPU()")
	windowSize     = flag.Int("window-size", pileup.DefaultWindowSize, "Width, in reference bases, of one scheduling window")
	maxReadSpan    = flag.Int("max-read-span", pileup.DefaultMaxReadSpan, "Upper bound on the reference span of one read; used as window overlap padding")
	region         = flag.String("region", "", "Restrict the pileup to one contig (all other flags apply within it)")
	bedgraph       = flag.Bool("bedgraph", false, "Also emit one bedGraph file per (modification code, strand)")
	prefix         = flag.String("prefix", "modkit-pileup", "Output path prefix")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] bampath\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("exactly one positional argument (bampath) required, got %d", flag.NArg())
	}
	bamPath := flag.Arg(0)

	ctx := vcontext.Background()
	if err := run(ctx, bamPath); err != nil {
		log.Printf("modkit-pileup: %v", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch err.(type) {
	case *pileup.ConfigError:
		return 1
	case *pileup.InputError:
		return 2
	default:
		return 3
	}
}

func parseCollapse(s string) (map[pileup.ModCode]bool, error) {
	out := make(map[pileup.ModCode]bool)
	if s == "" {
		return out, nil
	}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if len(f) != 1 {
			return nil, pileup.NewConfigError("--collapse: malformed code %q", f)
		}
		out[pileup.ModCode(f[0])] = true
	}
	return out, nil
}

func parsePerModThreshold(s string) (map[pileup.ModCode]float64, error) {
	out := make(map[pileup.ModCode]float64)
	if s == "" {
		return out, nil
	}
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		parts := strings.SplitN(f, ":", 2)
		if len(parts) != 2 || len(parts[0]) != 1 {
			return nil, pileup.NewConfigError("--per-mod-threshold: malformed entry %q", f)
		}
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, pileup.NewConfigError("--per-mod-threshold: malformed threshold in %q", f)
		}
		out[pileup.ModCode(parts[0][0])] = v
	}
	return out, nil
}

// resolveOptions applies --preset, and validates flag combinations (§6, §7).
func resolveOptions() (collapseCodes map[pileup.ModCode]bool, useCpG, useCombineStrands, useCombineMods bool, err error) {
	useCpG, useCombineStrands, useCombineMods = *cpg, *combineStrands, *combineMods
	collapseStr := *collapse

	switch *preset {
	case "":
	case "traditional":
		useCpG = true
		useCombineStrands = true
		if collapseStr == "" {
			collapseStr = "h"
		}
	default:
		return nil, false, false, false, pileup.NewConfigError("unknown --preset %q", *preset)
	}

	if collapseCodes, err = parseCollapse(collapseStr); err != nil {
		return nil, false, false, false, err
	}
	if useCombineStrands && !useCpG {
		return nil, false, false, false, pileup.NewConfigError("--combine-strands requires --cpg (or --preset traditional)")
	}
	if (useCpG || useCombineStrands || *preset == "traditional") && *refPath == "" {
		return nil, false, false, false, pileup.NewConfigError("--cpg/--combine-strands/--preset traditional require --ref")
	}
	return collapseCodes, useCpG, useCombineStrands, useCombineMods, nil
}

func run(ctx context.Context, bamPath string) error {
	collapseCodes, useCpG, useCombineStrands, useCombineMods, err := resolveOptions()
	if err != nil {
		return err
	}
	perMod, err := parsePerModThreshold(*perModThresh)
	if err != nil {
		return err
	}

	provider := bamprovider.NewProvider(bamPath)
	defer provider.Close() // nolint: errcheck

	header, err := provider.GetHeader()
	if err != nil {
		return pileup.NewInputError("reading BAM header: %v", err)
	}

	var refs pileup.ReferenceSet
	if *refPath != "" {
		if refs, err = pileup.LoadReference(ctx, *refPath, header.Refs()); err != nil {
			return pileup.NewInputError("loading reference: %v", err)
		}
	}

	motif := pileup.NoMotifFilter()
	if useCpG {
		motif = pileup.NewCpGMotifFilter()
	}
	transformer := &pileup.Transformer{Collapse: collapseCodes, CombineMods: useCombineMods}

	thresholds := *threshold != 0 || len(perMod) != 0
	var thresholdSet *pileup.ThresholdSet
	if thresholds {
		thresholdSet = pileup.NewExplicitThresholdSet(*threshold, perMod)
	} else {
		thresholdSet, err = sampleThresholds(provider)
		if err != nil {
			return err
		}
	}

	nThreads := *threads
	if nThreads <= 0 {
		nThreads = runtime.NumCPU()
	}
	diagnostics := &pileup.Diagnostics{}
	opts := pileup.WindowOpts{
		WindowSize:  *windowSize,
		MaxReadSpan: *maxReadSpan,
		Workers:     nThreads,
		Transformer: transformer,
		Thresholds:  thresholdSet,
		Motif:       motif,
		Combine:     useCombineStrands,
		Refs:        refs,
		Region:      *region,
		Diagnostics: diagnostics,
	}

	rows, err := pileup.RunWindows(ctx, provider, opts)
	if err != nil {
		return err
	}

	namer := func(refID int) string {
		refs := header.Refs()
		if refID < 0 || refID >= len(refs) {
			return "*"
		}
		return refs[refID].Name()
	}
	if err := pileup.WriteBedMethyl(ctx, *prefix+".bedmethyl", rows, namer); err != nil {
		return err
	}
	if *bedgraph {
		if err := pileup.WriteBedGraphs(ctx, *prefix, rows, namer); err != nil {
			return err
		}
	}
	log.Printf("modkit-pileup: wrote %d rows", len(rows))
	log.Printf("modkit-pileup: %s", diagnostics.Summary())
	return nil
}

// sampleThresholds runs a first pass over the whole BAM, feeding every
// MM-tag-bearing read's candidate-call probabilities into a reservoir
// sampler, then derives a ThresholdSet from the sample's
// sample-probs-percentile (§4.2).
//
// §4.2 requires a uniform random sample of alignments, not the first
// *sampleReads qualifying reads in file order. Position-based sharding
// splits the genome into many shards, visited here in a seeded-random
// order, and every shard is scanned to completion: ThresholdSampler.AddRead
// already does correct Algorithm-R reservoir sampling across whatever
// stream it is fed, so the only way to make the final sample uniform over
// the file is to make sure that stream actually is the whole file, not a
// prefix of it.
func sampleThresholds(provider bamprovider.Provider) (*pileup.ThresholdSet, error) {
	shards, err := provider.GenerateShards(bamprovider.GenerateShardsOpts{
		Strategy: bamprovider.PositionBased,
	})
	if err != nil {
		return nil, pileup.NewInputError("sharding BAM: %v", err)
	}

	rnd := rand.New(rand.NewSource(*seed))
	rnd.Shuffle(len(shards), func(i, j int) { shards[i], shards[j] = shards[j], shards[i] })

	sampler := pileup.NewThresholdSampler(*sampleReads, *samplePercent, *seed)
	for _, shard := range shards {
		iter := provider.NewIterator(shard)
		for iter.Scan() {
			rec := iter.Record()
			probs, err := pileup.ReadCandidateProbs(rec)
			if err != nil {
				continue
			}
			if probs != nil {
				sampler.AddRead(probs)
			}
		}
		err := iter.Err()
		iter.Close() // nolint: errcheck
		if err != nil {
			return nil, pileup.NewInputError("reading shard during threshold sampling: %v", err)
		}
	}
	return sampler.Estimate(), nil
}
