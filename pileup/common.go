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

// Package pileup computes per-reference-position base-modification pileups
// from aligned reads carrying MM/ML (or Mm/Ml) auxiliary tags, emitting
// bedMethyl rows.
package pileup

import (
	"github.com/MatthiasZepper/modkit/interval"
)

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = interval.PosTypeMax

// Base enumerates the four canonical DNA bases. The numbering matches the
// .bam seq[] nibble encoding's bit position for each base (sam.BaseA etc.),
// which is convenient when cross-checking a read base against a modification
// code's canonical base.
type Base byte

const (
	// BaseA represents an A base.
	BaseA Base = iota
	// BaseC represents a C base.
	BaseC
	// BaseG represents a G base.
	BaseG
	// BaseT represents a T base.
	BaseT
	// BaseN is a catch-all for ambiguous bases, which are unsupported (§9).
	BaseN
)

// NBase is the number of canonical base types.
const NBase = 4

// String renders a Base as its ASCII letter.
func (b Base) String() string {
	if int(b) < len(baseToASCII) {
		return string(baseToASCII[b])
	}
	return "N"
}

var baseToASCII = [...]byte{'A', 'C', 'G', 'T', 'N'}

// asciiToBase maps an uppercase ASCII base letter to a Base, with ok=false
// for anything other than A/C/G/T.
var asciiToBase = map[byte]Base{
	'A': BaseA,
	'C': BaseC,
	'G': BaseG,
	'T': BaseT,
}

// ParseBase converts an ASCII base letter (as it appears in an MM tag group
// header) to a Base. Ambiguous letters (N and the IUPAC degenerate codes) are
// not supported in v1 (§9) and return ok=false.
func ParseBase(c byte) (b Base, ok bool) {
	b, ok = asciiToBase[c]
	return
}

// ComplementBase returns the Watson-Crick complement of b.
func ComplementBase(b Base) Base {
	switch b {
	case BaseA:
		return BaseT
	case BaseT:
		return BaseA
	case BaseC:
		return BaseG
	case BaseG:
		return BaseC
	default:
		return BaseN
	}
}

// Strand is the alignment strand of a projected call: Plus if the read
// aligned forward, Minus if reverse-complemented, or Combined for the synthetic
// combined-strand row produced by the --combine-strands transform (§4.4).
type Strand byte

const (
	// StrandPlus is the forward alignment strand ('+').
	StrandPlus Strand = iota
	// StrandMinus is the reverse alignment strand ('-').
	StrandMinus
	// StrandCombined denotes a row folded across both strands ('.').
	StrandCombined
)

// String renders a Strand as the single character used in bedMethyl output.
func (s Strand) String() string {
	switch s {
	case StrandPlus:
		return "+"
	case StrandMinus:
		return "-"
	default:
		return "."
	}
}

// ModCode identifies a base-modification call by its single-letter code, per
// the tag specification's page 9 table (§9; ChEBI numeric codes are
// unsupported). Known codes are registered in CanonicalBase below; unknown
// letters encountered while parsing an MM tag are a per-record parse error.
type ModCode byte

// canonicalBaseOf maps every modification code this implementation
// recognizes to the canonical base it modifies (§3 "Modification code").
// This table is the single global source of truth: "For any modification
// code, the canonical base it describes is fixed globally" (§3 invariant).
var canonicalBaseOf = map[ModCode]Base{
	'm': BaseC, // 5-methylcytosine
	'h': BaseC, // 5-hydroxymethylcytosine
	'f': BaseC, // 5-formylcytosine
	'c': BaseC, // 5-carboxylcytosine
	'C': BaseC, // combine-mods synthetic code for C
	'a': BaseA, // 6-methyladenine
	'A': BaseA, // combine-mods synthetic code for A
	'g': BaseG, // unassigned-but-reserved example code, G-based
	'G': BaseG,
	'e': BaseT, // 5-hydroxymethyluracil
	'b': BaseT, // 5-formyluracil
	'o': BaseG, // 8-oxoguanine
	'n': BaseN, // generic/unspecified modification; canonical base unknown
	'T': BaseT,
}

// CanonicalBase returns the canonical base a modification code describes, and
// whether the code is recognized at all.
func CanonicalBase(code ModCode) (Base, bool) {
	b, ok := canonicalBaseOf[code]
	return b, ok
}

// CombinedCode returns the synthetic uppercase code used by the
// --combine-mods transform (§4.4) to merge every modification code sharing
// canonical base b into one row.
func CombinedCode(b Base) ModCode {
	return ModCode(b.String()[0])
}
