// Package bamprovider provides utilities for scanning an indexed BAM file in
// parallel.
//
// The Provider is an interface for reading BAM data in parallel: GenerateShards
// partitions the genome into contiguous coordinate ranges, and NewIterator
// yields the records overlapping one such range.
package bamprovider
