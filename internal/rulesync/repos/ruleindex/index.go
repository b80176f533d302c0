// Package ruleindex provides exact-match membership over a rule list with a
// Bloom filter in front of the authoritative set, so negative lookups on
// large lists skip the map entirely.
package ruleindex

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// fpRate is the target false-positive rate of the Bloom pre-filter.
const fpRate = 0.001

// Index answers "is this exact rule string present" for a fixed rule list.
// Index is not safe for concurrent mutation.
type Index struct {
	bf  *bitsbloom.BloomFilter
	set map[string]struct{}
}

// New builds an Index over rules. Strings are matched verbatim.
func New(rules []string) *Index {
	n := uint(len(rules))
	if n == 0 {
		n = 1
	}
	idx := &Index{
		bf:  bitsbloom.NewWithEstimates(n, fpRate),
		set: make(map[string]struct{}, len(rules)),
	}
	for _, r := range rules {
		idx.Add(r)
	}
	return idx
}

// Add inserts rule into the index.
func (i *Index) Add(rule string) {
	i.bf.AddString(rule)
	i.set[rule] = struct{}{}
}

// Contains reports whether rule is in the index.
func (i *Index) Contains(rule string) bool {
	if !i.bf.TestString(rule) {
		return false
	}
	_, ok := i.set[rule]
	return ok
}

// Len returns the number of distinct rules indexed.
func (i *Index) Len() int { return len(i.set) }

// Missing returns the elements of rules that are not in the index, in order.
func (i *Index) Missing(rules []string) []string {
	var out []string
	for _, r := range rules {
		if !i.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}
