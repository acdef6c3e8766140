// Package index provides sorted-postings set algebra and the on-disk index
// store (per-key shard files with a monolithic fallback).
package index

// Postings is a sorted (ascending), duplicate-free list of row ids sharing
// one indexed key value. Sortedness and uniqueness are produced once at build
// time; every operation here preserves them.
type Postings []int32

// Intersect returns the elements present in both a and b. Two-pointer merge,
// O(len(a)+len(b)); inputs are never mutated.
func Intersect(a, b Postings) Postings {
	if len(a) == 0 || len(b) == 0 {
		return Postings{}
	}
	out := make(Postings, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		va, vb := a[i], b[j]
		switch {
		case va == vb:
			out = append(out, va)
			i++
			j++
		case va < vb:
			i++
		default:
			j++
		}
	}
	return out
}

// Union returns the deduplicated merge of a and b. Duplicates are dropped at
// merge time by tracking the last emitted value; no separate pass.
func Union(a, b Postings) Postings {
	out := make(Postings, 0, len(a)+len(b))
	i, j := 0, 0
	var last int32
	haveLast := false
	emit := func(v int32) {
		if !haveLast || v != last {
			out = append(out, v)
			last = v
			haveLast = true
		}
	}
	for i < len(a) && j < len(b) {
		va, vb := a[i], b[j]
		switch {
		case va == vb:
			emit(va)
			i++
			j++
		case va < vb:
			emit(va)
			i++
		default:
			emit(vb)
			j++
		}
	}
	for ; i < len(a); i++ {
		emit(a[i])
	}
	for ; j < len(b); j++ {
		emit(b[j])
	}
	return out
}

// UnionMany folds Union over all lists. An empty input list contributes
// nothing and folding proceeds; unlike intersection, a union cannot shrink,
// so there is no early exit. Cost is linear in the sum of all list lengths
// across the fold, so callers should put large lists late when they can.
func UnionMany(lists []Postings) Postings {
	if len(lists) == 0 {
		return Postings{}
	}
	cur := lists[0]
	for _, l := range lists[1:] {
		cur = Union(cur, l)
	}
	return cur
}
