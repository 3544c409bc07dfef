// Copyright 2024 The vmspace Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vmspace

import (
	"github.com/google/btree"

	"vmspace.dev/vmspace/pkg/hostarch"
)

// regionTreeDegree is the B-tree branching factor. 16 keeps node scans
// cache-friendly without excessive rebalancing for the region counts a
// single address space realistically holds.
const regionTreeDegree = 16

// RegionTree is an ordered map from a region's base address to the Region
// itself, supporting the point, predecessor, and range queries the
// allocator and unmap surgery need. It is backed by github.com/google/btree
// rather than a hand-rolled balanced tree.
//
// RegionTree owns the Regions inserted into it: Insert transfers ownership
// in, Remove transfers ownership back out to the caller. It is not
// separately synchronized; callers serialize access via AddressSpace.lock.
type RegionTree struct {
	tree *btree.BTreeG[*Region]
}

func regionLess(a, b *Region) bool {
	return a.Range().Base() < b.Range().Base()
}

// baseKey builds a lookup key comparable against tree entries by base
// address alone.
func baseKey(base hostarch.VirtualAddress) *Region {
	return &Region{rangeVal: hostarch.NewVirtualRange(base, hostarch.PageSize)}
}

// NewRegionTree returns an empty RegionTree.
func NewRegionTree() *RegionTree {
	return &RegionTree{tree: btree.NewG(regionTreeDegree, regionLess)}
}

// Find returns the region whose base address exactly equals base, if any.
func (t *RegionTree) Find(base hostarch.VirtualAddress) (*Region, bool) {
	return t.tree.Get(baseKey(base))
}

// FindLargestNotAbove returns the region with the greatest base address
// that is <= addr (the predecessor of addr), if any.
func (t *RegionTree) FindLargestNotAbove(addr hostarch.VirtualAddress) (*Region, bool) {
	var found *Region
	t.tree.DescendLessOrEqual(baseKey(addr), func(r *Region) bool {
		found = r
		return false
	})
	return found, found != nil
}

// successor returns the region with the smallest base address strictly
// greater than base, if any.
func (t *RegionTree) successor(base hostarch.VirtualAddress) (*Region, bool) {
	var found *Region
	t.tree.AscendGreaterOrEqual(baseKey(base), func(r *Region) bool {
		if r.Range().Base() == base {
			return true
		}
		found = r
		return false
	})
	return found, found != nil
}

// Insert adds region to the tree, keyed by its current base address. The
// tree takes ownership of region.
func (t *RegionTree) Insert(region *Region) {
	t.tree.ReplaceOrInsert(region)
}

// Remove removes the region based at base from the tree, returning true if
// a region was removed.
func (t *RegionTree) Remove(base hostarch.VirtualAddress) bool {
	_, removed := t.tree.Delete(baseKey(base))
	return removed
}

// Len returns the number of regions in the tree.
func (t *RegionTree) Len() int {
	return t.tree.Len()
}

// Ascend calls fn for every region in ascending base-address order until fn
// returns false or the tree is exhausted.
func (t *RegionTree) Ascend(fn func(*Region) bool) {
	t.tree.Ascend(func(r *Region) bool { return fn(r) })
}

// AscendFrom calls fn for every region with base address >= base, in
// ascending order, until fn returns false or the tree is exhausted.
func (t *RegionTree) AscendFrom(base hostarch.VirtualAddress, fn func(*Region) bool) {
	t.tree.AscendGreaterOrEqual(baseKey(base), func(r *Region) bool { return fn(r) })
}
