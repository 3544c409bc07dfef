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
	"vmspace.dev/vmspace/pkg/hostarch"
)

// trySplitRegion builds one replacement fragment of source covering
// newRange, sharing source's VMObject at the offset newRange's base implies,
// and copying forward source's per-page COW bits. It corresponds to
// AddressSpace::try_allocate_split_region, minus the tree insertion (the
// caller inserts and maps the returned Region).
func trySplitRegion(source *Region, newRange hostarch.VirtualRange) *Region {
	newOffset := source.OffsetInVMObject() + (newRange.Base().Get() - source.Range().Base().Get())

	frag := newRegion(newRange, source.VMObject(), newOffset, source.Name(), source.Access(), source.IsCacheable(), source.IsShared())
	source.cloneAttributesInto(frag)

	pageOffsetInSource := (newOffset - source.OffsetInVMObject()) / hostarch.PageSize
	for i := uint32(0); i < frag.PageCount(); i++ {
		if source.ShouldCow(uint32(pageOffsetInSource) + i) {
			frag.SetShouldCow(i, true)
		}
	}
	return frag
}

// splitAroundRange implements AddressSpace::try_split_region_around_range:
// given source and a range that intersects source.Range() (either a sub-range
// of it or, in UnmapRange's multi-region case, a range overlapping one of its
// edges), it returns the 1 or 2 replacement regions covering what remains of
// source once desired is carved out. The caller is responsible for inserting and
// mapping the results; source itself is not mutated or reinserted.
func splitAroundRange(source *Region, desired hostarch.VirtualRange) []*Region {
	remainders := source.Range().Carve(desired)
	fragments := make([]*Region, 0, len(remainders))
	for _, rem := range remainders {
		fragments = append(fragments, trySplitRegion(source, rem))
	}
	return fragments
}
