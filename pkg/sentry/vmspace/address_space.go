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
	"gvisor.dev/gvisor/pkg/log"

	"vmspace.dev/vmspace/pkg/hostarch"
	"vmspace.dev/vmspace/pkg/memmap"
	"vmspace.dev/vmspace/pkg/pagetable"
)

const (
	// UserRangeBase is the lowest address a fresh AddressSpace's total
	// range may begin at, before the per-instance randomization offset.
	UserRangeBase = 0x0000000000010000

	// UserRangeCeiling is the exclusive upper bound of every AddressSpace's
	// total range: the canonical 47-bit x86-64 userspace/kernelspace split.
	UserRangeCeiling = 0x0000800000000000

	// miB is one mebibyte, the unit try_create's randomization offset is
	// expressed in.
	miB = 1 << 20

	// randomizationSlots is the number of possible per-instance offsets a
	// freshly created address space's total range may start at: r in [0,32).
	randomizationSlots = 32
)

// AddressSpace owns the set of mapped Regions that make up one process's
// user-mode virtual memory. It arbitrates allocation of virtual address
// ranges and implements the mapping/unmapping surgery, including splitting
// or partially covering existing regions.
//
// total_range never changes after construction; every Region in the tree
// satisfies total_range.ContainsRange(region.Range()).
type AddressSpace struct {
	pageDirectory pagetable.Directory
	totalRange    hostarch.VirtualRange
	regions       *RegionTree

	// lock serializes all region tree mutations and queries. Its position
	// in the documented lock order is first:
	// AddressSpace.lock → PageDirectory.lock → s_mm_lock.
	lock addressSpaceMutex

	rand       RandSource
	perfEvents PerfEventEmitter
}

// TryCreate constructs a new AddressSpace with a fresh page directory. If
// parent is non-nil, the new space inherits parent's total_range;
// otherwise it is assigned a randomized window within
// [UserRangeBase, UserRangeCeiling), corresponding to AddressSpace::try_create.
func TryCreate(parent *AddressSpace) (*AddressSpace, error) {
	pd, err := pagetable.TryCreateForUserspace()
	if err != nil {
		return nil, ErrOutOfMemory
	}

	var totalRange hostarch.VirtualRange
	if parent != nil {
		totalRange = parent.totalRange
	} else {
		r := DefaultRandSource.Uint64() % randomizationSlots
		randomOffset := (r * miB) &^ uint64(hostarch.PageMask)
		base := uint64(UserRangeBase) + randomOffset
		totalRange = hostarch.NewVirtualRange(hostarch.VirtualAddress(base), UserRangeCeiling-base)
	}

	return &AddressSpace{
		pageDirectory: pd,
		totalRange:    totalRange,
		regions:       NewRegionTree(),
		rand:          DefaultRandSource,
		perfEvents:    DefaultPerfEventEmitter,
	}, nil
}

// TotalRange returns the address space's fixed virtual address window.
func (as *AddressSpace) TotalRange() hostarch.VirtualRange { return as.totalRange }

// PageDirectory returns the address space's page directory.
func (as *AddressSpace) PageDirectory() pagetable.Directory { return as.pageDirectory }

// SetRandSource overrides the source of randomness used by
// AllocateRandomized, so allocation remains deterministically testable.
func (as *AddressSpace) SetRandSource(r RandSource) { as.rand = r }

// SetPerfEventEmitter overrides the sink UnmapRange reports to.
func (as *AddressSpace) SetPerfEventEmitter(e PerfEventEmitter) { as.perfEvents = e }

func (as *AddressSpace) isUserRange(r hostarch.VirtualRange) bool {
	return as.totalRange.ContainsRange(r)
}

// AllocateAnywhere finds a virtual address range not occupied by any
// existing region. A range found between regions has the given size and an
// alignment-aligned base; otherwise the whole trailing gap of totalRange is
// returned as it is. See allocateAnywhere for the search algorithm.
func (as *AddressSpace) AllocateAnywhere(size, alignment uint64) (hostarch.VirtualRange, error) {
	as.lock.Lock()
	defer as.lock.Unlock()
	return as.allocateAnywhere(size, alignment)
}

// AllocateSpecific reserves exactly [base, base+size), failing if it is
// occupied or out of range.
func (as *AddressSpace) AllocateSpecific(base hostarch.VirtualAddress, size uint64) (hostarch.VirtualRange, error) {
	as.lock.Lock()
	defer as.lock.Unlock()
	return as.allocateSpecific(base, size)
}

// AllocateRandomized tries up to maxRandomizationAttempts random addresses
// before falling back to AllocateAnywhere.
func (as *AddressSpace) AllocateRandomized(size, alignment uint64) (hostarch.VirtualRange, error) {
	as.lock.Lock()
	defer as.lock.Unlock()
	return as.allocateRandomized(size, alignment)
}

// AllocateRange dispatches to AllocateAnywhere or AllocateSpecific
// depending on whether hint is null.
func (as *AddressSpace) AllocateRange(hint hostarch.VirtualAddress, size, alignment uint64) (hostarch.VirtualRange, error) {
	as.lock.Lock()
	defer as.lock.Unlock()
	return as.allocateRange(hint, size, alignment)
}

// mapRegion installs region's translations into the page directory,
// or, for a PROT_NONE region, merely attaches it (reserving VA without
// installing entries), per AddressSpace::allocate_region_with_vmobject's
// PROT_NONE branch.
func (as *AddressSpace) mapRegion(region *Region) error {
	if region.Access() == 0 {
		mmLock.Lock()
		defer mmLock.Unlock()
		as.pageDirectory.Attach(region.Range())
		return nil
	}
	return as.pageDirectory.Map(region.Range(), region.Access(), false)
}

// AllocateRegion creates a new anonymously-backed Region over range and
// inserts it into the tree, corresponding to AddressSpace::allocate_region.
// The mapping is installed before insertion so a failure never leaves an
// orphan page-table entry with no corresponding region.
func (as *AddressSpace) AllocateRegion(r hostarch.VirtualRange, name string, prot int, strategy memmap.AllocationStrategy) (*Region, error) {
	if !r.IsValid() {
		return nil, ErrInvalidArgument
	}
	vmobject := memmap.NewAnonymousVMObject(r.Size(), strategy)
	region := newRegion(r, vmobject, 0, name, pagetable.ProtToAccessFlags(prot), true, false)
	if err := as.pageDirectory.Map(region.Range(), region.Access(), false); err != nil {
		return nil, err
	}
	return as.AddRegion(region), nil
}

// AllocateRegionWithVMObject creates a Region backed by an
// already-existing, possibly shared VMObject and inserts it into the tree,
// corresponding to AddressSpace::allocate_region_with_vmobject.
func (as *AddressSpace) AllocateRegionWithVMObject(r hostarch.VirtualRange, vmobject memmap.VMObject, offsetInVMObject uint64, name string, prot int, shared bool) (*Region, error) {
	if !r.IsValid() {
		return nil, ErrInvalidArgument
	}
	end := offsetInVMObject + r.Size()
	if end <= offsetInVMObject {
		log.Warningf("vmspace: AllocateRegionWithVMObject: overflow computing offset+size")
		return nil, ErrInvalidArgument
	}
	if offsetInVMObject >= vmobject.Size() || end > vmobject.Size() {
		log.Warningf("vmspace: AllocateRegionWithVMObject: offset/size past end of vmobject")
		return nil, ErrInvalidArgument
	}
	offsetInVMObject &^= uint64(hostarch.PageMask)

	access := pagetable.ProtToAccessFlags(prot)
	region := newRegion(r, vmobject, offsetInVMObject, name, access, true, shared)
	if err := as.mapRegion(region); err != nil {
		return nil, err
	}
	return as.AddRegion(region), nil
}

// TakeRegion removes region from the tree and returns it, transferring
// ownership to the caller. It corresponds to AddressSpace::take_region and
// panics if region is not present, matching the original's VERIFY.
func (as *AddressSpace) TakeRegion(region *Region) *Region {
	as.lock.Lock()
	defer as.lock.Unlock()
	if !as.regions.Remove(region.Range().Base()) {
		panic("vmspace: TakeRegion: region not present in tree")
	}
	return region
}

// AddRegion inserts region into the tree, transferring ownership to the
// tree. It corresponds to AddressSpace::add_region.
func (as *AddressSpace) AddRegion(region *Region) *Region {
	as.lock.Lock()
	defer as.lock.Unlock()
	as.regions.Insert(region)
	return region
}

// DeallocateRegion removes region from the tree and unmaps it, matching
// AddressSpace::deallocate_region (take_region, then let the owning handle
// drop).
func (as *AddressSpace) DeallocateRegion(region *Region) {
	r := as.TakeRegion(region)
	as.pageDirectory.Unmap(r.Range())
}

// FindRegionFromRange returns the region whose range exactly matches r
// (same base, same page-rounded size), corresponding to
// AddressSpace::find_region_from_range. A range that shares a base with a
// region but differs in size does not match here — it is routed to
// FindRegionContaining instead, matching find_region_from_range's
// exact-size-match requirement in the original source.
func (as *AddressSpace) FindRegionFromRange(r hostarch.VirtualRange) (*Region, bool) {
	as.lock.Lock()
	defer as.lock.Unlock()
	region, ok := as.regions.Find(r.Base())
	if !ok {
		return nil, false
	}
	roundedSize, ok := hostarch.PageRoundUp(r.Size())
	if !ok || region.Range().Size() != roundedSize {
		return nil, false
	}
	return region, true
}

// FindRegionContaining returns the single region whose range contains r
// (r may equal that range), if any, corresponding to
// AddressSpace::find_region_containing.
func (as *AddressSpace) FindRegionContaining(r hostarch.VirtualRange) (*Region, bool) {
	as.lock.Lock()
	defer as.lock.Unlock()
	candidate, ok := as.regions.FindLargestNotAbove(r.Base())
	if !ok {
		return nil, false
	}
	if candidate.Range().ContainsRange(r) {
		return candidate, true
	}
	return nil, false
}

// FindRegionsIntersecting returns every region whose range overlaps r, in
// ascending base order, corresponding to
// AddressSpace::find_regions_intersecting. It may stop scanning once the
// collected regions' non-overlapping remainders sum to r.Size(), matching
// the original's early-exit heuristic.
func (as *AddressSpace) FindRegionsIntersecting(r hostarch.VirtualRange) []*Region {
	as.lock.Lock()
	defer as.lock.Unlock()

	start := r.Base()
	if anchor, ok := as.regions.FindLargestNotAbove(r.Base()); ok {
		start = anchor.Range().Base()
	}

	var result []*Region
	var collected uint64
	as.regions.AscendFrom(start, func(cand *Region) bool {
		cr := cand.Range()
		if cr.Base() < r.End() && cr.End() > r.Base() {
			result = append(result, cand)
			collected += cr.Size() - cr.Intersect(r).Size()
			if collected == r.Size() {
				return false
			}
		}
		return true
	})
	return result
}

// UnmapRange implements the mapping-surgery decision tree used to unmap an
// arbitrary user range: an exact single-region match is deallocated
// outright (Case A); a range strictly inside one region splits that region
// around the unmapped sub-range (Case B); a range spanning several regions
// splits or drops each of them in turn (Case C). Permission (is_mmap) is
// validated for every affected region before any mutation, so a
// NotPermitted result in Case C leaves the tree unchanged.
//
// If reinstalling a mapping after a split fails (Cases B and C), UnmapRange
// returns that error immediately, leaving the address space in a
// documented inconsistent state; no rollback is attempted.
func (as *AddressSpace) UnmapRange(addr hostarch.VirtualAddress, size uint64) error {
	if size == 0 {
		return ErrInvalidArgument
	}
	expanded, err := hostarch.ExpandToPageBoundaries(addr.Get(), size)
	if err != nil {
		return err
	}
	if !as.isUserRange(expanded) {
		return ErrBadAddress
	}

	if whole, ok := as.FindRegionFromRange(expanded); ok {
		if !whole.IsMmap() {
			return ErrNotPermitted
		}
		as.DeallocateRegion(whole)
		as.perfEvents.UnmapPerfEvent(expanded)
		return nil
	}

	if old, ok := as.FindRegionContaining(expanded); ok {
		if !old.IsMmap() {
			return ErrNotPermitted
		}
		if err := as.splitAndReinstall(old, expanded); err != nil {
			return err
		}
		as.perfEvents.UnmapPerfEvent(expanded)
		return nil
	}

	regions := as.FindRegionsIntersecting(expanded)
	if len(regions) == 0 {
		return nil
	}
	for _, r := range regions {
		if !r.IsMmap() {
			return ErrNotPermitted
		}
	}
	for _, old := range regions {
		if old.Range().Intersect(expanded).Size() == old.Range().Size() {
			as.DeallocateRegion(old)
			continue
		}
		if err := as.splitAndReinstall(old, expanded); err != nil {
			return err
		}
	}
	as.perfEvents.UnmapPerfEvent(expanded)
	return nil
}

// splitAndReinstall takes old out of the tree, tears down its mapping
// without deallocating its VA, splits it around desired, and inserts and
// maps each resulting fragment. It corresponds to the take/unmap/split/map
// sequence shared by unmap_mmap_range's Case B and Case C.
func (as *AddressSpace) splitAndReinstall(old *Region, desired hostarch.VirtualRange) error {
	region := as.TakeRegion(old)
	as.pageDirectory.Unmap(region.Range())

	fragments := splitAroundRange(region, desired)
	for _, frag := range fragments {
		as.AddRegion(frag)
		if err := as.mapRegion(frag); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAllRegions unmaps every region without deallocating its VA or
// flushing the TLB, then drops them all from the tree. It corresponds to
// AddressSpace::remove_all_regions and is used only on the process
// teardown path.
func (as *AddressSpace) RemoveAllRegions() {
	as.lock.Lock()
	defer as.lock.Unlock()

	pdLock := as.pageDirectory.Lock()
	pdLock.Lock()
	mmLock.Lock()
	var bases []hostarch.VirtualAddress
	as.regions.Ascend(func(r *Region) bool {
		as.pageDirectory.Unmap(r.Range())
		bases = append(bases, r.Range().Base())
		return true
	})
	mmLock.Unlock()
	pdLock.Unlock()

	for _, base := range bases {
		as.regions.Remove(base)
	}
}

// Destroy drops every region from the tree, assuming they have already
// been unmapped (e.g. by RemoveAllRegions). It corresponds to
// AddressSpace::~AddressSpace /
// delete_all_regions_assuming_they_are_unmapped.
func (as *AddressSpace) Destroy() {
	as.lock.Lock()
	defer as.lock.Unlock()

	var bases []hostarch.VirtualAddress
	as.regions.Ascend(func(r *Region) bool {
		bases = append(bases, r.Range().Base())
		return true
	})
	for _, base := range bases {
		as.regions.Remove(base)
	}
}
