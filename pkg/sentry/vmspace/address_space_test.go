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
	"testing"

	"vmspace.dev/vmspace/pkg/hostarch"
	"vmspace.dev/vmspace/pkg/memmap"
	"vmspace.dev/vmspace/pkg/pagetable"
)

func TestTryCreateInheritsParentRange(t *testing.T) {
	parent, err := TryCreate(nil)
	if err != nil {
		t.Fatalf("TryCreate(nil): %v", err)
	}

	child, err := TryCreate(parent)
	if err != nil {
		t.Fatalf("TryCreate(parent): %v", err)
	}
	if child.TotalRange() != parent.TotalRange() {
		t.Fatalf("child total range %+v != parent total range %+v", child.TotalRange(), parent.TotalRange())
	}
}

func TestTryCreateWithoutParentStaysWithinBounds(t *testing.T) {
	as, err := TryCreate(nil)
	if err != nil {
		t.Fatalf("TryCreate(nil): %v", err)
	}
	if as.TotalRange().Base().Get() < UserRangeBase {
		t.Fatalf("total range base %#x below UserRangeBase %#x", as.TotalRange().Base().Get(), uint64(UserRangeBase))
	}
	if as.TotalRange().End().Get() != UserRangeCeiling {
		t.Fatalf("total range end %#x != UserRangeCeiling %#x", as.TotalRange().End().Get(), uint64(UserRangeCeiling))
	}
}

func TestAllocateRegionInstallsMapping(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)

	region, err := as.AllocateRegion(testRange(0x10000, hostarch.PageSize), "anon", pagetable.ProtRead|pagetable.ProtWrite, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}

	sw := as.pageDirectory.(*pagetable.SoftwareDirectory)
	if !sw.IsMapped(hostarch.VirtualAddress(0x10000)) {
		t.Fatalf("AllocateRegion did not install a page table mapping")
	}
	if region.Access() != pagetable.Read|pagetable.Write {
		t.Fatalf("Access() = %v, want Read|Write", region.Access())
	}
	if found, ok := as.regions.Find(hostarch.VirtualAddress(0x10000)); !ok || found != region {
		t.Fatalf("AllocateRegion did not insert the region into the tree")
	}
}

func TestAllocateRegionWithVMObjectProtNoneAttachesOnly(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	obj := memmap.NewAnonymousVMObject(hostarch.PageSize, memmap.Reserve)

	_, err := as.AllocateRegionWithVMObject(testRange(0x10000, hostarch.PageSize), obj, 0, "reserved", pagetable.ProtNone, false)
	if err != nil {
		t.Fatalf("AllocateRegionWithVMObject: %v", err)
	}

	sw := as.pageDirectory.(*pagetable.SoftwareDirectory)
	if !sw.IsMapped(hostarch.VirtualAddress(0x10000)) {
		t.Fatalf("PROT_NONE region was not attached")
	}
}

func TestAllocateRegionWithVMObjectRejectsOutOfBoundsOffset(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	obj := memmap.NewAnonymousVMObject(hostarch.PageSize, memmap.Reserve)

	_, err := as.AllocateRegionWithVMObject(testRange(0x10000, hostarch.PageSize), obj, hostarch.PageSize, "", pagetable.ProtRead, false)
	if err != ErrInvalidArgument {
		t.Fatalf("AllocateRegionWithVMObject with offset past the vmobject = %v, want ErrInvalidArgument", err)
	}
}

func TestUnmapRangeExactMatchDeallocates(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	region, err := as.AllocateRegion(testRange(0x10000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}
	region.SetMmap(true)

	if err := as.UnmapRange(hostarch.VirtualAddress(0x10000), hostarch.PageSize); err != nil {
		t.Fatalf("UnmapRange: %v", err)
	}

	if as.regions.Len() != 0 {
		t.Fatalf("region tree has %d entries after exact unmap, want 0", as.regions.Len())
	}
	sw := as.pageDirectory.(*pagetable.SoftwareDirectory)
	if sw.IsMapped(hostarch.VirtualAddress(0x10000)) {
		t.Fatalf("region still mapped after exact unmap")
	}
}

func TestUnmapRangeContainedSplitsRegion(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	region, err := as.AllocateRegion(testRange(0x10000, 4*hostarch.PageSize), "heap", pagetable.ProtRead|pagetable.ProtWrite, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}
	region.SetMmap(true)

	// Unmap the second page out of four: [0x11000, 0x12000).
	if err := as.UnmapRange(hostarch.VirtualAddress(0x11000), hostarch.PageSize); err != nil {
		t.Fatalf("UnmapRange: %v", err)
	}

	if as.regions.Len() != 2 {
		t.Fatalf("region tree has %d entries after a middle unmap, want 2", as.regions.Len())
	}
	left, ok := as.regions.Find(hostarch.VirtualAddress(0x10000))
	if !ok || left.Range() != testRange(0x10000, hostarch.PageSize) {
		t.Fatalf("left fragment missing or wrong range: %+v, %v", left, ok)
	}
	right, ok := as.regions.Find(hostarch.VirtualAddress(0x12000))
	if !ok || right.Range() != testRange(0x12000, 2*hostarch.PageSize) {
		t.Fatalf("right fragment missing or wrong range: %+v, %v", right, ok)
	}
	if !left.IsMmap() || !right.IsMmap() {
		t.Fatalf("split fragments must inherit is_mmap from the source region")
	}

	sw := as.pageDirectory.(*pagetable.SoftwareDirectory)
	if sw.IsMapped(hostarch.VirtualAddress(0x11000)) {
		t.Fatalf("unmapped middle page is still installed at its old base")
	}
	if !sw.IsMapped(hostarch.VirtualAddress(0x10000)) || !sw.IsMapped(hostarch.VirtualAddress(0x12000)) {
		t.Fatalf("split fragments were not remapped")
	}
}

func TestUnmapRangeSpanningMultipleRegions(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	r1, err := as.AllocateRegion(testRange(0x10000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion r1: %v", err)
	}
	r1.SetMmap(true)
	r2, err := as.AllocateRegion(testRange(0x11000, 2*hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion r2: %v", err)
	}
	r2.SetMmap(true)

	// Unmap [0x10800, 0x12000), which page-rounds to [0x10000, 0x12000):
	// fully covers r1 and the first page of r2's two pages.
	if err := as.UnmapRange(hostarch.VirtualAddress(0x10800), 0x1800); err != nil {
		t.Fatalf("UnmapRange: %v", err)
	}

	if as.regions.Len() != 1 {
		t.Fatalf("region tree has %d entries, want 1 (r1 fully deallocated, r2 leaves a trailing remainder)", as.regions.Len())
	}
	remainder, ok := as.regions.Find(hostarch.VirtualAddress(0x12000))
	if !ok || remainder.Range() != testRange(0x12000, hostarch.PageSize) {
		t.Fatalf("expected r2's trailing remainder at 0x12000, got %+v, %v", remainder, ok)
	}
}

func TestUnmapRangeSpanningMultipleRegionsPartial(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	r1, err := as.AllocateRegion(testRange(0x10000, 2*hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion r1: %v", err)
	}
	r1.SetMmap(true)
	r2, err := as.AllocateRegion(testRange(0x12000, 2*hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve)
	if err != nil {
		t.Fatalf("AllocateRegion r2: %v", err)
	}
	r2.SetMmap(true)

	// Unmap [0x11000, 0x13000): the second page of r1 and the first page
	// of r2 — neither region is fully covered.
	if err := as.UnmapRange(hostarch.VirtualAddress(0x11000), 2*hostarch.PageSize); err != nil {
		t.Fatalf("UnmapRange: %v", err)
	}

	if as.regions.Len() != 2 {
		t.Fatalf("region tree has %d entries, want 2 (one remainder from each source region)", as.regions.Len())
	}
	if _, ok := as.regions.Find(hostarch.VirtualAddress(0x10000)); !ok {
		t.Fatalf("expected r1's leading remainder at 0x10000")
	}
	if _, ok := as.regions.Find(hostarch.VirtualAddress(0x13000)); !ok {
		t.Fatalf("expected r2's trailing remainder at 0x13000")
	}
}

func TestUnmapRangeRejectsNonMmapRegion(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if _, err := as.AllocateRegion(testRange(0x10000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}
	// is_mmap defaults to false: this region was not created via the
	// user-facing mmap path.

	if err := as.UnmapRange(hostarch.VirtualAddress(0x10000), hostarch.PageSize); err != ErrNotPermitted {
		t.Fatalf("UnmapRange on a non-mmap region = %v, want ErrNotPermitted", err)
	}
	if as.regions.Len() != 1 {
		t.Fatalf("region tree mutated despite ErrNotPermitted")
	}
}

func TestUnmapRangeOutOfBounds(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if err := as.UnmapRange(hostarch.VirtualAddress(0x100000), hostarch.PageSize); err != ErrBadAddress {
		t.Fatalf("UnmapRange outside total_range = %v, want ErrBadAddress", err)
	}
}

func TestUnmapRangeUncoveredIsNoop(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if err := as.UnmapRange(hostarch.VirtualAddress(0x20000), hostarch.PageSize); err != nil {
		t.Fatalf("UnmapRange over empty space: %v", err)
	}
}

func TestFindRegionFromRangeRequiresExactSize(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if _, err := as.AllocateRegion(testRange(0x10000, 2*hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}

	if _, ok := as.FindRegionFromRange(testRange(0x10000, 2*hostarch.PageSize)); !ok {
		t.Fatalf("FindRegionFromRange should match on exact size")
	}
	if _, ok := as.FindRegionFromRange(testRange(0x10000, hostarch.PageSize)); ok {
		t.Fatalf("FindRegionFromRange matched a same-base range with a different size")
	}
}

func TestFindRegionContaining(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if _, err := as.AllocateRegion(testRange(0x10000, 4*hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}

	if _, ok := as.FindRegionContaining(testRange(0x11000, hostarch.PageSize)); !ok {
		t.Fatalf("FindRegionContaining should find the enclosing region")
	}
	if _, ok := as.FindRegionContaining(testRange(0x13000, 2*hostarch.PageSize)); ok {
		t.Fatalf("FindRegionContaining matched a range that spills past the region's end")
	}
}

func TestFindRegionsIntersecting(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if _, err := as.AllocateRegion(testRange(0x10000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion r1: %v", err)
	}
	if _, err := as.AllocateRegion(testRange(0x12000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion r2: %v", err)
	}
	if _, err := as.AllocateRegion(testRange(0x14000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion r3: %v", err)
	}

	got := as.FindRegionsIntersecting(testRange(0x10000, 0x5000))
	if len(got) != 3 {
		t.Fatalf("FindRegionsIntersecting returned %d regions, want 3", len(got))
	}
}

func TestTakeRegionPanicsOnUnknownRegion(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	stray := newTestRegion(0x50000, hostarch.PageSize)

	defer func() {
		if recover() == nil {
			t.Fatalf("TakeRegion on a region absent from the tree should panic")
		}
	}()
	as.TakeRegion(stray)
}

func TestRemoveAllRegionsUnmapsEverything(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	if _, err := as.AllocateRegion(testRange(0x10000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}
	if _, err := as.AllocateRegion(testRange(0x11000, hostarch.PageSize), "", pagetable.ProtRead, memmap.Reserve); err != nil {
		t.Fatalf("AllocateRegion: %v", err)
	}

	as.RemoveAllRegions()

	if as.regions.Len() != 0 {
		t.Fatalf("region tree has %d entries after RemoveAllRegions, want 0", as.regions.Len())
	}
	sw := as.pageDirectory.(*pagetable.SoftwareDirectory)
	if sw.Len() != 0 {
		t.Fatalf("page directory has %d mappings after RemoveAllRegions, want 0", sw.Len())
	}
}

func TestAccountingAmountVirtualAndResident(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	obj := memmap.NewAnonymousVMObject(2*hostarch.PageSize, memmap.AllocateNow)
	if _, err := as.AllocateRegionWithVMObject(testRange(0x10000, 2*hostarch.PageSize), obj, 0, "", pagetable.ProtRead, false); err != nil {
		t.Fatalf("AllocateRegionWithVMObject: %v", err)
	}

	if got := as.AmountVirtual(); got != 2*hostarch.PageSize {
		t.Fatalf("AmountVirtual() = %d, want %d", got, 2*hostarch.PageSize)
	}
	if got := as.AmountResident(); got != 2*hostarch.PageSize {
		t.Fatalf("AmountResident() = %d, want %d (AllocateNow is immediately resident)", got, 2*hostarch.PageSize)
	}
	if got := as.AmountDirtyPrivate(); got != 2*hostarch.PageSize {
		t.Fatalf("AmountDirtyPrivate() = %d, want %d", got, 2*hostarch.PageSize)
	}
}

func TestAccountingAmountCleanInodeDeduplicatesSharedObject(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	obj := memmap.NewInodeVMObject(2 * hostarch.PageSize)
	if _, err := as.AllocateRegionWithVMObject(testRange(0x10000, hostarch.PageSize), obj, 0, "", pagetable.ProtRead, true); err != nil {
		t.Fatalf("AllocateRegionWithVMObject r1: %v", err)
	}
	if _, err := as.AllocateRegionWithVMObject(testRange(0x11000, hostarch.PageSize), obj, hostarch.PageSize, "", pagetable.ProtRead, true); err != nil {
		t.Fatalf("AllocateRegionWithVMObject r2: %v", err)
	}

	if got := as.AmountCleanInode(); got != 2*hostarch.PageSize {
		t.Fatalf("AmountCleanInode() = %d, want %d (the shared inode counted once)", got, 2*hostarch.PageSize)
	}
}

func TestAccountingAmountPurgeable(t *testing.T) {
	as := newTestAddressSpace(t, 0x10000, 0xf0000)
	obj := memmap.NewPurgeableAnonymousVMObject(hostarch.PageSize, memmap.AllocateNow)
	if _, err := as.AllocateRegionWithVMObject(testRange(0x10000, hostarch.PageSize), obj, 0, "", pagetable.ProtRead, false); err != nil {
		t.Fatalf("AllocateRegionWithVMObject: %v", err)
	}

	if got := as.AmountPurgeableNonvolatile(); got != hostarch.PageSize {
		t.Fatalf("AmountPurgeableNonvolatile() = %d, want %d before SetVolatile", got, hostarch.PageSize)
	}
	if got := as.AmountPurgeableVolatile(); got != 0 {
		t.Fatalf("AmountPurgeableVolatile() = %d, want 0 before SetVolatile", got)
	}

	obj.SetVolatile(true)
	if got := as.AmountPurgeableVolatile(); got != hostarch.PageSize {
		t.Fatalf("AmountPurgeableVolatile() = %d, want %d after SetVolatile", got, hostarch.PageSize)
	}
}
