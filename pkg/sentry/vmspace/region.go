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
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/bitmap"

	"vmspace.dev/vmspace/pkg/hostarch"
	"vmspace.dev/vmspace/pkg/memmap"
	"vmspace.dev/vmspace/pkg/pagetable"
)

// Region is one contiguous, uniformly-attributed mapped virtual address
// interval. Its Range.Base() is its identity and RegionTree key.
//
// Flags that may be read by a caller holding a *Region handle without
// holding the owning AddressSpace's lock (IsMmap, IsStack, IsSyscallRegion,
// Cacheable, Shared) are atomicbitops.Bool rather than plain bool, since a
// Region can be shared or its handle can outlive the scan that found it.
type Region struct {
	rangeVal hostarch.VirtualRange

	vmobject         memmap.VMObject
	offsetInVMObject uint64
	name             string
	access           pagetable.AccessFlags

	cacheable       atomicbitops.Bool
	shared          atomicbitops.Bool
	isMmap          atomicbitops.Bool
	isStack         atomicbitops.Bool
	isSyscallRegion atomicbitops.Bool

	// cow is a per-page copy-on-write bitset indexed [0, PageCount()).
	cow bitmap.Bitmap
}

// newRegion constructs a Region over range backed by vmobject at
// offsetInVMObject, with no pages marked copy-on-write and no
// mmap/stack/syscall flags set. It corresponds to
// Region::try_create_user_accessible.
func newRegion(r hostarch.VirtualRange, vmobject memmap.VMObject, offsetInVMObject uint64, name string, access pagetable.AccessFlags, cacheable, shared bool) *Region {
	reg := &Region{
		rangeVal:         r,
		vmobject:         vmobject,
		offsetInVMObject: offsetInVMObject,
		name:             name,
		access:           access,
		cow:              bitmap.New(uint32(r.Size() / hostarch.PageSize)),
	}
	reg.cacheable.Store(cacheable)
	reg.shared.Store(shared)
	return reg
}

// Range returns the region's virtual address range.
func (r *Region) Range() hostarch.VirtualRange { return r.rangeVal }

// VMObject returns the region's backing memory object.
func (r *Region) VMObject() memmap.VMObject { return r.vmobject }

// OffsetInVMObject returns the page-aligned byte offset into VMObject()
// where this region's mapping begins.
func (r *Region) OffsetInVMObject() uint64 { return r.offsetInVMObject }

// Name returns the region's optional name.
func (r *Region) Name() string { return r.name }

// Access returns the region's access flags.
func (r *Region) Access() pagetable.AccessFlags { return r.access }

// IsCacheable returns whether the region's mapping is cacheable.
func (r *Region) IsCacheable() bool { return r.cacheable.Load() }

// IsShared returns whether the region's backing pages are shared.
func (r *Region) IsShared() bool { return r.shared.Load() }

// IsMmap returns whether the region was created via the user-facing
// memory-map path and is therefore eligible for user-requested unmapping.
func (r *Region) IsMmap() bool { return r.isMmap.Load() }

// SetMmap sets the mmap-eligibility flag.
func (r *Region) SetMmap(v bool) { r.isMmap.Store(v) }

// IsStack returns whether the region backs a thread stack.
func (r *Region) IsStack() bool { return r.isStack.Load() }

// SetStack sets the stack flag.
func (r *Region) SetStack(v bool) { r.isStack.Store(v) }

// IsSyscallRegion returns whether the region is used for the syscall entry
// trampoline.
func (r *Region) IsSyscallRegion() bool { return r.isSyscallRegion.Load() }

// SetSyscallRegion sets the syscall-region flag.
func (r *Region) SetSyscallRegion(v bool) { r.isSyscallRegion.Store(v) }

// PageCount returns the number of pages in the region.
func (r *Region) PageCount() uint32 {
	return uint32(r.rangeVal.Size() / hostarch.PageSize)
}

// ShouldCow returns whether page i (0-indexed from the region's base) is
// marked copy-on-write.
func (r *Region) ShouldCow(i uint32) bool {
	bit, err := r.cow.FirstOne(i)
	return err == nil && bit == i
}

// SetShouldCow marks page i copy-on-write, or clears the mark.
func (r *Region) SetShouldCow(i uint32, cow bool) {
	if cow {
		r.cow.Add(i)
	} else {
		r.cow.Remove(i)
	}
}

// AmountResident returns the number of bytes of this region's virtual range
// that are backed by physical pages. This is the VMObject's resident bytes
// capped at the region's size, and may double-count pages shared with other
// regions over the same VMObject, a
// documented limitation inherited from the same behavior in the original
// source.
func (r *Region) AmountResident() uint64 {
	anon, ok := r.vmobject.(memmap.Anonymous)
	if !ok {
		// Non-anonymous (inode-backed) objects are always considered
		// resident for the portion mapped by this region: there is no
		// separate physical-page tracking layer in scope here.
		return r.rangeVal.Size()
	}
	resident := anon.ResidentBytes()
	if resident > r.rangeVal.Size() {
		return r.rangeVal.Size()
	}
	return resident
}

// AmountDirty returns the number of bytes in this region considered dirty.
// Anonymous, non-shared regions are private and therefore fully dirty once
// resident; shared or inode-backed regions report zero here (dirty
// inode-backed page accounting is out of scope for this package).
func (r *Region) AmountDirty() uint64 {
	if r.IsShared() || r.vmobject.IsInode() {
		return 0
	}
	return r.AmountResident()
}

// AmountShared returns the number of bytes in this region considered
// shared: its full resident size if the region is marked shared, else zero.
func (r *Region) AmountShared() uint64 {
	if !r.IsShared() {
		return 0
	}
	return r.AmountResident()
}

// cloneAttributesInto copies the attributes that split-around-range
// inherits from a source region onto dst (everything except identity:
// range, vmobject reference, and offset, which the caller sets separately).
func (r *Region) cloneAttributesInto(dst *Region) {
	dst.name = r.name
	dst.cacheable.Store(r.IsCacheable())
	dst.shared.Store(r.IsShared())
	dst.isMmap.Store(r.IsMmap())
	dst.isStack.Store(r.IsStack())
	dst.isSyscallRegion.Store(r.IsSyscallRegion())
}
