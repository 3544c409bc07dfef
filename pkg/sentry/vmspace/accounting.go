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
	"vmspace.dev/vmspace/pkg/memmap"
)

// AmountVirtual returns the sum of every region's virtual range size,
// corresponding to AddressSpace::amount_virtual. Regions that alias the
// same VMObject each count their own range independently.
func (as *AddressSpace) AmountVirtual() uint64 {
	as.lock.Lock()
	defer as.lock.Unlock()

	var total uint64
	as.regions.Ascend(func(r *Region) bool {
		total += r.Range().Size()
		return true
	})
	return total
}

// AmountResident returns the sum of every region's AmountResident,
// corresponding to AddressSpace::amount_resident. Pages backed by a
// VMObject shared between two regions are counted once per region, a
// documented over-count inherited from the same behavior in the original
// source.
func (as *AddressSpace) AmountResident() uint64 {
	as.lock.Lock()
	defer as.lock.Unlock()

	var total uint64
	as.regions.Ascend(func(r *Region) bool {
		total += r.AmountResident()
		return true
	})
	return total
}

// AmountShared returns the sum of every region's AmountShared, corresponding
// to AddressSpace::amount_shared.
func (as *AddressSpace) AmountShared() uint64 {
	as.lock.Lock()
	defer as.lock.Unlock()

	var total uint64
	as.regions.Ascend(func(r *Region) bool {
		total += r.AmountShared()
		return true
	})
	return total
}

// AmountDirtyPrivate returns the sum of every region's AmountDirty,
// corresponding to AddressSpace::amount_dirty_private.
func (as *AddressSpace) AmountDirtyPrivate() uint64 {
	as.lock.Lock()
	defer as.lock.Unlock()

	var total uint64
	as.regions.Ascend(func(r *Region) bool {
		total += r.AmountDirty()
		return true
	})
	return total
}

// AmountCleanInode returns the sum of AmountClean() across every distinct
// inode-backed VMObject referenced by a region in this address space,
// counting each VMObject once no matter how many regions map it,
// corresponding to AddressSpace::amount_clean_inode.
func (as *AddressSpace) AmountCleanInode() uint64 {
	as.lock.Lock()
	defer as.lock.Unlock()

	seen := make(map[memmap.VMObject]bool)
	var total uint64
	as.regions.Ascend(func(r *Region) bool {
		inode, ok := r.VMObject().(memmap.Inode)
		if !ok || seen[r.VMObject()] {
			return true
		}
		seen[r.VMObject()] = true
		total += inode.AmountClean()
		return true
	})
	return total
}

// AmountPurgeableVolatile returns the sum of resident bytes across every
// distinct purgeable, currently-volatile anonymous VMObject referenced by a
// region in this address space, corresponding to
// AddressSpace::amount_purgeable_volatile.
func (as *AddressSpace) AmountPurgeableVolatile() uint64 {
	return as.sumDistinctPurgeable(true)
}

// AmountPurgeableNonvolatile returns the sum of resident bytes across every
// distinct purgeable, currently-nonvolatile anonymous VMObject referenced by
// a region in this address space, corresponding to
// AddressSpace::amount_purgeable_nonvolatile.
func (as *AddressSpace) AmountPurgeableNonvolatile() uint64 {
	return as.sumDistinctPurgeable(false)
}

func (as *AddressSpace) sumDistinctPurgeable(volatile bool) uint64 {
	as.lock.Lock()
	defer as.lock.Unlock()

	seen := make(map[memmap.VMObject]bool)
	var total uint64
	as.regions.Ascend(func(r *Region) bool {
		anon, ok := r.VMObject().(memmap.Anonymous)
		if !ok || !anon.IsPurgeable() || seen[r.VMObject()] {
			return true
		}
		seen[r.VMObject()] = true
		if anon.IsVolatile() == volatile {
			total += anon.ResidentBytes()
		}
		return true
	})
	return total
}
