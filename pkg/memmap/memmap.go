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

// Package memmap defines the backing-memory-object abstraction consumed by
// the address space manager: a page provider that may be shared by more
// than one Region, in the manner of gVisor's pkg/sentry/memmap.Mappable and
// SerenityOS's VMObject.
package memmap

// AllocationStrategy selects how an AnonymousVMObject's pages are reserved
// at creation time, mirroring SerenityOS's Kernel::AllocationStrategy.
type AllocationStrategy int

const (
	// Reserve commits backing pages up front.
	Reserve AllocationStrategy = iota
	// AllocateNow allocates and zeroes pages immediately.
	AllocateNow
)

// VMObject is a page provider that may back one or more Regions.
type VMObject interface {
	// Size returns the object's size in bytes.
	Size() uint64

	// IsAnonymous returns true if the object is anonymous (not backed by a
	// file).
	IsAnonymous() bool

	// IsInode returns true if the object is backed by an inode.
	IsInode() bool
}

// Anonymous is implemented by anonymous (non-file-backed) VMObjects.
type Anonymous interface {
	VMObject

	// IsPurgeable returns true if the object's pages may be discarded under
	// memory pressure while volatile.
	IsPurgeable() bool

	// IsVolatile returns true if the object is currently eligible for
	// purging.
	IsVolatile() bool

	// SetVolatile changes the object's volatility.
	SetVolatile(volatile bool)

	// ResidentBytes returns the number of bytes currently backed by
	// physical pages.
	ResidentBytes() uint64

	// Touch marks n additional bytes resident, as if a page fault had
	// populated them. It exists so tests and the accounting scan have
	// something nonzero to observe; the real fault path is out of scope.
	Touch(n uint64)
}

// Inode is implemented by inode-backed (file-backed) VMObjects.
type Inode interface {
	VMObject

	// AmountClean returns the number of bytes backed by clean (unmodified,
	// reclaimable-without-writeback) pages.
	AmountClean() uint64
}
