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

// Package pagetable defines the page-directory / MMU-programming
// abstraction consumed by the address space manager. Actual page table
// programming is out of scope; this package provides the interface the
// manager calls through, plus one software-only implementation used by
// every test in this module.
package pagetable

import (
	"gvisor.dev/gvisor/pkg/sync"

	"vmspace.dev/vmspace/pkg/hostarch"
)

// AccessFlags describes the permissions a mapping is installed with.
type AccessFlags uint8

const (
	// Read grants read access.
	Read AccessFlags = 1 << iota
	// Write grants write access.
	Write
	// Execute grants execute access.
	Execute
)

// Prot values, matching the traditional mmap(2) PROT_* bit assignment that
// ProtToAccessFlags translates from.
const (
	ProtNone  = 0
	ProtRead  = 1 << 0
	ProtWrite = 1 << 1
	ProtExec  = 1 << 2
)

// ProtToAccessFlags is prot_to_region_access_flags: it converts a mmap(2)
// PROT_* bitmask into the AccessFlags a Region is created with.
func ProtToAccessFlags(prot int) AccessFlags {
	var flags AccessFlags
	if prot&ProtRead != 0 {
		flags |= Read
	}
	if prot&ProtWrite != 0 {
		flags |= Write
	}
	if prot&ProtExec != 0 {
		flags |= Execute
	}
	return flags
}

// Directory is the per-address-space MMU structure a Region maps itself
// into and out of. It corresponds to SerenityOS's PageDirectory and
// guards its own state with a lock distinct from the address space's,
// per the documented lock ordering AddressSpace.lock → PageDirectory.lock.
type Directory interface {
	// Lock returns the lock guarding this directory's MMU state.
	Lock() *sync.RWMutex

	// Map installs page table entries for the given range with the given
	// access flags. flushTLB indicates whether a TLB shootdown should
	// accompany the mapping; it is a no-op here since TLB shootdown is out
	// of scope.
	Map(r hostarch.VirtualRange, access AccessFlags, flushTLB bool) error

	// Unmap tears down page table entries for the given range. It never
	// fails: the software directory simply forgets the mapping.
	Unmap(r hostarch.VirtualRange)

	// Attach records that a region is associated with this directory
	// without installing any page table entries — used for PROT_NONE
	// mappings, which reserve VA space without being backed by translations.
	Attach(r hostarch.VirtualRange)
}

// TryCreateForUserspace allocates a new user-space page directory,
// mirroring PageDirectory::try_create_for_userspace. It always succeeds in
// this software-only implementation; a real MMU layer could fail with
// linuxerr.ENOMEM under memory pressure, which is why the signature returns
// an error.
func TryCreateForUserspace() (Directory, error) {
	return newSoftwareDirectory(), nil
}
