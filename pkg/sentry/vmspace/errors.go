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

// Package vmspace implements a per-process virtual address space manager:
// the ordered set of mapped regions that make up one process's user-mode
// virtual memory, allocation of virtual address ranges, and the split/merge
// semantics of mapping and unmapping.
package vmspace

import (
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// Errors returned by this package are the same errno sentinels the
// original implementation (SerenityOS's AddressSpace.cpp) returns, so that
// callers can compare with ==.
var (
	// ErrInvalidArgument is returned for a zero size, a non-page-aligned
	// value where alignment is required, or an offset past the end of a
	// backing object.
	ErrInvalidArgument = linuxerr.EINVAL

	// ErrOverflow is returned when rounding a size or computing an end
	// address would overflow.
	ErrOverflow = linuxerr.EOVERFLOW

	// ErrOutOfMemory is returned when page directory or region allocation
	// itself fails.
	ErrOutOfMemory = linuxerr.ENOMEM

	// ErrNoMemory is returned when no suitable virtual address window can
	// be found. It shares a value with ErrOutOfMemory, matching the
	// original source, which returns ENOMEM for both; this sharing is
	// documented in SPEC_FULL.md.
	ErrNoMemory = linuxerr.ENOMEM

	// ErrBadAddress is returned when an operation targets a range outside
	// the user portion of the address space.
	ErrBadAddress = linuxerr.EFAULT

	// ErrNotPermitted is returned when unmapping targets a region that is
	// not eligible for user-requested unmapping (not is_mmap).
	ErrNotPermitted = linuxerr.EPERM
)
