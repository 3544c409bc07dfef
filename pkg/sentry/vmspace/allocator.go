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
	"encoding/binary"

	"gvisor.dev/gvisor/pkg/log"
	gvrand "gvisor.dev/gvisor/pkg/rand"

	"vmspace.dev/vmspace/pkg/hostarch"
)

// maxRandomizationAttempts bounds allocateRandomized's search before it
// falls back to allocateAnywhere, matching AddressSpace::try_allocate_randomized's
// maximum_randomization_attempts.
const maxRandomizationAttempts = 1000

// RandSource abstracts get_fast_random<T>() so allocateRandomized is
// deterministically testable without pulling a concrete PRNG into every
// test.
type RandSource interface {
	// Uint64 returns a pseudorandom 64-bit value.
	Uint64() uint64
}

// gvisorRandSource is the default RandSource, backed by
// gvisor.dev/gvisor/pkg/rand's getrandom(2)-based reader.
type gvisorRandSource struct{}

// Uint64 implements RandSource.
func (gvisorRandSource) Uint64() uint64 {
	var b [8]byte
	if _, err := gvrand.Read(b[:]); err != nil {
		// gvrand.Read only fails if getrandom(2) itself fails, which is
		// unrecoverable for anything relying on kernel randomness; log and
		// fall back to a fixed value rather than panicking mid-allocation.
		log.Warningf("vmspace: get_fast_random failed, degrading to a fixed value: %v", err)
		return 0
	}
	return binary.LittleEndian.Uint64(b[:])
}

// DefaultRandSource is the RandSource used by AddressSpaces created without
// an explicit override.
var DefaultRandSource RandSource = gvisorRandSource{}

// allocateAnywhere implements AddressSpace::try_allocate_anywhere: it scans
// regions in ascending base order for a gap of at least size+alignment,
// aligning the returned range's base up to alignment. If no gap between
// regions qualifies, it returns the whole trailing gap from the end of the
// last region to the end of totalRange, neither aligned nor trimmed to size
// and not checked against size.
func (as *AddressSpace) allocateAnywhere(size, alignment uint64) (hostarch.VirtualRange, error) {
	if size == 0 {
		return hostarch.VirtualRange{}, ErrInvalidArgument
	}
	sum := size + alignment
	if sum < size {
		return hostarch.VirtualRange{}, ErrOverflow
	}

	windowStart := as.totalRange.Base()
	var result hostarch.VirtualRange
	found := false

	as.regions.Ascend(func(r *Region) bool {
		if windowStart == r.Range().Base() {
			windowStart = r.Range().End()
			return true
		}
		available := hostarch.NewVirtualRange(windowStart, r.Range().Base().Get()-windowStart.Get())
		windowStart = r.Range().End()
		if available.Size() < sum {
			return true
		}
		alignedBase, ok := hostarch.RoundUpPow2(available.Base().Get(), alignment)
		if !ok {
			return true
		}
		result = hostarch.NewVirtualRange(hostarch.VirtualAddress(alignedBase), size)
		found = true
		return false
	})
	if found {
		return result, nil
	}

	trailing := hostarch.NewVirtualRange(windowStart, as.totalRange.End().Get()-windowStart.Get())
	if as.totalRange.ContainsRange(trailing) {
		return trailing, nil
	}

	log.Warningf("vmspace: allocateAnywhere failed: size=%#x alignment=%#x", size, alignment)
	return hostarch.VirtualRange{}, ErrNoMemory
}

// allocateSpecific implements AddressSpace::try_allocate_specific: it
// checks that [base, base+size) lies within totalRange and does not
// intersect the predecessor or successor region.
func (as *AddressSpace) allocateSpecific(base hostarch.VirtualAddress, size uint64) (hostarch.VirtualRange, error) {
	if size == 0 {
		return hostarch.VirtualRange{}, ErrInvalidArgument
	}
	candidate := hostarch.NewVirtualRange(base, size)
	if !as.totalRange.ContainsRange(candidate) {
		return hostarch.VirtualRange{}, ErrNoMemory
	}

	pred, ok := as.regions.FindLargestNotAbove(base)
	if !ok {
		if succ, ok := as.regions.successor(base); ok && succ.Range().Intersects(candidate) {
			return hostarch.VirtualRange{}, ErrNoMemory
		}
		return candidate, nil
	}
	if pred.Range().Intersects(candidate) {
		return hostarch.VirtualRange{}, ErrNoMemory
	}

	succ, ok := as.regions.successor(pred.Range().Base())
	if !ok {
		return candidate, nil
	}
	if succ.Range().Intersects(candidate) {
		return hostarch.VirtualRange{}, ErrNoMemory
	}
	return candidate, nil
}

// allocateRandomized implements AddressSpace::try_allocate_randomized: up
// to maxRandomizationAttempts tries of a random, alignment-rounded address
// within totalRange, falling back to allocateAnywhere on exhaustion.
func (as *AddressSpace) allocateRandomized(size, alignment uint64) (hostarch.VirtualRange, error) {
	if size == 0 {
		return hostarch.VirtualRange{}, ErrInvalidArgument
	}

	for i := 0; i < maxRandomizationAttempts; i++ {
		raw := as.rand.Uint64() % as.totalRange.End().Get()
		aligned, ok := hostarch.RoundUpPow2(raw, alignment)
		if !ok {
			continue
		}
		addr := hostarch.VirtualAddress(aligned)
		if !as.totalRange.Contains(addr, size) {
			continue
		}
		if r, err := as.allocateSpecific(addr, size); err == nil {
			return r, nil
		}
	}
	return as.allocateAnywhere(size, alignment)
}

// allocateRange implements AddressSpace::try_allocate_range: it masks hint
// to a page boundary and rounds size up to a page multiple, then dispatches
// to allocateAnywhere (if hint is null) or allocateSpecific.
func (as *AddressSpace) allocateRange(hint hostarch.VirtualAddress, size, alignment uint64) (hostarch.VirtualRange, error) {
	hint = hint.Mask(hostarch.PageMask)
	rounded, ok := hostarch.PageRoundUp(size)
	if !ok {
		return hostarch.VirtualRange{}, ErrOverflow
	}
	if hint.IsNull() {
		return as.allocateAnywhere(rounded, alignment)
	}
	return as.allocateSpecific(hint, rounded)
}
