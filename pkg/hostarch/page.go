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

// Package hostarch provides page-granular virtual address and range
// arithmetic for a single hard-coded 4K page size, in the style of gVisor's
// pkg/hostarch but scoped to what an address-space manager needs.
package hostarch

// PageShift is the binary log of PageSize.
const PageShift = 12

// PageSize is the size in bytes of a page.
const PageSize = 1 << PageShift

// PageMask is the set of bits that must be zero in a page-aligned quantity.
const PageMask = PageSize - 1

// RoundUpPow2 rounds addr up to the nearest multiple of alignment, which
// must be a power of two. ok is false if rounding up overflowed.
func RoundUpPow2(addr uint64, alignment uint64) (rounded uint64, ok bool) {
	mask := alignment - 1
	rounded = (addr + mask) &^ mask
	return rounded, rounded >= addr
}

// PageRoundUp rounds size up to the nearest multiple of PageSize. ok is
// false if rounding up overflowed.
func PageRoundUp(size uint64) (rounded uint64, ok bool) {
	return RoundUpPow2(size, PageSize)
}
