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

package hostarch

import (
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// VirtualRange is a half-open interval [Base, Base+Size) of virtual
// addresses. Base must be page-aligned and Size a positive multiple of
// PageSize for a well-formed range.
type VirtualRange struct {
	base VirtualAddress
	size uint64
}

// NewVirtualRange returns the range [base, base+size).
func NewVirtualRange(base VirtualAddress, size uint64) VirtualRange {
	return VirtualRange{base: base, size: size}
}

// Base returns the range's base address.
func (r VirtualRange) Base() VirtualAddress {
	return r.base
}

// Size returns the range's length in bytes.
func (r VirtualRange) Size() uint64 {
	return r.size
}

// End returns Base()+Size().
func (r VirtualRange) End() VirtualAddress {
	return r.base.Offset(r.size)
}

// IsValid returns true if r is well-formed: page-aligned base, positive
// page-multiple size.
func (r VirtualRange) IsValid() bool {
	return r.size > 0 && r.base.IsPageAligned() && r.size%PageSize == 0
}

// ContainsAddress returns true if addr lies in [Base, End).
func (r VirtualRange) ContainsAddress(addr VirtualAddress) bool {
	return addr >= r.base && addr < r.End()
}

// ContainsRange returns true if other is entirely within r.
func (r VirtualRange) ContainsRange(other VirtualRange) bool {
	if other.size == 0 {
		return r.ContainsAddress(other.base)
	}
	return other.base >= r.base && other.End() <= r.End()
}

// Contains returns true if addr, addr+size lies entirely within r.
func (r VirtualRange) Contains(addr VirtualAddress, size uint64) bool {
	return r.ContainsRange(NewVirtualRange(addr, size))
}

// Intersects returns true if r and other share at least one address.
func (r VirtualRange) Intersects(other VirtualRange) bool {
	return r.base < other.End() && other.base < r.End()
}

// Intersect returns the (possibly empty) overlap of r and other.
func (r VirtualRange) Intersect(other VirtualRange) VirtualRange {
	base := r.base
	if other.base > base {
		base = other.base
	}
	end := r.End()
	if other.End() < end {
		end = other.End()
	}
	if end <= base {
		return VirtualRange{}
	}
	return NewVirtualRange(base, end.Get()-base.Get())
}

// Carve returns the residual pieces of r after removing inner: r \ inner.
// Callers that rely on an exact split pass an inner that intersects r.
//
//   - inner fully contains r: returns nil.
//   - inner touches only one edge of r: returns one range, the untouched
//     remainder.
//   - otherwise: returns two ranges, left remainder first.
//
// Carve never returns a zero-size range.
func (r VirtualRange) Carve(inner VirtualRange) []VirtualRange {
	var out []VirtualRange
	if inner.base > r.base {
		out = append(out, NewVirtualRange(r.base, inner.base.Get()-r.base.Get()))
	}
	if inner.End() < r.End() {
		out = append(out, NewVirtualRange(inner.End(), r.End().Get()-inner.End().Get()))
	}
	return out
}

// ExpandToPageBoundaries returns the range obtained by rounding addr down
// to a page boundary and addr+size up to a page boundary. It fails with
// linuxerr.EOVERFLOW if either bound overflows.
func ExpandToPageBoundaries(addr uint64, size uint64) (VirtualRange, error) {
	end := addr + size
	if end < addr {
		return VirtualRange{}, linuxerr.EOVERFLOW
	}
	alignedBase := addr &^ uint64(PageMask)
	alignedEnd, ok := PageRoundUp(end)
	if !ok {
		return VirtualRange{}, linuxerr.EOVERFLOW
	}
	return NewVirtualRange(VirtualAddress(alignedBase), alignedEnd-alignedBase), nil
}
