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

// VirtualAddress is a single address in a process's user-mode virtual
// address space.
type VirtualAddress uint64

// Get returns the raw numeric value of v.
func (v VirtualAddress) Get() uint64 {
	return uint64(v)
}

// Offset returns v+n.
func (v VirtualAddress) Offset(n uint64) VirtualAddress {
	return v + VirtualAddress(n)
}

// Mask clears the bits of v set in mask, e.g. Mask(PageMask) rounds down to
// the containing page.
func (v VirtualAddress) Mask(mask uint64) VirtualAddress {
	return v &^ VirtualAddress(mask)
}

// IsPageAligned returns true if v's low PageShift bits are zero.
func (v VirtualAddress) IsPageAligned() bool {
	return v&PageMask == 0
}

// IsNull returns true if v is the zero address.
func (v VirtualAddress) IsNull() bool {
	return v == 0
}
