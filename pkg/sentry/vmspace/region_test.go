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

func testRange(base uint64, size uint64) hostarch.VirtualRange {
	return hostarch.NewVirtualRange(hostarch.VirtualAddress(base), size)
}

func TestRegionShouldCow(t *testing.T) {
	obj := memmap.NewAnonymousVMObject(4*hostarch.PageSize, memmap.Reserve)
	r := newRegion(testRange(0x10000, 4*hostarch.PageSize), obj, 0, "test", pagetable.Read, true, false)

	if r.ShouldCow(0) || r.ShouldCow(1) || r.ShouldCow(2) || r.ShouldCow(3) {
		t.Fatalf("freshly created region should have no cow pages set")
	}

	r.SetShouldCow(1, true)
	r.SetShouldCow(3, true)
	if !r.ShouldCow(1) || !r.ShouldCow(3) {
		t.Fatalf("SetShouldCow(_, true) did not stick")
	}
	if r.ShouldCow(0) || r.ShouldCow(2) {
		t.Fatalf("SetShouldCow set unrelated pages")
	}

	r.SetShouldCow(1, false)
	if r.ShouldCow(1) {
		t.Fatalf("SetShouldCow(_, false) did not clear the bit")
	}
	if !r.ShouldCow(3) {
		t.Fatalf("clearing page 1 should not affect page 3")
	}
}

func TestRegionAmountResidentAnonymous(t *testing.T) {
	obj := memmap.NewAnonymousVMObject(4*hostarch.PageSize, memmap.Reserve)
	r := newRegion(testRange(0x10000, 4*hostarch.PageSize), obj, 0, "", pagetable.Read, true, false)

	if got := r.AmountResident(); got != 0 {
		t.Fatalf("AmountResident() = %d, want 0 before any pages are touched", got)
	}

	obj.Touch(2 * hostarch.PageSize)
	if got := r.AmountResident(); got != 2*hostarch.PageSize {
		t.Fatalf("AmountResident() = %d, want %d", got, 2*hostarch.PageSize)
	}
}

func TestRegionAmountResidentInode(t *testing.T) {
	obj := memmap.NewInodeVMObject(4 * hostarch.PageSize)
	r := newRegion(testRange(0x10000, 4*hostarch.PageSize), obj, 0, "", pagetable.Read, true, false)

	if got := r.AmountResident(); got != 4*hostarch.PageSize {
		t.Fatalf("AmountResident() = %d, want full range size for inode-backed regions", got)
	}
}

func TestRegionAmountDirtyAndShared(t *testing.T) {
	obj := memmap.NewAnonymousVMObject(hostarch.PageSize, memmap.AllocateNow)

	private := newRegion(testRange(0x10000, hostarch.PageSize), obj, 0, "", pagetable.Write, true, false)
	if got := private.AmountDirty(); got != hostarch.PageSize {
		t.Fatalf("private region AmountDirty() = %d, want %d", got, hostarch.PageSize)
	}
	if got := private.AmountShared(); got != 0 {
		t.Fatalf("private region AmountShared() = %d, want 0", got)
	}

	shared := newRegion(testRange(0x20000, hostarch.PageSize), obj, 0, "", pagetable.Write, true, true)
	if got := shared.AmountDirty(); got != 0 {
		t.Fatalf("shared region AmountDirty() = %d, want 0", got)
	}
	if got := shared.AmountShared(); got != hostarch.PageSize {
		t.Fatalf("shared region AmountShared() = %d, want %d", got, hostarch.PageSize)
	}
}

func TestRegionCloneAttributesInto(t *testing.T) {
	obj := memmap.NewAnonymousVMObject(hostarch.PageSize, memmap.Reserve)
	src := newRegion(testRange(0x10000, hostarch.PageSize), obj, 0, "stack", pagetable.Read|pagetable.Write, true, true)
	src.SetMmap(true)
	src.SetStack(true)

	dst := newRegion(testRange(0x20000, hostarch.PageSize), obj, 0, "", pagetable.Read, false, false)
	src.cloneAttributesInto(dst)

	if dst.Name() != "stack" {
		t.Fatalf("Name() = %q, want %q", dst.Name(), "stack")
	}
	if !dst.IsCacheable() || !dst.IsShared() || !dst.IsMmap() || !dst.IsStack() {
		t.Fatalf("cloneAttributesInto did not carry every flag: %+v", dst)
	}
}
