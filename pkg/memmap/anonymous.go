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

package memmap

import (
	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// AnonymousVMObject is a software-only anonymous VMObject: it tracks size
// and a resident-byte counter but never actually allocates physical pages,
// since physical memory allocation policy is out of scope for the address
// space manager.
//
// resident is atomic rather than lock-protected because a single
// AnonymousVMObject may be shared by Regions belonging to address spaces
// that do not share a lock.
type AnonymousVMObject struct {
	size       uint64
	strategy   AllocationStrategy
	purgeable  bool
	volatile   atomicbitops.Bool
	resident   atomicbitops.Uint64
}

var _ Anonymous = (*AnonymousVMObject)(nil)

// NewAnonymousVMObject creates an anonymous VMObject of the given size
// under the given allocation strategy, mirroring
// AnonymousVMObject::try_create_with_size.
func NewAnonymousVMObject(size uint64, strategy AllocationStrategy) *AnonymousVMObject {
	obj := &AnonymousVMObject{size: size, strategy: strategy}
	if strategy == AllocateNow {
		obj.resident.Store(size)
	}
	return obj
}

// NewPurgeableAnonymousVMObject creates an anonymous VMObject that
// participates in purgeable/volatile accounting.
func NewPurgeableAnonymousVMObject(size uint64, strategy AllocationStrategy) *AnonymousVMObject {
	obj := NewAnonymousVMObject(size, strategy)
	obj.purgeable = true
	return obj
}

// Size implements VMObject.Size.
func (o *AnonymousVMObject) Size() uint64 { return o.size }

// IsAnonymous implements VMObject.IsAnonymous.
func (o *AnonymousVMObject) IsAnonymous() bool { return true }

// IsInode implements VMObject.IsInode.
func (o *AnonymousVMObject) IsInode() bool { return false }

// IsPurgeable implements Anonymous.IsPurgeable.
func (o *AnonymousVMObject) IsPurgeable() bool { return o.purgeable }

// IsVolatile implements Anonymous.IsVolatile.
func (o *AnonymousVMObject) IsVolatile() bool { return o.volatile.Load() }

// SetVolatile implements Anonymous.SetVolatile.
func (o *AnonymousVMObject) SetVolatile(volatile bool) { o.volatile.Store(volatile) }

// ResidentBytes implements Anonymous.ResidentBytes.
func (o *AnonymousVMObject) ResidentBytes() uint64 { return o.resident.Load() }

// Touch implements Anonymous.Touch.
func (o *AnonymousVMObject) Touch(n uint64) {
	if got := o.resident.Add(n); got > o.size {
		o.resident.Store(o.size)
	}
}
