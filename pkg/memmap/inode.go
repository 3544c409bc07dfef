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

// InodeVMObject is a minimal file-backed VMObject: enough to exercise the
// amount_clean_inode accounting scan without a real filesystem underneath
// it (filesystem I/O itself is out of scope for this package).
type InodeVMObject struct {
	size  uint64
	clean uint64
}

var _ Inode = (*InodeVMObject)(nil)

// NewInodeVMObject creates an inode-backed VMObject of the given size, with
// clean initially reporting the entire object as clean (unmodified).
func NewInodeVMObject(size uint64) *InodeVMObject {
	return &InodeVMObject{size: size, clean: size}
}

// Size implements VMObject.Size.
func (o *InodeVMObject) Size() uint64 { return o.size }

// IsAnonymous implements VMObject.IsAnonymous.
func (o *InodeVMObject) IsAnonymous() bool { return false }

// IsInode implements VMObject.IsInode.
func (o *InodeVMObject) IsInode() bool { return true }

// AmountClean implements Inode.AmountClean.
func (o *InodeVMObject) AmountClean() uint64 { return o.clean }

// MarkDirty reduces the clean-byte count by n, simulating a write that the
// accounting scan should no longer count as clean.
func (o *InodeVMObject) MarkDirty(n uint64) {
	if n > o.clean {
		n = o.clean
	}
	o.clean -= n
}
