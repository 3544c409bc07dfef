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

package pagetable

import (
	"gvisor.dev/gvisor/pkg/sync"

	"vmspace.dev/vmspace/pkg/hostarch"
)

// mapping records one installed translation, for introspection in tests.
type mapping struct {
	access   AccessFlags
	attached bool
}

// SoftwareDirectory is a page directory that records mappings in a plain
// map instead of programming real MMU hardware. It is not production code:
// physical page table programming is out of scope for the address space
// manager. Every test in this module runs against a SoftwareDirectory.
type SoftwareDirectory struct {
	mu       sync.RWMutex
	mappings map[hostarch.VirtualAddress]mapping
}

var _ Directory = (*SoftwareDirectory)(nil)

func newSoftwareDirectory() *SoftwareDirectory {
	return &SoftwareDirectory{mappings: make(map[hostarch.VirtualAddress]mapping)}
}

// Lock implements Directory.Lock.
func (d *SoftwareDirectory) Lock() *sync.RWMutex {
	return &d.mu
}

// Map implements Directory.Map.
func (d *SoftwareDirectory) Map(r hostarch.VirtualRange, access AccessFlags, flushTLB bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mappings[r.Base()] = mapping{access: access}
	return nil
}

// Unmap implements Directory.Unmap.
func (d *SoftwareDirectory) Unmap(r hostarch.VirtualRange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mappings, r.Base())
}

// Attach implements Directory.Attach.
func (d *SoftwareDirectory) Attach(r hostarch.VirtualRange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mappings[r.Base()] = mapping{attached: true}
}

// IsMapped reports whether base currently has an installed or attached
// translation. It exists solely so tests can assert on Map/Unmap/Attach
// side effects.
func (d *SoftwareDirectory) IsMapped(base hostarch.VirtualAddress) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.mappings[base]
	return ok
}

// Len returns the number of currently-installed mappings.
func (d *SoftwareDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.mappings)
}
