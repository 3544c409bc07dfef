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
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// addressSpaceMutex is sync.Mutex with the lock-order validator attached,
// hand-authored in the same shape gVisor's own build generates for its
// per-purpose mutexes (see e.g. pkg/sentry/mm/metadata_mutex.go); this
// module does not run that generator, but the runtime-facing validator
// calls (AddGLock/DelGLock) are the same ones the generated code makes.
//
// It guards AddressSpace.regions and every Region's tree membership. Its
// position in the documented lock order is first:
// AddressSpace.lock → PageDirectory.lock → s_mm_lock.
type addressSpaceMutex struct {
	mu sync.Mutex
}

var addressSpaceMutexClass *locking.MutexClass

func init() {
	addressSpaceMutexClass = locking.NewMutexClass(reflect.TypeOf(addressSpaceMutex{}), nil)
}

// Lock locks m.
// +checklocksignore
func (m *addressSpaceMutex) Lock() {
	locking.AddGLock(addressSpaceMutexClass, -1)
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *addressSpaceMutex) Unlock() {
	locking.DelGLock(addressSpaceMutexClass, -1)
	m.mu.Unlock()
}
