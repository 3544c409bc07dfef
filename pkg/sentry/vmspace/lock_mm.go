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
	"gvisor.dev/gvisor/pkg/sync"
)

// mmLock is the memory-manager-wide lock, s_mm_lock in the original source:
// a single global guarding invariants that span every address space in the
// system (here, none of our simulated collaborators actually need
// cross-address-space state, but the lock is still taken at the same call
// sites the original takes it, to preserve the documented lock order
// AddressSpace.lock → PageDirectory.lock → mmLock).
var mmLock sync.Mutex
