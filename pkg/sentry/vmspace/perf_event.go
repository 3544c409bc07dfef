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
	"gvisor.dev/gvisor/pkg/log"

	"vmspace.dev/vmspace/pkg/hostarch"
)

// PerfEventEmitter is the performance event sink UnmapRange reports to,
// corresponding to PerformanceManager::add_unmap_perf_event. Performance
// counter infrastructure itself is out of scope; this is the interface the
// manager calls through.
type PerfEventEmitter interface {
	// UnmapPerfEvent is emitted once per successful UnmapRange call that
	// unmaps at least one region, for the full expanded range affected. A
	// call whose range intersects no region emits nothing.
	UnmapPerfEvent(r hostarch.VirtualRange)
}

// logPerfEventEmitter is the default PerfEventEmitter: it has no counter
// infrastructure to report to, so it logs at debug level instead, matching
// the dbgln/dmesgln call sites the original source uses around the same
// operations.
type logPerfEventEmitter struct{}

// UnmapPerfEvent implements PerfEventEmitter.
func (logPerfEventEmitter) UnmapPerfEvent(r hostarch.VirtualRange) {
	log.Debugf("vmspace: unmap perf event: base=%#x size=%#x", r.Base().Get(), r.Size())
}

// DefaultPerfEventEmitter is the PerfEventEmitter used by AddressSpaces
// created without an explicit override.
var DefaultPerfEventEmitter PerfEventEmitter = logPerfEventEmitter{}
