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
	"fmt"
	"io"

	"vmspace.dev/vmspace/pkg/pagetable"
)

// DumpRegions writes one line per region, in ascending base order, to w:
// its range, access flags, and name. It corresponds to
// AddressSpace::dump_regions in the original source, a debugging aid not
// carried over by the distilled specification but useful enough to keep.
func (as *AddressSpace) DumpRegions(w io.Writer) error {
	as.lock.Lock()
	defer as.lock.Unlock()

	if _, err := fmt.Fprintf(w, "%-16s %-16s %-6s %s\n", "BEGIN", "END", "ACCESS", "NAME"); err != nil {
		return err
	}

	var writeErr error
	as.regions.Ascend(func(r *Region) bool {
		_, writeErr = fmt.Fprintf(w, "%016x %016x %-6s %s\n",
			r.Range().Base().Get(), r.Range().End().Get(), accessString(r.Access()), r.Name())
		return writeErr == nil
	})
	return writeErr
}

func accessString(access pagetable.AccessFlags) string {
	buf := [3]byte{'-', '-', '-'}
	if access&pagetable.Read != 0 {
		buf[0] = 'r'
	}
	if access&pagetable.Write != 0 {
		buf[1] = 'w'
	}
	if access&pagetable.Execute != 0 {
		buf[2] = 'x'
	}
	return string(buf[:])
}
