// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"strconv"
	"time"

	"code.hybscloud.com/atomix"
)

// FiberID identifies a fiber within a [Runtime].
// StartTime is the creation time in Unix milliseconds; Seq is the
// runtime-wide monotonically increasing sequence number.
type FiberID struct {
	StartTime int64
	Seq       uint64
}

// NoFiber is the identity used for interruptions that do not originate
// from a fiber (for example the cancel function returned by [Run]).
var NoFiber = FiberID{}

// IsNone reports whether id is [NoFiber].
func (id FiberID) IsNone() bool { return id == NoFiber }

func (id FiberID) String() string {
	if id.IsNone() {
		return "#none"
	}
	return "#" + strconv.FormatUint(id.Seq, 10)
}

// fiberIDs is the monotonic fiber sequence owned by a Runtime.
type fiberIDs struct {
	seq atomix.Uint64
}

// next returns the next fiber identity.
func (s *fiberIDs) next() FiberID {
	return FiberID{StartTime: time.Now().UnixMilli(), Seq: s.seq.Add(1)}
}
