package coro

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Handle identifies a task for as long as it is live. Handles are never
// reused within a process; the zero Handle identifies nothing.
type Handle uint64

// InvalidHandle is returned when a task could not be started.
const InvalidHandle Handle = 0

var handleSeq atomic.Uint64

func nextHandle() Handle {
	return Handle(handleSeq.Add(1))
}

// IsValid reports whether h was issued by a scheduler.
func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	return "task-" + strconv.FormatUint(uint64(h), 10)
}

// ParseHandle parses the form produced by String, or a bare number.
func ParseHandle(s string) (Handle, bool) {
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "task-"), 10, 64)
	if err != nil || n == 0 {
		return InvalidHandle, false
	}
	return Handle(n), true
}
