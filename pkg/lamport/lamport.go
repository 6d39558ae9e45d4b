// Package lamport implements the logical clock carried by every log entry.
// Clocks are value types: every update produces a new clock, no clock state
// is ever shared between entries.
package lamport

import (
	"fmt"
	"strings"
)

// Clock is a Lamport timestamp. ID is the writer identifier, usually the
// author's public key. Time only moves forward.
type Clock struct {
	ID   string `json:"id"`
	Time int    `json:"time"`
}

// New returns a clock for the given writer at the given time.
func New(id string, time int) Clock {
	return Clock{ID: id, Time: time}
}

// Tick returns a new clock one step ahead of c.
func (c Clock) Tick() Clock {
	return Clock{ID: c.ID, Time: c.Time + 1}
}

// Merge returns a new clock whose time is the maximum of both clocks.
// The ID of the receiver is kept.
func (c Clock) Merge(other Clock) Clock {
	t := c.Time
	if other.Time > t {
		t = other.Time
	}
	return Clock{ID: c.ID, Time: t}
}

// Defined reports whether the clock carries a writer identifier.
func (c Clock) Defined() bool {
	return c.ID != ""
}

func (c Clock) String() string {
	return fmt.Sprintf("%s:%d", c.ID, c.Time)
}

// Compare orders two clocks by time first and writer ID second.
// It returns -1, 0 or +1.
func Compare(a, b Clock) int {
	if d := a.Time - b.Time; d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}
