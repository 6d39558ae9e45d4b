// Package sorting provides the total orders a log can present its entries
// in. Every comparator returns -1, 0 or +1 and an error; errors only occur
// when a guard refuses the comparison.
package sorting

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/lamport"
)

// CompareFn orders two entries.
type CompareFn func(a, b *entry.Entry) (int, error)

// ErrZeroTimeEqualID is surfaced by the NoZeroes guard: two entries with
// clock time zero and the same writer ID cannot be ordered and indicate
// forged or corrupt data.
var ErrZeroTimeEqualID = errors.New("encountered two entries with clock time 0 and the same clock id")

// SortByClocks orders by Lamport clock and delegates ties to resolve.
func SortByClocks(a, b *entry.Entry, resolve CompareFn) (int, error) {
	if d := lamport.Compare(a.Clock, b.Clock); d != 0 {
		return d, nil
	}
	return resolve(a, b)
}

// SortByClockID orders by the clock's writer ID and delegates ties to
// resolve.
func SortByClockID(a, b *entry.Entry, resolve CompareFn) (int, error) {
	if d := strings.Compare(a.Clock.ID, b.Clock.ID); d != 0 {
		return d, nil
	}
	return resolve(a, b)
}

// SortByEntryHash orders by content address. It is the terminal
// tiebreaker: distinct entries never compare equal.
func SortByEntryHash(a, b *entry.Entry) (int, error) {
	return strings.Compare(blockio.CIDString(a.Hash), blockio.CIDString(b.Hash)), nil
}

// LastWriteWins is the default order: clock, then content address.
func LastWriteWins(a, b *entry.Entry) (int, error) {
	return SortByClocks(a, b, SortByEntryHash)
}

// NoZeroes wraps a comparator with a guard that refuses to order two
// unauthored entries: both at clock time zero with the same writer ID.
func NoZeroes(fn CompareFn) CompareFn {
	return func(a, b *entry.Entry) (int, error) {
		if a.Clock.Time == 0 && b.Clock.Time == 0 && a.Clock.ID == b.Clock.ID {
			return 0, fmt.Errorf("%w (id %q): the log may contain forged entries",
				ErrZeroTimeEqualID, a.Clock.ID)
		}
		return fn(a, b)
	}
}

// Sort stably sorts entries ascending with the given comparator. The first
// comparator error aborts the ordering and is returned.
func Sort(fn CompareFn, entries []*entry.Entry) error {
	var sortErr error

	sort.SliceStable(entries, func(i, j int) bool {
		d, err := fn(entries[i], entries[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return d < 0
	})

	return sortErr
}

// Reverse flips a slice in place.
func Reverse(entries []*entry.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
