package ouroboroslog

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/sorting"
)

// ErrIteratorBoundNotFound is returned when an iterator bound names a
// hash the log does not hold.
var ErrIteratorBoundNotFound = errors.New("iterator bound not found in the log")

// traverse walks the DAG backwards from the given roots in sorted BFS
// order. amount bounds the number of emitted entries (negative means all);
// endHash, when non-empty, stops the walk after emitting that entry. Only
// materialized entries are visited; missing parents end their branch.
//
// traverse reads the entry index, which is internally synchronized, and
// must not take the log lock: Append calls it while holding it.
func (l *Log) traverse(rootEntries []*entry.Entry, amount int, endHash string) (*entry.OrderedMap, error) {
	stack := append([]*entry.Entry(nil), rootEntries...)
	if err := sorting.Sort(l.sortFn, stack); err != nil {
		return nil, err
	}
	sorting.Reverse(stack)

	traversed := make(map[string]struct{})
	result := entry.NewOrderedMap()
	count := 0

	for len(stack) > 0 && (amount < 0 || count < amount) {
		e := stack[0]
		stack = stack[1:]

		key := e.Hash.KeyString()
		result.Set(key, e)
		traversed[key] = struct{}{}
		count++

		if endHash != "" && endHash == key {
			break
		}

		for _, c := range e.Next {
			parent, ok := l.entryIndex.Get(c.KeyString())
			if !ok {
				continue
			}
			if _, ok := traversed[parent.Hash.KeyString()]; ok {
				continue
			}

			traversed[parent.Hash.KeyString()] = struct{}{}
			stack = append([]*entry.Entry{parent}, stack...)
			if err := sorting.Sort(l.sortFn, stack); err != nil {
				return nil, err
			}
			sorting.Reverse(stack)
		}
	}

	return result, nil
}

// IteratorOptions bound the window an iterator yields.
//
// The start of the window is LTE (inclusive list of hashes), LT (exclusive:
// traversal starts from the named entries' parents) or, when both are nil,
// the current heads. The end is GTE (inclusive) or GT (exclusive). Amount
// caps the number of yielded entries; nil means no cap.
type IteratorOptions struct {
	GT     cid.Cid
	GTE    cid.Cid
	LT     []cid.Cid
	LTE    []cid.Cid
	Amount *int
}

// Iterator writes the selected entries to output in traversal order, then
// closes it. The channel is written synchronously; run Iterator in its own
// goroutine when consuming lazily.
func (l *Log) Iterator(options *IteratorOptions, output chan<- *entry.Entry) error {
	if options == nil {
		options = &IteratorOptions{}
	}
	if output == nil {
		return errors.New("no output channel given")
	}
	defer close(output)

	amount := -1
	if options.Amount != nil {
		if *options.Amount == 0 {
			return nil
		}
		amount = *options.Amount
	}

	l.lock.RLock()
	start := l.headsIndex.Slice()
	l.lock.RUnlock()

	if options.LTE != nil {
		start = nil
		for _, c := range options.LTE {
			e, ok := l.Get(c)
			if !ok {
				return fmt.Errorf("%w: lte %q", ErrIteratorBoundNotFound, c.String())
			}
			start = append(start, e)
		}
	} else if options.LT != nil {
		// lt is exclusive: the window begins at the parents of the
		// named entries
		start = nil
		for _, c := range options.LT {
			e, ok := l.Get(c)
			if !ok {
				return fmt.Errorf("%w: lt %q", ErrIteratorBoundNotFound, c.String())
			}
			for _, n := range e.Next {
				parent, ok := l.Get(n)
				if !ok {
					return fmt.Errorf("%w: lt parent %q", ErrIteratorBoundNotFound, n.String())
				}
				start = append(start, parent)
			}
		}
	}

	endHash := ""
	if options.GTE.Defined() {
		endHash = options.GTE.KeyString()
	} else if options.GT.Defined() {
		endHash = options.GT.KeyString()
	}

	count := -1
	if endHash == "" && amount > -1 {
		count = amount
	}

	result, err := l.traverse(start, count, endHash)
	if err != nil {
		return fmt.Errorf("iterator failed: %w", err)
	}

	entries := result.Slice()

	// gt is exclusive: the bound itself was emitted last, pop it
	if options.GT.Defined() && len(entries) > 0 {
		entries = entries[:len(entries)-1]
	}

	// with a lower bound the amount counts backwards from it
	if (options.GT.Defined() || options.GTE.Defined()) && amount > -1 && amount < len(entries) {
		entries = entries[len(entries)-amount:]
	}

	for _, e := range entries {
		output <- e
	}

	return nil
}
