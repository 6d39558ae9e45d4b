package ouroboroslog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/entry"
	"github.com/i5heu/ouroboros-log/pkg/identity"
)

// wireSnapshot is the serialized snapshot: id, head entries and values,
// each entry with its content address attached.
type wireSnapshot struct {
	ID     string            `json:"id"`
	Heads  []json.RawMessage `json:"heads"`
	Values []json.RawMessage `json:"values"`
}

func marshalEntries(entries []*entry.Entry) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		data, err := e.MarshalJSONWithHash()
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func unmarshalEntries(raw []json.RawMessage) ([]*entry.Entry, error) {
	out := make([]*entry.Entry, 0, len(raw))
	for _, data := range raw {
		var e entry.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		if !entry.IsEntry(&e) {
			return nil, ErrEntriesNotValid
		}
		out = append(out, &e)
	}
	return out, nil
}

// SaveSnapshot writes the full materialized log state to w as
// xz-compressed JSON. The snapshot is self-contained; restoring it does
// not touch the block store.
func (l *Log) SaveSnapshot(w io.Writer) error {
	snapshot, err := l.ToSnapshot()
	if err != nil {
		return err
	}

	heads, err := marshalEntries(snapshot.Heads)
	if err != nil {
		return err
	}
	values, err := marshalEntries(snapshot.Values)
	if err != nil {
		return err
	}

	xzw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open snapshot writer: %w", err)
	}

	if err := json.NewEncoder(xzw).Encode(wireSnapshot{
		ID:     snapshot.ID,
		Heads:  heads,
		Values: values,
	}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return xzw.Close()
}

// LoadSnapshot reconstructs a log from a snapshot stream written by
// SaveSnapshot.
func LoadSnapshot(r io.Reader, store blockio.Store, ident *identity.Identity, logOptions *LogOptions) (*Log, error) {
	if store == nil {
		return nil, ErrIPFSNotDefined
	}
	if ident == nil {
		return nil, ErrIdentityRequired
	}
	if logOptions == nil {
		logOptions = &LogOptions{}
	}

	xzr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open snapshot reader: %w", err)
	}

	var w wireSnapshot
	if err := json.NewDecoder(xzr).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	values, err := unmarshalEntries(w.Values)
	if err != nil {
		return nil, err
	}
	heads, err := unmarshalEntries(w.Heads)
	if err != nil {
		return nil, err
	}

	return NewLog(store, ident, &LogOptions{
		ID:               w.ID,
		AccessController: logOptions.AccessController,
		SortFn:           logOptions.SortFn,
		Entries:          values,
		Heads:            heads,
		Concurrency:      logOptions.Concurrency,
	})
}
