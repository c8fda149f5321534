package truth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"workmesh/internal/fsio"
	"workmesh/internal/wmerr"
)

// Rebuild rewrites current.jsonl from the event log: one line per
// truth id, sorted by id for determinism.
func (l *Ledger) Rebuild() error {
	records, _, err := l.state()
	if err != nil {
		return err
	}
	data, err := renderProjection(records)
	if err != nil {
		return err
	}
	if err := fsio.WriteFileAtomic(l.Layout.TruthCurrentPath(), data, 0o644); err != nil {
		return wmerr.IO(err, "writing truth projection")
	}
	return nil
}

func renderProjection(records map[string]*Record) ([]byte, error) {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	for _, id := range ids {
		line, err := json.Marshal(records[id])
		if err != nil {
			return nil, wmerr.Wrap(wmerr.IOError, err, "serializing truth %s", id)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ReadProjection loads current.jsonl without folding events. A missing
// file yields an empty slice.
func (l *Ledger) ReadProjection() ([]*Record, error) {
	var records []*Record
	err := fsio.ScanJSONLines(l.Layout.TruthCurrentPath(), func(line []byte, n int) error {
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return wmerr.Wrap(wmerr.ParseError, err, "truth projection line %d", n).
				WithPath(l.Layout.TruthCurrentPath(), n)
		}
		records = append(records, &r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Verify compares current.jsonl against a fold of the events and
// returns one description per divergence.
func (l *Ledger) Verify() ([]string, error) {
	records, _, err := l.state()
	if err != nil {
		return nil, err
	}
	want, err := renderProjection(records)
	if err != nil {
		return nil, err
	}

	projected, err := l.ReadProjection()
	if err != nil {
		return []string{fmt.Sprintf("projection unreadable: %v", err)}, nil
	}
	byID := make(map[string]*Record, len(projected))
	for _, r := range projected {
		byID[r.ID] = r
	}

	var drift []string
	for id, r := range records {
		have, ok := byID[id]
		if !ok {
			drift = append(drift, fmt.Sprintf("missing projection for %s", id))
			continue
		}
		if have.State != r.State || have.SupersededBy != r.SupersededBy {
			drift = append(drift, fmt.Sprintf("stale projection for %s", id))
		}
		delete(byID, id)
	}
	for id := range byID {
		drift = append(drift, fmt.Sprintf("orphan projection for %s", id))
	}
	if len(drift) == 0 {
		got, readErr := renderProjection(recordsFrom(projected))
		if readErr == nil && !bytes.Equal(want, got) {
			drift = append(drift, "projection differs from event fold")
		}
	}
	sort.Strings(drift)
	return drift, nil
}

func recordsFrom(list []*Record) map[string]*Record {
	out := make(map[string]*Record, len(list))
	for _, r := range list {
		out[r.ID] = r
	}
	return out
}
