// Package util provides content hashing, canonical JSON serialization,
// and the timestamp formats shared across the WorkMesh stores.
package util

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"lukechampine.com/blake3"
)

// TaskDateLayout is the minute-granularity format used for task dates
// (created_date, updated_date) in front matter.
const TaskDateLayout = "2006-01-02 15:04"

// DayLayout is the date-only format tolerated on read.
const DayLayout = "2006-01-02"

// Clock abstracts time so tests can drive lease expiry and event
// ordering deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall-clock time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock is a test clock that returns a settable instant.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward.
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// FormatTaskDate renders a time in the task-date format.
func FormatTaskDate(t time.Time) string {
	return t.Format(TaskDateLayout)
}

// ParseTaskDate parses a task date, accepting both the minute format
// and a bare date.
func ParseTaskDate(value string) (time.Time, bool) {
	for _, layout := range []string{TaskDateLayout, DayLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatRFC3339 renders a time in RFC3339 with second precision,
// the format used by event logs and lease timestamps.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseRFC3339 parses an RFC3339 timestamp.
func ParseRFC3339(value string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Blake3HashHex computes a BLAKE3 hash of the input and returns it as a
// hex string.
func Blake3HashHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hexEncode(sum[:])
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, v := range b {
		out = append(out, hexDigits[v>>4], hexDigits[v&0x0f])
	}
	return string(out)
}

// CanonicalJSON converts a value to canonical JSON (stable key ordering),
// used wherever a byte-identical serialization is required.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return canonicalMarshal(obj)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return marshalSortedMap(val)
	case []interface{}:
		return marshalArray(val)
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := canonicalMarshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := canonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
