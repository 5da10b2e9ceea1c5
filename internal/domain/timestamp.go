package domain

import (
	"fmt"
	"strconv"
	"time"
)

// localLayout is how the execution service renders zone-less timestamps.
const localLayout = "2006-01-02T15:04:05.999999999"

// Timestamp accepts both RFC 3339 and zone-less ISO timestamps. Zone-less
// values are read as UTC.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", s, err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, unquoted); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localLayout, unquoted, time.UTC)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", unquoted, err)
	}
	t.Time = parsed
	return nil
}
