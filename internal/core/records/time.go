package records

import (
	"strings"
	"time"
)

// APITime parses the timestamp shapes the parliament APIs emit: RFC3339
// with or without offset, and bare dates. Marshals back as RFC3339.
type APITime struct {
	time.Time
}

var apiTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON accepts null and the known layouts
func (t *APITime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range apiTimeLayouts {
		v, err := time.Parse(layout, s)
		if err == nil {
			t.Time = v
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON emits RFC3339, or null for the zero value
func (t APITime) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Time.Format(time.RFC3339) + `"`), nil
}

// DateString returns the YYYY-MM-DD form
func (t APITime) DateString() string { return t.Time.Format("2006-01-02") }
