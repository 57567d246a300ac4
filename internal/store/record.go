package store

import "time"

// TimeLayout is the timestamp format for durable columns and cursors.
// The fractional part has fixed width so the text sort order of stored
// timestamps matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is a generic query result row.
type Record map[string]any

// GetString extracts a string value from a record.
func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// GetInt64 extracts an int64 value from a record.
func (r Record) GetInt64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetInt extracts an int value from a record.
func (r Record) GetInt(key string) int {
	return int(r.GetInt64(key))
}

// GetFloat extracts a float64 value from a record.
func (r Record) GetFloat(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// GetBool extracts a bool value from a record.
func (r Record) GetBool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	}
	return false
}

// GetTime parses a timestamp column written with TimeLayout (any RFC3339
// fraction width is accepted). Returns the zero time when the column is
// absent or malformed.
func (r Record) GetTime(key string) time.Time {
	s := r.GetString(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
