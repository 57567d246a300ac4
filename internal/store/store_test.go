package store

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRecord_GetMethods(t *testing.T) {
	r := Record{
		"name":    "test",
		"count":   int64(42),
		"rate":    3.14,
		"enabled": true,
	}

	if got := r.GetString("name"); got != "test" {
		t.Errorf("GetString(name) = %q, want %q", got, "test")
	}
	if got := r.GetString("missing"); got != "" {
		t.Errorf("GetString(missing) = %q, want empty", got)
	}

	if got := r.GetInt("count"); got != 42 {
		t.Errorf("GetInt(count) = %d, want 42", got)
	}
	if got := r.GetInt64("missing"); got != 0 {
		t.Errorf("GetInt64(missing) = %d, want 0", got)
	}

	if got := r.GetFloat("rate"); got != 3.14 {
		t.Errorf("GetFloat(rate) = %f, want 3.14", got)
	}

	if got := r.GetBool("enabled"); !got {
		t.Error("GetBool(enabled) = false, want true")
	}
}

func TestRecord_GetBoolFromInt(t *testing.T) {
	// SQLite stores booleans as integers.
	r := Record{"ended": int64(1), "live": int64(0)}

	if !r.GetBool("ended") {
		t.Error("GetBool(ended) = false, want true")
	}
	if r.GetBool("live") {
		t.Error("GetBool(live) = true, want false")
	}
}

func TestRecord_GetTime(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	r := Record{"created_at": now.Format(time.RFC3339Nano), "bad": "not-a-time"}

	if got := r.GetTime("created_at"); !got.Equal(now) {
		t.Errorf("GetTime(created_at) = %v, want %v", got, now)
	}
	if got := r.GetTime("bad"); !got.IsZero() {
		t.Errorf("GetTime(bad) = %v, want zero", got)
	}
	if got := r.GetTime("missing"); !got.IsZero() {
		t.Errorf("GetTime(missing) = %v, want zero", got)
	}
}

func TestErrors(t *testing.T) {
	t.Run("NotFoundError", func(t *testing.T) {
		err := NewNotFoundError("Session", "abc123")
		if !IsNotFound(err) {
			t.Error("IsNotFound should return true")
		}
		if !errors.Is(err, ErrNotFound) {
			t.Error("should wrap ErrNotFound")
		}

		nfe := &NotFoundError{}
		if !errors.As(err, &nfe) {
			t.Fatal("should be NotFoundError")
		}
		if nfe.Entity != "Session" || nfe.ID != "abc123" {
			t.Error("wrong entity/id in error")
		}
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		wrapped := fmt.Errorf("insert session: %w", ErrDuplicateKey)
		if !IsDuplicateKey(wrapped) {
			t.Error("IsDuplicateKey should see through wrapping")
		}
		if IsDuplicateKey(ErrNotFound) {
			t.Error("IsDuplicateKey(ErrNotFound) should be false")
		}
	})
}
