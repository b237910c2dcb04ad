package store

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b Version
		want Ordering
	}{
		{1, 2, Before},
		{2, 1, After},
		{5, 5, Same},
		{-1, 0, Before},
	}

	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%d.Compare(%d) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		value   []byte
		maxAge  int64
		wantErr bool
	}{
		{"valid", []byte("k"), []byte("v"), 0, false},
		{"with max age", []byte("k"), []byte("v"), 1000, false},
		{"empty value is live", []byte("k"), nil, 0, false},
		{"empty key", nil, []byte("v"), 0, true},
		{"negative max age", []byte("k"), []byte("v"), -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEntry(tt.key, tt.value, 1, 1, tt.maxAge)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("Expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if e.IsTombstone() {
				t.Errorf("NewEntry must never create a tombstone")
			}
		})
	}

	if _, err := NewTombstone(nil, 1, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for tombstone without key, got %v", err)
	}
}

func TestEntryCopiesInput(t *testing.T) {
	key, value := []byte("key"), []byte("value")
	e, _ := NewEntry(key, value, 1, 1, 0)
	key[0], value[0] = 'X', 'X'

	if string(e.Key) != "key" || string(e.Value) != "value" {
		t.Errorf("NewEntry must copy its input, got %s", e)
	}
}

func TestEntryEqual(t *testing.T) {
	base, _ := NewEntry([]byte("k"), []byte("v"), 1, 1, 0)
	empty, _ := NewEntry([]byte("k"), nil, 1, 1, 0)
	tomb, _ := NewTombstone([]byte("k"), 1, 1)

	tests := []struct {
		name  string
		other Entry
		want  bool
	}{
		{"identical", base.Clone(), true},
		{"other value", Entry{Key: []byte("k"), Value: []byte("w"), Version: 1, Timestamp: 1}, false},
		{"other version", Entry{Key: []byte("k"), Value: []byte("v"), Version: 2, Timestamp: 1}, false},
		{"other timestamp", Entry{Key: []byte("k"), Value: []byte("v"), Version: 1, Timestamp: 2}, false},
		{"other max age", Entry{Key: []byte("k"), Value: []byte("v"), Version: 1, Timestamp: 1, MaxAgeInMs: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}

	if empty.Equal(tomb) {
		t.Errorf("An empty value must not equal a tombstone")
	}
}

func TestEntryExpired(t *testing.T) {
	const tombstoneMaxAge = 24 * time.Hour
	created := time.UnixMilli(1_700_000_000_000)
	ts := created.UnixMilli()

	live, _ := NewEntry([]byte("k"), []byte("v"), VersionAt(created), ts, 0)
	heartbeat, _ := NewEntry([]byte("k"), []byte("v"), VersionAt(created), ts, 30_000)
	tomb, _ := NewTombstone([]byte("k"), VersionAt(created), ts)

	tests := []struct {
		name    string
		entry   Entry
		at      time.Time
		expired bool
		visible bool
	}{
		{"live never expires", live, created.Add(365 * 24 * time.Hour), false, true},
		{"heartbeat within max age", heartbeat, created.Add(30 * time.Second), false, true},
		{"heartbeat past max age", heartbeat, created.Add(30*time.Second + time.Millisecond), true, false},
		{"fresh tombstone", tomb, created, false, false},
		{"tombstone at max age", tomb, created.Add(tombstoneMaxAge), false, false},
		{"old tombstone", tomb, created.Add(tombstoneMaxAge + time.Millisecond), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Expired(tt.at, tombstoneMaxAge); got != tt.expired {
				t.Errorf("Expired() = %v, want %v", got, tt.expired)
			}
			if got := tt.entry.Visible(tt.at, tombstoneMaxAge); got != tt.visible {
				t.Errorf("Visible() = %v, want %v", got, tt.visible)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	older, _ := NewEntry([]byte("node-1"), []byte(`{"type":"web"}`), 1000, 1000, 0)
	newer, _ := NewEntry([]byte("node-1"), []byte(`{"type":"db"}`), 1005, 1005, 0)
	tie, _ := NewEntry([]byte("node-1"), []byte(`{"type":"cache"}`), 1000, 1000, 0)
	tomb, _ := NewTombstone([]byte("node-1"), 1010, 1010)

	tests := []struct {
		name string
		a, b Entry
		want Entry
	}{
		{"b newer", older, newer, newer},
		{"a newer", newer, older, newer},
		{"tie keeps first", older, tie, older},
		{"tie keeps first swapped", tie, older, tie},
		{"newer tombstone wins", newer, tomb, tomb},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastWriterWins.Resolve(tt.a, tt.b)
			if !got.Equal(tt.want) {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
			if !got.Equal(tt.a) && !got.Equal(tt.b) {
				t.Errorf("Resolve() must return one of its arguments")
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		code RetCode
		want error
	}{
		{RetCInvalidArgument, ErrInvalidArgument},
		{RetCInvalidOperation, ErrInvalidArgument},
		{RetCInternalError, ErrInternal},
		{RetCUnsupportedOperation, ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := errors.Wrap(NewError(tt.code, "boom"), "context")
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v to match %v", err, tt.want)
			}
			var storeErr *Error
			if !errors.As(err, &storeErr) || storeErr.Code != tt.code {
				t.Errorf("Expected *Error with code %s", tt.code)
			}
		})
	}
}
