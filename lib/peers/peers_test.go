package peers

import (
	"context"
	"reflect"
	"testing"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single", "node-2=http://10.0.0.2:8080", []Peer{{"node-2", "http://10.0.0.2:8080"}}, false},
		{
			name:  "multiple with spaces and trailing slash",
			input: " node-2=http://a:1/ , node-3 = http://b:2 ,",
			want:  []Peer{{"node-2", "http://a:1"}, {"node-3", "http://b:2"}},
		},
		{"missing separator", "node-2", nil, true},
		{"missing id", "=http://a:1", nil, true},
		{"missing scheme", "node-2=a:1", nil, true},
		{"duplicate id", "n=http://a:1,n=http://b:2", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePeers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithout(t *testing.T) {
	all := []Peer{{"a", "http://a"}, {"self", "http://self"}, {"b", "http://b"}}
	got := Without(all, "self")
	want := []Peer{{"a", "http://a"}, {"b", "http://b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Without() = %v, want %v", got, want)
	}
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory(Peer{"a", "http://a"})

	got, err := d.SelectAllPeers(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("Expected one peer, got %v (%v)", got, err)
	}

	// the returned slice is a copy
	got[0].ID = "changed"
	again, _ := d.SelectAllPeers(context.Background())
	if again[0].ID != "a" {
		t.Errorf("SelectAllPeers must return a copy")
	}

	d.Set()
	if empty, _ := d.SelectAllPeers(context.Background()); len(empty) != 0 {
		t.Errorf("Expected no peers after Set(), got %v", empty)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.SelectAllPeers(ctx); err == nil {
		t.Errorf("Expected error for cancelled context")
	}
}
