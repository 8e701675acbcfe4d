package keypath

import (
	"errors"
	"testing"

	"github.com/secrepo/secrepo/types"
)

func TestToPath(t *testing.T) {
	tests := []struct {
		name     string
		keyspace string
		id       string
		want     string
		wantErr  bool
	}{
		{name: "simple", keyspace: "credentials", id: "heisenberg", want: "credentials/heisenberg"},
		{name: "case preserved", keyspace: "credentials", id: "Heisenberg", want: "credentials/Heisenberg"},
		{name: "punctuation kept", keyspace: "ssh_keys", id: "ci-deploy.2026", want: "ssh_keys/ci-deploy.2026"},
		{name: "empty id", keyspace: "credentials", id: "", wantErr: true},
		{name: "separator in id", keyspace: "credentials", id: "a/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToPath(tt.keyspace, tt.id)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidIdentifier) {
					t.Fatalf("ToPath(%q, %q) error = %v, want ErrInvalidIdentifier", tt.keyspace, tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToPath(%q, %q) unexpected error: %v", tt.keyspace, tt.id, err)
			}
			if got != tt.want {
				t.Errorf("ToPath(%q, %q) = %q, want %q", tt.keyspace, tt.id, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	// A listing of the keyspace yields child keys; each must map back to
	// the identifier that produced the path.
	for _, id := range []string{"heisenberg", "a1", "x-y.z"} {
		path, err := ToPath("credentials", id)
		if err != nil {
			t.Fatalf("ToPath: %v", err)
		}
		if path != "credentials/"+id {
			t.Fatalf("path = %q", path)
		}
		if got := FromChildKey("credentials", id); got != id {
			t.Errorf("FromChildKey(%q) = %q, want %q", id, got, id)
		}
	}
}
