package auth

import (
	"errors"
	"strings"
	"testing"
)

// cheap parameters keep the suite fast; production uses DefaultParams.
var testParams = Params{Time: 1, Memory: 1024, Threads: 1}

func mustHash(t *testing.T, h *Hasher, password string) string {
	t.Helper()
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash(%q): %v", password, err)
	}
	return hash
}

func TestHasher_EncodesPHCString(t *testing.T) {
	t.Parallel()

	fields := strings.Split(mustHash(t, NewHasher(testParams), "correct horse battery"), "$")
	want := []string{"", "argon2id", "v=19", "m=1024,t=1,p=1"}
	if len(fields) != 6 {
		t.Fatalf("got %d fields, want 6: %v", len(fields), fields)
	}
	for i, w := range want {
		if fields[i] != w {
			t.Errorf("field %d = %q, want %q", i, fields[i], w)
		}
	}
	if fields[4] == "" || fields[5] == "" {
		t.Error("salt and digest must be present")
	}
}

func TestNewHasher_FillsZeroParams(t *testing.T) {
	t.Parallel()

	h := NewHasher(Params{Memory: 2048})
	want := Params{Time: DefaultParams.Time, Memory: 2048, Threads: DefaultParams.Threads}
	if h.params != want {
		t.Errorf("params = %+v, want %+v", h.params, want)
	}
}

func TestHasher_RejectsEmptyPassword(t *testing.T) {
	t.Parallel()

	if _, err := NewHasher(testParams).Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("err = %v, want ErrEmptyPassword", err)
	}
}

func TestHasher_SaltsEachHash(t *testing.T) {
	t.Parallel()

	h := NewHasher(testParams)
	a := mustHash(t, h, "same-password")
	b := mustHash(t, h, "same-password")
	if a == b {
		t.Fatal("two hashes of one password are identical")
	}
	for _, hash := range []string{a, b} {
		if ok, err := h.Verify("same-password", hash); err != nil || !ok {
			t.Errorf("Verify(%s) = %v, %v", hash, ok, err)
		}
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	current := mustHash(t, NewHasher(testParams), "secret123")
	// A stored hash keeps the cost it was made with.
	older := mustHash(t, NewHasher(Params{Time: 2, Memory: 2048, Threads: 2}), "secret123")

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
		wantErr  error
	}{
		{"match", "secret123", current, true, nil},
		{"mismatch is not an error", "secret124", current, false, nil},
		{"other cost params", "secret123", older, true, nil},
		{"empty", "password", "", false, ErrInvalidHash},
		{"not phc", "password", "not-a-hash", false, ErrInvalidHash},
		{"other algorithm", "password", "$bcrypt$v=19$m=65536,t=3,p=4$salt$hash", false, ErrInvalidHash},
		{"truncated", "password", "$argon2id$v=19$m=65536", false, ErrInvalidHash},
		{"zero params", "password", "$argon2id$v=19$m=0,t=0,p=0$c29tZXNhbHQ$c29tZWhhc2g", false, ErrInvalidHash},
		{"bad salt", "password", "$argon2id$v=19$m=1024,t=1,p=1$!!!$c29tZWhhc2g", false, ErrInvalidHash},
		{"empty digest", "password", "$argon2id$v=19$m=1024,t=1,p=1$c29tZXNhbHQ$", false, ErrInvalidHash},
		{"old version", "password", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", false, ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := VerifyPassword(tt.password, tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("match = %v, want %v", got, tt.want)
			}
		})
	}
}
