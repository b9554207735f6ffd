package apikey

import (
	"strings"
	"testing"
	"time"
)

func TestHashKeyStable(t *testing.T) {
	if HashKey("osr_abc") != HashKey("osr_abc") {
		t.Fatal("hash not deterministic")
	}
	if HashKey("osr_abc") == HashKey("osr_abd") {
		t.Fatal("distinct keys share a hash")
	}
	if len(HashKey("x")) != 64 {
		t.Fatalf("hash length = %d", len(HashKey("x")))
	}
}

func TestGenerateRawKey(t *testing.T) {
	a, err := generateRawKey()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := generateRawKey()
	if !strings.HasPrefix(a, keyPrefix) || a == b {
		t.Fatalf("keys %q %q", a, b)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	tests := []struct {
		name string
		exp  *time.Time
		want bool
	}{
		{"no expiry", nil, false},
		{"past", &past, true},
		{"future", &future, false},
		{"exactly now", &now, true},
	}
	for _, tt := range tests {
		k := KeyInfo{ExpiresAt: tt.exp}
		if got := k.Expired(now); got != tt.want {
			t.Errorf("%s: Expired = %v, want %v", tt.name, got, tt.want)
		}
	}
}
