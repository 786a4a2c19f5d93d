package ratelimit

import (
	"testing"
	"time"
)

func TestAllowsUpToRate(t *testing.T) {
	k := NewKeyed(5, time.Minute)
	for i := 0; i < 5; i++ {
		if !k.Allow("caller") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if k.Allow("caller") {
		t.Fatal("6th request should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	k := NewKeyed(1, time.Minute)
	if !k.Allow("a") {
		t.Fatal("first request for a should be allowed")
	}
	if k.Allow("a") {
		t.Fatal("second request for a should be denied")
	}
	if !k.Allow("b") {
		t.Fatal("first request for b should be allowed")
	}
}

func TestResetsAfterWindow(t *testing.T) {
	k := NewKeyed(2, 50*time.Millisecond)
	k.Allow("caller")
	k.Allow("caller")
	if k.Allow("caller") {
		t.Fatal("3rd should be denied")
	}
	time.Sleep(60 * time.Millisecond)
	if !k.Allow("caller") {
		t.Fatal("after window reset should be allowed")
	}
}
