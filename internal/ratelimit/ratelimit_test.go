package ratelimit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestAllow_NilLimiterAllows(t *testing.T) {
	var l *Limiter
	ok, err := l.Allow(context.Background(), "send", "u1")
	if err != nil || !ok {
		t.Errorf("Allow = %v, %v; want true, nil", ok, err)
	}
}

func TestAllow_ZeroLimitAllows(t *testing.T) {
	ok, err := New(nil, 0).Allow(context.Background(), "send", "u1")
	if err != nil || !ok {
		t.Errorf("Allow = %v, %v; want true, nil", ok, err)
	}
}

// TestAllow_Redis runs against a real server when REDIS_URL is set.
func TestAllow_Redis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping redis test")
	}
	ctx := context.Background()
	rdb, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rdb.Close()

	l := New(rdb, 2)
	key := uuid.NewString()
	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "test", key)
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if ok != want {
			t.Errorf("Allow #%d = %v, want %v", i, ok, want)
		}
	}
	if ok, _ := l.Allow(ctx, "other", key); !ok {
		t.Error("scopes share a counter")
	}
}
