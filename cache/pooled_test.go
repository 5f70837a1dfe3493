package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/rulelens/resp"
)

func newTestPooled(t *testing.T) (*Pooled, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := NewPooled("redis://"+mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("NewPooled failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func TestNewPooled_Validation(t *testing.T) {
	if _, err := NewPooled("", 0); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewPooled("://bad", 0); err == nil {
		t.Error("expected error for invalid url")
	}
}

func TestPooled_Operations(t *testing.T) {
	p, mr := newTestPooled(t)
	ctx := t.Context()

	if _, ok, err := p.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("Get missing = %v, %v", ok, err)
	}

	if status, err := p.SetEx(ctx, "k", 5*time.Second, []byte("a\r\nb")); err != nil || status != "OK" {
		t.Fatalf("SetEx = %q, %v", status, err)
	}
	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(got) != "a\r\nb" {
		t.Errorf("Get = %q, %v, %v", got, ok, err)
	}

	mr.FastForward(6 * time.Second)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Error("expected key to expire")
	}

	if n, err := p.HSet(ctx, "h", "f", []byte("v")); err != nil || n != 1 {
		t.Errorf("HSet = %d, %v", n, err)
	}
	all, err := p.HGetAll(ctx, "h")
	if err != nil || string(all["f"]) != "v" {
		t.Errorf("HGetAll = %q, %v", all, err)
	}
}

func TestPooled_ErrorClassification(t *testing.T) {
	p, mr := newTestPooled(t)
	ctx := t.Context()

	mr.HSet("h", "f", "v")
	if _, _, err := p.Get(ctx, "h"); !resp.IsServerError(err) {
		t.Errorf("WRONGTYPE: got %v, want server error", err)
	}

	if _, err := p.SetEx(ctx, "k", -time.Second, nil); !errors.Is(err, ErrNegativeTTL) {
		t.Errorf("negative ttl: got %v", err)
	}

	mr.Close()
	if _, _, err := p.Get(ctx, "k"); !IsUnavailable(err) {
		t.Errorf("closed server: got %v, want unavailable", err)
	}
}
