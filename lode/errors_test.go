package lode

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"open /data/trace: permission denied", ErrPermissionDenied},
		{"write /data: no space left on device", ErrDiskFull},
		{"quota exceeded for user", ErrDiskFull},
		{"open /missing: no such file or directory", ErrNotFound},
		{"NoSuchKey: The specified key does not exist", ErrNotFound},
		{"SlowDown: please reduce request rate", ErrThrottled},
		{"received status 429", ErrThrottled},
		{"NoCredentialProviders: no valid providers in chain", ErrAuth},
		{"ExpiredToken: the security token has expired", ErrAuth},
		{"dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},
		{"something unexpected happened", ErrUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := classify(errors.New(tt.msg)); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if wrapWrite(nil, "x") != nil {
		t.Fatal("wrapping nil must stay nil")
	}

	base := fmt.Errorf("put object: %w", context.DeadlineExceeded)
	err := wrapWrite(base, "rulelens/run-1")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout kind, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("wrapped chain lost: %v", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "write" || se.Path != "rulelens/run-1" {
		t.Fatalf("unexpected storage error: %#v", err)
	}

	if again := wrapRead(err, "other"); again != err {
		t.Errorf("already classified errors must pass through, got %v", again)
	}
}
