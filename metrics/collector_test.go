package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("resp", "ollama", "file")

	c.IncRunStarted()
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncStep("parse")
	c.IncStep("parse")
	c.IncStep("explain")
	c.IncShortCircuit()
	c.IncFallback()
	c.IncCacheHit("parse")
	c.IncCacheMiss("explain")
	c.IncCacheMiss("explain")
	c.IncCacheError("context")
	c.IncCacheWrite("explain")
	c.IncCacheWriteError()
	c.IncCacheCoalesced()
	c.IncCollaboratorCall("explain")
	c.IncCollaboratorFailure("verify")
	c.IncJSONRecovered()
	c.IncTraceWriteSuccess()
	c.IncTraceWriteFailure()

	s := c.Snapshot()

	if s.RunsStarted != 2 {
		t.Errorf("RunsStarted = %d, want 2", s.RunsStarted)
	}
	if s.RunsCompleted != 1 {
		t.Errorf("RunsCompleted = %d, want 1", s.RunsCompleted)
	}
	if s.RunsFailed != 1 {
		t.Errorf("RunsFailed = %d, want 1", s.RunsFailed)
	}
	if s.StepsExecuted != 3 {
		t.Errorf("StepsExecuted = %d, want 3", s.StepsExecuted)
	}
	if s.StepsByName["parse"] != 2 {
		t.Errorf("StepsByName[parse] = %d, want 2", s.StepsByName["parse"])
	}
	if s.ShortCircuits != 1 || s.Fallbacks != 1 {
		t.Errorf("ShortCircuits/Fallbacks = %d/%d, want 1/1", s.ShortCircuits, s.Fallbacks)
	}
	if s.CacheHits["parse"] != 1 {
		t.Errorf("CacheHits[parse] = %d, want 1", s.CacheHits["parse"])
	}
	if s.CacheMisses["explain"] != 2 {
		t.Errorf("CacheMisses[explain] = %d, want 2", s.CacheMisses["explain"])
	}
	if s.CacheErrors["context"] != 1 {
		t.Errorf("CacheErrors[context] = %d, want 1", s.CacheErrors["context"])
	}
	if s.CacheWrites["explain"] != 1 || s.CacheWriteErrors != 1 || s.CacheCoalesced != 1 {
		t.Errorf("cache write counters = %v/%d/%d", s.CacheWrites, s.CacheWriteErrors, s.CacheCoalesced)
	}
	if s.CollaboratorCalls["explain"] != 1 || s.CollaboratorFailures["verify"] != 1 {
		t.Errorf("collaborator counters = %v/%v", s.CollaboratorCalls, s.CollaboratorFailures)
	}
	if s.JSONRecovered != 1 {
		t.Errorf("JSONRecovered = %d, want 1", s.JSONRecovered)
	}
	if s.TraceWriteSuccess != 1 || s.TraceWriteFailure != 1 {
		t.Errorf("trace counters = %d/%d, want 1/1", s.TraceWriteSuccess, s.TraceWriteFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("memory", "mock", "lode").Snapshot()

	if s.CacheBackend != "memory" {
		t.Errorf("CacheBackend = %q, want %q", s.CacheBackend, "memory")
	}
	if s.Provider != "mock" {
		t.Errorf("Provider = %q, want %q", s.Provider, "mock")
	}
	if s.TraceBackend != "lode" {
		t.Errorf("TraceBackend = %q, want %q", s.TraceBackend, "lode")
	}
}

func TestSnapshot_CacheHitRate(t *testing.T) {
	c := NewCollector("resp", "", "")
	if got := c.Snapshot().CacheHitRate(); got != 0 {
		t.Errorf("empty hit rate = %v, want 0", got)
	}

	c.IncCacheHit("parse")
	c.IncCacheHit("explain")
	c.IncCacheHit("context")
	c.IncCacheMiss("parse")

	if got := c.Snapshot().CacheHitRate(); got != 0.75 {
		t.Errorf("hit rate = %v, want 0.75", got)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("resp", "", "")
	c.IncRunStarted()
	c.IncCacheHit("parse")

	s1 := c.Snapshot()

	c.IncRunCompleted()
	c.IncCacheHit("parse")
	s1.CacheHits["injected"] = 1

	if s1.RunsCompleted != 0 {
		t.Errorf("s1.RunsCompleted = %d, want 0 (snapshot should be frozen)", s1.RunsCompleted)
	}
	if s1.CacheHits["parse"] != 1 {
		t.Errorf("s1.CacheHits[parse] = %d, want 1 (snapshot should be frozen)", s1.CacheHits["parse"])
	}

	s2 := c.Snapshot()
	if s2.CacheHits["parse"] != 2 {
		t.Errorf("s2.CacheHits[parse] = %d, want 2", s2.CacheHits["parse"])
	}
	if _, exists := s2.CacheHits["injected"]; exists {
		t.Error("collector should be isolated from snapshot mutation")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncStep("parse")
	c.IncShortCircuit()
	c.IncFallback()
	c.IncCacheHit("parse")
	c.IncCacheMiss("parse")
	c.IncCacheError("parse")
	c.IncCacheWrite("parse")
	c.IncCacheWriteError()
	c.IncCacheCoalesced()
	c.IncCollaboratorCall("explain")
	c.IncCollaboratorFailure("explain")
	c.IncJSONRecovered()
	c.IncTraceWriteSuccess()
	c.IncTraceWriteFailure()

	s := c.Snapshot()
	if s.RunsStarted != 0 {
		t.Errorf("nil collector snapshot RunsStarted = %d, want 0", s.RunsStarted)
	}
	if s.CacheHits != nil {
		t.Errorf("nil collector snapshot CacheHits should be nil, got %v", s.CacheHits)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("resp", "", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncRunStarted()
				c.IncStep("parse")
				c.IncCacheMiss("parse")
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.RunsStarted != want {
		t.Errorf("RunsStarted = %d, want %d", s.RunsStarted, want)
	}
	if s.StepsByName["parse"] != want {
		t.Errorf("StepsByName[parse] = %d, want %d", s.StepsByName["parse"], want)
	}
	if s.CacheMisses["parse"] != want {
		t.Errorf("CacheMisses[parse] = %d, want %d", s.CacheMisses["parse"], want)
	}
}
