package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/rulelens/log"
	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/types"
)

// failingStore fails every operation with err.
type failingStore struct {
	err error
}

func (s *failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, s.err }
func (s *failingStore) Set(context.Context, string, []byte) (string, error) {
	return "", s.err
}
func (s *failingStore) SetEx(context.Context, string, time.Duration, []byte) (string, error) {
	return "", s.err
}
func (s *failingStore) HSet(context.Context, string, string, []byte) (int64, error) {
	return 0, s.err
}
func (s *failingStore) HGetAll(context.Context, string) (map[string][]byte, error) {
	return nil, s.err
}
func (s *failingStore) Close() error { return nil }

func sampleExtraction() types.Extraction {
	return types.Extraction{
		Globals: []string{"score = 0"},
		Branches: []types.Branch{
			{Condition: "applicant.age < 18", Actions: []string{`decision = "DENY"`}},
			{Condition: types.DefaultCondition, Actions: []string{`decision = "APPROVE"`}},
		},
		Variables: []string{"applicant.age"},
		Outputs:   []string{"decision", "score"},
	}
}

func TestAdvisory_ParseRoundTripThroughStore(t *testing.T) {
	mr := miniredis.RunT(t)
	m := metrics.NewCollector("resp", "", "")
	a := NewAdvisory(AdvisoryConfig{
		Store:   NewClient(ClientConfig{Addr: mr.Addr(), Timeout: time.Second}),
		Metrics: m,
	})
	ctx := t.Context()
	hash := Hash("rule")

	if _, ok := a.GetParse(ctx, hash); ok {
		t.Fatal("expected miss before write")
	}

	want := sampleExtraction()
	a.PutParse(ctx, hash, want)

	if ttl := mr.TTL("mvel:cache:parse:" + hash); ttl != 7*24*time.Hour {
		t.Errorf("parse TTL = %v, want 168h", ttl)
	}

	got, ok := a.GetParse(ctx, hash)
	if !ok {
		t.Fatal("expected hit after write")
	}
	if len(got.Branches) != 2 || got.Branches[1].Condition != types.DefaultCondition {
		t.Errorf("branches = %+v", got.Branches)
	}
	if strings.Join(got.Outputs, ",") != "decision,score" {
		t.Errorf("outputs = %v", got.Outputs)
	}

	s := m.Snapshot()
	if s.CacheMisses["parse"] != 1 || s.CacheHits["parse"] != 1 || s.CacheWrites["parse"] != 1 {
		t.Errorf("metrics = hits %v misses %v writes %v", s.CacheHits, s.CacheMisses, s.CacheWrites)
	}
}

func TestAdvisory_TextKindsUseTheirTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewAdvisory(AdvisoryConfig{
		Store:     NewClient(ClientConfig{Addr: mr.Addr(), Timeout: time.Second}),
		Namespace: "team",
		TTLs:      TTLs{KindContext: time.Hour},
	})
	ctx := t.Context()

	a.PutText(ctx, KindExplain, "h1", "When the applicant is under 18 the decision is DENY.")
	a.PutText(ctx, KindContext, "h1", "Field definitions:\n- age: years")

	if ttl := mr.TTL("team:cache:explain:h1"); ttl != 24*time.Hour {
		t.Errorf("explain TTL = %v, want 24h", ttl)
	}
	if ttl := mr.TTL("team:cache:context:h1"); ttl != time.Hour {
		t.Errorf("context TTL = %v, want 1h override", ttl)
	}

	got, ok := a.GetText(ctx, KindContext, "h1")
	if !ok || got != "Field definitions:\n- age: years" {
		t.Errorf("GetText = %q, %v", got, ok)
	}
}

func TestAdvisory_FailuresDegradeToMiss(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.NewCollector("resp", "", "")
	store := &failingStore{err: &UnavailableError{Op: "dial", Addr: "127.0.0.1:1", Err: errors.New("connection refused")}}
	a := NewAdvisory(AdvisoryConfig{
		Store:   store,
		Logger:  log.NewLogger(nil).WithOutput(&buf),
		Metrics: m,
	})
	ctx := t.Context()

	if _, ok := a.GetParse(ctx, "h"); ok {
		t.Error("expected miss")
	}
	if _, ok := a.GetText(ctx, KindExplain, "h"); ok {
		t.Error("expected miss")
	}
	a.PutText(ctx, KindExplain, "h", "text")
	a.PutParse(ctx, "h", sampleExtraction())

	s := m.Snapshot()
	if s.CacheErrors["parse"] != 1 || s.CacheErrors["explain"] != 1 {
		t.Errorf("CacheErrors = %v", s.CacheErrors)
	}
	if s.CacheWriteErrors != 2 {
		t.Errorf("CacheWriteErrors = %d, want 2", s.CacheWriteErrors)
	}
	if !strings.Contains(buf.String(), "cache lookup degraded to miss") {
		t.Errorf("expected warn log, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"unavailable":true`) {
		t.Errorf("expected unavailable flag in log, got %q", buf.String())
	}
}

func TestAdvisory_CorruptParseEntryIsMiss(t *testing.T) {
	l, _ := newTestLocal(t, 8)
	m := metrics.NewCollector("memory", "", "")
	a := NewAdvisory(AdvisoryConfig{Store: l, Metrics: m})
	ctx := t.Context()

	if _, err := l.Set(ctx, a.Key(KindParse, "h"), []byte{0xc1, 0xff, 0x00}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := a.GetParse(ctx, "h"); ok {
		t.Error("expected corrupt entry to be a miss")
	}
	s := m.Snapshot()
	if s.CacheHits["parse"] != 0 || s.CacheErrors["parse"] != 1 {
		t.Errorf("hits %v errors %v", s.CacheHits, s.CacheErrors)
	}
}

func TestAdvisory_DisabledAlwaysMisses(t *testing.T) {
	a := NewAdvisory(AdvisoryConfig{})
	ctx := t.Context()

	if a.Enabled() {
		t.Error("expected disabled advisory cache")
	}
	a.PutText(ctx, KindExplain, "h", "text")
	if _, ok := a.GetText(ctx, KindExplain, "h"); ok {
		t.Error("expected miss when disabled")
	}

	var nilAdvisory *Advisory
	if _, ok := nilAdvisory.GetParse(ctx, "h"); ok {
		t.Error("nil advisory must miss")
	}
	if got := nilAdvisory.Key(KindParse, "h"); got != "mvel:cache:parse:h" {
		t.Errorf("nil Key = %q", got)
	}
}

func TestAdvisory_DoRunsFunction(t *testing.T) {
	a := NewAdvisory(AdvisoryConfig{})

	v, err := a.Do(t.Context(), "k", func(context.Context) (any, error) { return "value", nil })
	if err != nil || v != "value" {
		t.Errorf("Do = %v, %v", v, err)
	}

	wantErr := errors.New("boom")
	if _, err := a.Do(t.Context(), "k", func(context.Context) (any, error) { return nil, wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Do error = %v, want %v", err, wantErr)
	}
}

func TestAdvisory_DoCoalescesConcurrentCallers(t *testing.T) {
	a := NewAdvisory(AdvisoryConfig{})

	const callers = 8
	var (
		mu    sync.Mutex
		calls int
		wg    sync.WaitGroup
	)
	release := make(chan struct{})
	results := make([]any, callers)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := a.Do(t.Context(), "same", func(context.Context) (any, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				<-release
				return "computed", nil
			})
			results[i] = v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls < 1 || calls > callers {
		t.Errorf("calls = %d, want between 1 and %d", calls, callers)
	}
	for i, v := range results {
		if v != "computed" {
			t.Errorf("results[%d] = %v, want computed", i, v)
		}
	}
}

func TestAdvisory_DoCanceledCallerDoesNotFailOthers(t *testing.T) {
	a := NewAdvisory(AdvisoryConfig{})

	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-release:
			return "computed", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := a.Do(firstCtx, "same", fn)
		firstErr <- err
	}()
	<-started

	secondVal := make(chan any, 1)
	go func() {
		v, _ := a.Do(t.Context(), "same", func(context.Context) (any, error) {
			return "second ran", nil
		})
		secondVal <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller error = %v, want context.Canceled", err)
	}

	close(release)
	if v := <-secondVal; v != "computed" && v != "second ran" {
		t.Errorf("second caller value = %v", v)
	}
}
