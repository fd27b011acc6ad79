package watch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"1h", time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"1d12h", 36 * time.Hour, false},
		{"2d6h", 54 * time.Hour, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseInterval(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseInterval(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseInterval(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h30m"},
		{24 * time.Hour, "1d"},
		{36 * time.Hour, "1d12h"},
		{7 * 24 * time.Hour, "7d"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := FormatInterval(tt.input)
			if got != tt.expected {
				t.Errorf("FormatInterval(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func okResult(seed string, visited ...string) orchestrate.SeedResult {
	result := models.NewCrawlResult()
	result.Visited = visited
	return orchestrate.SeedResult{Seed: seed, Result: result}
}

func TestStateManager(t *testing.T) {
	tmpDir := t.TempDir()
	sm := NewStateManager(tmpDir)
	if err := sm.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	now := time.Now()
	if !sm.ShouldRun("http://a.test/", time.Hour, now) {
		t.Error("ShouldRun() should return true for new seed")
	}

	diff := sm.Record(okResult("http://a.test/", "http://a.test/", "http://a.test/x"), now)
	if !diff.Empty() {
		t.Errorf("first run should report no changes, got %+v", diff)
	}
	if sm.ShouldRun("http://a.test/", time.Hour, now) {
		t.Error("ShouldRun() should return false immediately after run")
	}
	if !sm.ShouldRun("http://a.test/", time.Hour, now.Add(time.Hour)) {
		t.Error("ShouldRun() should return true once the interval elapsed")
	}

	state, ok := sm.GetSeedState("http://a.test/")
	if !ok {
		t.Fatal("GetSeedState() should return true for existing seed")
	}
	if !state.LastRunSuccess || state.Visited != 2 {
		t.Errorf("unexpected state %+v", state)
	}

	if err := sm.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, stateFileName)); os.IsNotExist(err) {
		t.Error("State file should exist after Save()")
	}

	sm2 := NewStateManager(tmpDir)
	if err := sm2.Load(); err != nil {
		t.Fatalf("Load() from saved state failed: %v", err)
	}
	state2, ok := sm2.GetSeedState("http://a.test/")
	if !ok {
		t.Fatal("loaded state should contain the seed")
	}
	if len(state2.Pages) != 2 || state2.Visited != 2 {
		t.Errorf("loaded state = %+v, want 2 pages", state2)
	}
}

func TestStateManager_LoadCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, stateFileName), []byte("seeds: [unclosed"), 0644))

	err := NewStateManager(tmpDir).Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse state file")
}

func TestStateManager_FailedRunKeepsPages(t *testing.T) {
	sm := NewStateManager(t.TempDir())
	now := time.Now()
	sm.Record(okResult("s", "a", "b"), now)

	failed := orchestrate.SeedResult{Seed: "s", Error: errors.New("boom")}
	diff := sm.Record(failed, now.Add(time.Minute))
	assert.True(t, diff.Empty())

	state, _ := sm.GetSeedState("s")
	assert.False(t, state.LastRunSuccess)
	assert.Equal(t, "boom", state.ErrorMessage)
	assert.Equal(t, []string{"a", "b"}, state.Pages)

	diff = sm.Record(okResult("s", "b", "c"), now.Add(2*time.Minute))
	assert.Equal(t, []string{"c"}, diff.Added)
	assert.Equal(t, []string{"a"}, diff.Removed)
}

func TestDiffSorted(t *testing.T) {
	tests := []struct {
		name        string
		old, cur    []string
		wantAdded   []string
		wantRemoved []string
	}{
		{name: "identical", old: []string{"a", "b"}, cur: []string{"a", "b"}},
		{name: "from empty", old: nil, cur: []string{"a"}, wantAdded: []string{"a"}},
		{name: "to empty", old: []string{"a"}, cur: nil, wantRemoved: []string{"a"}},
		{name: "interleaved", old: []string{"a", "c", "e"}, cur: []string{"b", "c", "d"},
			wantAdded: []string{"b", "d"}, wantRemoved: []string{"a", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diffSorted(tt.old, tt.cur)
			assert.Equal(t, tt.wantAdded, d.Added)
			assert.Equal(t, tt.wantRemoved, d.Removed)
		})
	}
}

// scriptedCrawler returns the next page list for a seed on every call.
type scriptedCrawler struct {
	mu    sync.Mutex
	pages map[string][][]string
	calls map[string]int
}

func (c *scriptedCrawler) Crawl(ctx context.Context, seed string, depth int) (*models.CrawlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return models.NewCrawlResult(), err
	}
	runs := c.pages[seed]
	i := c.calls[seed]
	c.calls[seed]++
	if i >= len(runs) {
		i = len(runs) - 1
	}
	result := models.NewCrawlResult()
	result.Visited = append(result.Visited, runs[i]...)
	return result, nil
}

func TestScheduler_RunDue(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	c := &scriptedCrawler{
		pages: map[string][][]string{
			"http://a.test/": {{"http://a.test/", "http://a.test/old"}, {"http://a.test/", "http://a.test/new"}},
			"http://b.test/": {{"http://b.test/"}},
		},
		calls: map[string]int{},
	}
	stateDir := t.TempDir()
	s := NewScheduler(c, []string{"http://a.test/", "http://b.test/"}, time.Hour,
		orchestrate.Options{Depth: 2}, stateDir, logrus.NewEntry(log))
	clock := time.Now()
	s.now = func() time.Time { return clock }

	diffs := s.RunDue(context.Background())
	require.Len(t, diffs, 2)
	assert.True(t, diffs["http://a.test/"].Empty())

	// Nothing is due before the interval elapses
	clock = clock.Add(30 * time.Minute)
	assert.Nil(t, s.RunDue(context.Background()))
	assert.Equal(t, 1, c.calls["http://a.test/"])

	clock = clock.Add(time.Hour)
	diffs = s.RunDue(context.Background())
	assert.Equal(t, []string{"http://a.test/new"}, diffs["http://a.test/"].Added)
	assert.Equal(t, []string{"http://a.test/old"}, diffs["http://a.test/"].Removed)
	assert.True(t, diffs["http://b.test/"].Empty())

	// State survives a restart
	restarted := NewScheduler(c, []string{"http://a.test/"}, time.Hour, orchestrate.Options{Depth: 2}, stateDir, logrus.NewEntry(log))
	require.NoError(t, restarted.Load())
	state, ok := restarted.State("http://a.test/")
	require.True(t, ok)
	assert.Equal(t, []string{"http://a.test/", "http://a.test/new"}, state.Pages)
}

func TestScheduler_CancelledRunNotRecorded(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := &scriptedCrawler{pages: map[string][][]string{"s": {{"s"}}}, calls: map[string]int{}}
	s := NewScheduler(c, []string{"s"}, time.Hour, orchestrate.Options{Depth: 1}, t.TempDir(), logrus.NewEntry(log))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	diffs := s.RunDue(ctx)

	assert.Empty(t, diffs)
	_, ok := s.State("s")
	assert.False(t, ok, "an interrupted crawl leaves the seed due")
}

func TestCalculateTickInterval(t *testing.T) {
	assert.Equal(t, time.Minute, calculateTickInterval(5*time.Minute))
	assert.Equal(t, 6*time.Minute, calculateTickInterval(time.Hour))
	assert.Equal(t, 10*time.Minute, calculateTickInterval(24*time.Hour))
}
