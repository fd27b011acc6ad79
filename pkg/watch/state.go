package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

const stateFileName = "watch_state.yaml"

// SeedState contains the last run information for a seed
type SeedState struct {
	LastRunTime    time.Time `yaml:"last_run_time"`
	LastRunSuccess bool      `yaml:"last_run_success"`
	Visited        int       `yaml:"visited"`
	Failed         int       `yaml:"failed"`
	Pages          []string  `yaml:"pages,omitempty"` // Sorted visited URLs of the last run
	ErrorMessage   string    `yaml:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watch scheduler
type WatchState struct {
	Seeds     map[string]SeedState `yaml:"seeds"`
	UpdatedAt time.Time            `yaml:"updated_at"`
}

// Diff lists pages that appeared or disappeared between two runs of a seed.
type Diff struct {
	Added   []string
	Removed []string
}

// Empty reports whether nothing changed
func (d Diff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Seeds: make(map[string]SeedState),
		},
	}
}

// Load loads the state from disk. A missing file means a fresh state.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Seeds: make(map[string]SeedState)}
			return nil
		}
		return fmt.Errorf("%w: read state file: %w", utils.ErrFilesystem, err)
	}

	var loaded WatchState
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("%w: parse state file: %w", utils.ErrParsing, err)
	}
	if loaded.Seeds == nil {
		loaded.Seeds = make(map[string]SeedState)
	}
	m.state = loaded
	return nil
}

// Save writes the state to disk, replacing the previous file atomically
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: create state directory: %w", utils.ErrFilesystem, err)
	}
	data, err := yaml.Marshal(&m.state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write state file: %w", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("%w: replace state file: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// GetSeedState returns the state for a specific seed
func (m *StateManager) GetSeedState(seed string) (SeedState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Seeds[seed]
	return state, ok
}

// Record stores the outcome of one crawl of res.Seed and returns the page
// changes against the last successful run. A failed run keeps the previous
// page list, so the next success is compared against it.
func (m *StateManager) Record(res orchestrate.SeedResult, at time.Time) Diff {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, hadPrev := m.state.Seeds[res.Seed]
	next := SeedState{
		LastRunTime:    at,
		LastRunSuccess: res.Success(),
		Pages:          prev.Pages,
	}
	if res.Error != nil {
		next.ErrorMessage = res.Error.Error()
	}
	if res.Result != nil {
		next.Visited = len(res.Result.Visited)
		next.Failed = len(res.Result.Errors)
	}

	var diff Diff
	if res.Success() && res.Result != nil {
		pages := append([]string(nil), res.Result.Visited...)
		sort.Strings(pages)
		if hadPrev {
			diff = diffSorted(prev.Pages, pages)
		}
		next.Pages = pages
	}
	m.state.Seeds[res.Seed] = next
	return diff
}

// ShouldRun checks if a seed is due based on the interval
func (m *StateManager) ShouldRun(seed string, interval time.Duration, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Seeds[seed]
	if !ok {
		return true
	}
	return now.Sub(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the seed should next run
func (m *StateManager) GetNextRunTime(seed string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Seeds[seed]
	if !ok {
		return time.Now()
	}
	return state.LastRunTime.Add(interval)
}

// diffSorted compares two sorted URL lists.
func diffSorted(old, cur []string) Diff {
	var d Diff
	i, j := 0, 0
	for i < len(old) && j < len(cur) {
		switch {
		case old[i] == cur[j]:
			i++
			j++
		case old[i] < cur[j]:
			d.Removed = append(d.Removed, old[i])
			i++
		default:
			d.Added = append(d.Added, cur[j])
			j++
		}
	}
	d.Removed = append(d.Removed, old[i:]...)
	d.Added = append(d.Added, cur[j:]...)
	return d
}
