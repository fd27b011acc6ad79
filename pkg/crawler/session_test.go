package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	e := newTestEngine(t, engineConfig(1, 1, 1), newGraph(nil))
	s := newSession(context.Background(), e, u("s"), 2)
	t.Cleanup(s.stop)
	return s
}

func TestSession_ClaimFirstWins(t *testing.T) {
	s := newTestSession(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.claim(u("x")) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, []string{u("x")}, s.order)
	assert.Equal(t, models.URLStateFetching, s.states[u("x")])
}

func TestSession_TransitionsFollowStateMachine(t *testing.T) {
	s := newTestSession(t)
	require.True(t, s.claim(u("x")))

	s.transition(u("x"), models.URLStateExtracting)
	assert.Equal(t, models.URLStateExtracting, s.states[u("x")])

	s.transition(u("x"), models.URLStateFetching) // illegal, ignored
	assert.Equal(t, models.URLStateExtracting, s.states[u("x")])

	s.transition(u("x"), models.URLStateDone)
	assert.Equal(t, models.URLStateDone, s.states[u("x")])

	s.transition(u("x"), models.URLStateFailed) // terminal, ignored
	assert.Equal(t, models.URLStateDone, s.states[u("x")])
}

func TestSession_FailMergesErrors(t *testing.T) {
	s := newTestSession(t)
	require.True(t, s.claim(u("x")))

	first := utils.NewFetchError(u("x"), errors.New("first"))
	second := utils.NewExtractError(u("x"), errors.New("second"))
	s.fail(u("x"), first)
	s.fail(u("x"), second)

	result := s.result()
	require.Contains(t, result.Errors, u("x"))
	assert.ErrorIs(t, result.Errors[u("x")], utils.ErrFetch)
	assert.ErrorIs(t, result.Errors[u("x")], utils.ErrExtract)
	assert.Empty(t, result.Visited)
	assert.Equal(t, models.URLStateFailed, s.states[u("x")])
}

func TestSession_ResultExcludesFailedAndKeepsOrder(t *testing.T) {
	s := newTestSession(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		require.True(t, s.claim(u(name)))
	}
	s.fail(u("b"), errors.New("nope"))

	result := s.result()

	assert.Equal(t, []string{u("a"), u("c"), u("d")}, result.Visited)
	assert.Len(t, result.Errors, 1)
}

func TestSession_CompletionErr(t *testing.T) {
	s := newTestSession(t)
	clean := models.NewCrawlResult()
	assert.NoError(t, s.completionErr(clean, true))

	withShutdown := models.NewCrawlResult()
	withShutdown.Errors[u("x")] = utils.NewURLError(utils.ErrShutdown, u("x"), nil)
	assert.ErrorIs(t, s.completionErr(withShutdown, true), utils.ErrShutdown)

	assert.ErrorIs(t, s.completionErr(clean, false), utils.ErrShutdown,
		"leaving before quiescence without caller cancellation means the engine stopped")
}

func TestSession_CompletionErrCallerCancelled(t *testing.T) {
	e := newTestEngine(t, engineConfig(1, 1, 1), newGraph(nil))
	ctx, cancel := context.WithCancel(context.Background())
	s := newSession(ctx, e, u("s"), 2)
	defer s.stop()
	cancel()

	withCancelled := models.NewCrawlResult()
	withCancelled.Errors[u("x")] = utils.NewFetchError(u("x"), context.Canceled)

	assert.ErrorIs(t, s.completionErr(withCancelled, true), context.Canceled)
	assert.ErrorIs(t, s.completionErr(models.NewCrawlResult(), false), context.Canceled)
	assert.NoError(t, s.completionErr(models.NewCrawlResult(), true),
		"a crawl that finished cleanly is not reported as interrupted")
}
