// Package episodic keeps the append-only, time-ordered log of past
// interactions.
package episodic

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/persist"
)

// document is the persisted shape. NextID survives Clear so ids are never reused.
type document struct {
	NextID   int             `json:"next_id"`
	Episodes []*core.Episode `json:"episodes"`
}

// Log is the episodic memory log.
type Log struct {
	mu       sync.RWMutex
	nextID   int
	episodes []*core.Episode
	store    persist.Store
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New loads the log from store.
func New(ctx context.Context, store persist.Store, opts ...Option) (*Log, error) {
	l := &Log{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}

	var doc document
	if err := store.Load(ctx, &doc); err != nil && !errors.Is(err, persist.ErrNotFound) {
		return nil, errors.Wrap(err, "load episodes")
	}
	l.episodes = doc.Episodes
	l.nextID = doc.NextID

	// Never hand out an id already present in the log
	for _, ep := range l.episodes {
		if n, err := strconv.Atoi(ep.ID); err == nil && n >= l.nextID {
			l.nextID = n + 1
		}
	}

	logging.For("episodic").Info().
		Int("episodes", len(l.episodes)).
		Int("next_id", l.nextID).
		Msg("episodic log loaded")
	return l, nil
}

// Append records one interaction and returns it with its assigned id.
// A non-nil error is a persistence failure; the episode is still recorded
// in memory and the returned episode is valid.
func (l *Log) Append(ctx context.Context, userMessage, agentResponse string, toolsUsed []string, epCtx map[string]interface{}) (*core.Episode, error) {
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	if epCtx == nil {
		epCtx = map[string]interface{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ep := &core.Episode{
		ID:            strconv.Itoa(l.nextID),
		Timestamp:     l.now(),
		UserMessage:   userMessage,
		AgentResponse: agentResponse,
		ToolsUsed:     toolsUsed,
		Context:       epCtx,
	}
	l.nextID++
	l.episodes = append(l.episodes, ep)

	return copyEpisode(ep), l.save(ctx)
}

// Recent returns the last n episodes, oldest first.
func (l *Log) Recent(n int) []core.Episode {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return []core.Episode{}
	}
	start := len(l.episodes) - n
	if start < 0 {
		start = 0
	}
	return copyAll(l.episodes[start:])
}

// Get returns the episode with the given id.
func (l *Log) Get(id string) (core.Episode, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, ep := range l.episodes {
		if ep.ID == id {
			return *copyEpisode(ep), true
		}
	}
	return core.Episode{}, false
}

// Search returns episodes whose user message or response contains query,
// case-insensitively, in log order.
func (l *Log) Search(query string) []core.Episode {
	q := strings.ToLower(query)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*core.Episode
	for _, ep := range l.episodes {
		if strings.Contains(strings.ToLower(ep.UserMessage), q) ||
			strings.Contains(strings.ToLower(ep.AgentResponse), q) {
			matched = append(matched, ep)
		}
	}
	return copyAll(matched)
}

// Count returns the number of recorded episodes.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.episodes)
}

// Clear removes every episode. The id counter keeps counting.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.episodes = nil
	if err := l.save(ctx); err != nil {
		return err
	}
	logging.For("episodic").Info().Msg("episodic log cleared")
	return nil
}

// save must be called with mu held.
func (l *Log) save(ctx context.Context) error {
	doc := document{NextID: l.nextID, Episodes: l.episodes}
	if doc.Episodes == nil {
		doc.Episodes = []*core.Episode{}
	}
	if err := l.store.Save(ctx, doc); err != nil {
		logging.For("episodic").Error().Err(err).Msg("failed to save episodes")
		return errors.Wrap(err, "save episodes")
	}
	return nil
}

func copyEpisode(ep *core.Episode) *core.Episode {
	out := *ep
	out.ToolsUsed = make([]string, len(ep.ToolsUsed))
	copy(out.ToolsUsed, ep.ToolsUsed)
	if ep.Context != nil {
		out.Context = make(map[string]interface{}, len(ep.Context))
		for k, v := range ep.Context {
			out.Context[k] = v
		}
	}
	return &out
}

func copyAll(eps []*core.Episode) []core.Episode {
	out := make([]core.Episode, len(eps))
	for i, ep := range eps {
		out[i] = *copyEpisode(ep)
	}
	return out
}
