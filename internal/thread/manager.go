// Package thread maintains the bounded per-conversation message windows
// and owns the relevance-grouping algorithm that assigns incoming messages
// to threads.
package thread

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/groundcrew-ai/alignment-engine/internal/model"
	"github.com/groundcrew-ai/alignment-engine/pkg/logger"
	"github.com/groundcrew-ai/alignment-engine/pkg/metrics"
)

// ContinuationChecker is the slice of the classifier adapter the manager
// needs for ambiguous relevance decisions.
type ContinuationChecker interface {
	IsContinuation(ctx context.Context, messageText, threadSummary string) (bool, error)
}

// Options bound the manager's windows.
type Options struct {
	// MaxWindow caps messages kept per thread, oldest dropped first.
	MaxWindow int
	// TimeWindow is how recently a thread must have been active to be a
	// fast-path candidate.
	TimeWindow time.Duration
	// MaxThreadsPerChannel caps live threads per channel; the least
	// recently active thread is evicted past the cap. Soft state only.
	MaxThreadsPerChannel int
	// CheckTimeout bounds each continuation call.
	CheckTimeout time.Duration
}

type threadState struct {
	mu     sync.Mutex
	thread model.Thread
}

// Manager resolves messages to threads and maintains their windows.
// Windows are in-memory soft state; correctness does not depend on
// surviving a restart.
type Manager struct {
	checker ContinuationChecker
	logger  *logger.Logger
	opts    Options

	mu       sync.RWMutex
	threads  map[string]*threadState
	channels map[string]map[string]*threadState
}

// NewManager creates a thread context manager.
func NewManager(checker ContinuationChecker, opts Options, log *logger.Logger) *Manager {
	if opts.MaxWindow <= 0 {
		opts.MaxWindow = 20
	}
	if opts.TimeWindow <= 0 {
		opts.TimeWindow = 10 * time.Minute
	}
	if opts.MaxThreadsPerChannel <= 0 {
		opts.MaxThreadsPerChannel = 64
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 15 * time.Second
	}
	return &Manager{
		checker:  checker,
		logger:   log,
		opts:     opts,
		threads:  make(map[string]*threadState),
		channels: make(map[string]map[string]*threadState),
	}
}

// Resolve assigns the message to a thread, creating one rooted at the
// message when no candidate accepts it. Message ingestion never blocks on
// classifier availability: a failed continuation check falls back to the
// fast-path-only decision, which is a new thread.
func (m *Manager) Resolve(ctx context.Context, msg model.Message) string {
	now := msg.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	// Explicit reply pointer from the platform.
	if msg.ThreadID != "" {
		if st := m.get(msg.ThreadID); st != nil && st.thread.ChannelID == msg.ChannelID {
			st.mu.Lock()
			fastPath := st.thread.HasParticipant(msg.AuthorID) &&
				now.Sub(st.thread.LastActivityAt) <= m.opts.TimeWindow
			summary := summarize(st.thread.Messages)
			st.mu.Unlock()

			if fastPath {
				return msg.ThreadID
			}
			// Boundary case: pointer present but participants or recency
			// disagree. Let the continuation check decide.
			if m.isContinuation(ctx, msg.Text, summary) {
				return msg.ThreadID
			}
			return msg.ID
		}
		// Pointer to a thread we never saw (evicted or pre-dates us):
		// root a window under that ID so later replies regroup.
		return msg.ThreadID
	}

	// No pointer: the most recently active in-window thread is the only
	// candidate, and only the continuation check can attach to it.
	candidate := m.mostRecent(msg.ChannelID, now)
	if candidate == nil {
		return msg.ID
	}

	candidate.mu.Lock()
	threadID := candidate.thread.ID
	summary := summarize(candidate.thread.Messages)
	candidate.mu.Unlock()

	if m.isContinuation(ctx, msg.Text, summary) {
		return threadID
	}
	return msg.ID
}

// Append stores the message in the thread's window, creating the thread if
// needed. Strict FIFO eviction past the window cap; updates participants
// and last activity.
func (m *Manager) Append(threadID string, msg model.Message) {
	st := m.getOrCreate(threadID, msg.ChannelID)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.thread.Messages = append(st.thread.Messages, msg)
	if len(st.thread.Messages) > m.opts.MaxWindow {
		st.thread.Messages = st.thread.Messages[1:]
	}
	if !st.thread.HasParticipant(msg.AuthorID) {
		st.thread.ParticipantIDs = append(st.thread.ParticipantIDs, msg.AuthorID)
	}
	if ts := msg.Timestamp; !ts.IsZero() {
		st.thread.LastActivityAt = ts
	} else {
		st.thread.LastActivityAt = time.Now()
	}
}

// Window returns the thread's messages in arrival order.
func (m *Manager) Window(threadID string) []model.Message {
	st := m.get(threadID)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]model.Message(nil), st.thread.Messages...)
}

// Summary renders the thread window for classifier context.
func (m *Manager) Summary(threadID string) string {
	return summarize(m.Window(threadID))
}

func summarize(msgs []model.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		if msg.IsBot || msg.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "<@%s>: %s\n", msg.AuthorID, msg.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Manager) isContinuation(ctx context.Context, text, summary string) bool {
	if m.checker == nil || summary == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.CheckTimeout)
	defer cancel()

	start := time.Now()
	cont, err := m.checker.IsContinuation(ctx, text, summary)
	metrics.RecordClassifierCall("is_continuation", err, time.Since(start).Seconds())
	if err != nil {
		m.logger.Debug("continuation check failed, starting new thread", zap.Error(err))
		return false
	}
	return cont
}

func (m *Manager) get(threadID string) *threadState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threads[threadID]
}

func (m *Manager) getOrCreate(threadID, channelID string) *threadState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.threads[threadID]; ok {
		return st
	}

	// Stamp activity at creation so the new thread is never the eviction
	// victim before its first message lands.
	st := &threadState{thread: model.Thread{
		ID:             threadID,
		ChannelID:      channelID,
		LastActivityAt: time.Now(),
	}}
	m.threads[threadID] = st
	if m.channels[channelID] == nil {
		m.channels[channelID] = make(map[string]*threadState)
	}
	m.channels[channelID][threadID] = st
	m.evictLocked(channelID)
	metrics.ThreadsActive.WithLabelValues(channelID).Set(float64(len(m.channels[channelID])))
	return st
}

// evictLocked drops the least recently active thread once the per-channel
// cap is exceeded. Requires m.mu held.
func (m *Manager) evictLocked(channelID string) {
	chans := m.channels[channelID]
	if len(chans) <= m.opts.MaxThreadsPerChannel {
		return
	}

	var oldestID string
	var oldestAt time.Time
	for id, st := range chans {
		st.mu.Lock()
		at := st.thread.LastActivityAt
		st.mu.Unlock()
		if oldestID == "" || at.Before(oldestAt) {
			oldestID = id
			oldestAt = at
		}
	}
	delete(chans, oldestID)
	delete(m.threads, oldestID)
}

// mostRecent returns the channel's most recently active thread within the
// time window, or nil.
func (m *Manager) mostRecent(channelID string, now time.Time) *threadState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *threadState
	var bestAt time.Time
	for _, st := range m.channels[channelID] {
		st.mu.Lock()
		at := st.thread.LastActivityAt
		st.mu.Unlock()
		if now.Sub(at) > m.opts.TimeWindow {
			continue
		}
		if best == nil || at.After(bestAt) {
			best = st
			bestAt = at
		}
	}
	return best
}
