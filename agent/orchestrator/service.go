// Package orchestrator wires classification, tool routing, response
// composition, and session memory into a single query pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	statex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/state"
)

var (
	ErrInvalidSession = errors.New("orchestrator: session id must not be empty")
	ErrInvalidQuery   = errors.New("orchestrator: query must not be empty")
)

const defaultWindow = 10

type Config struct {
	// MemoryWindow is the number of recent exchanges kept verbatim per session.
	MemoryWindow int
}

func (c Config) withDefaults() Config {
	if c.MemoryWindow <= 0 {
		c.MemoryWindow = defaultWindow
	}
	return c
}

type Option func(*Orchestrator)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFoldPolicy overrides how evicted exchanges fold into the session summary.
func WithFoldPolicy(fold statex.FoldPolicy) Option {
	return func(o *Orchestrator) {
		if fold != nil {
			o.fold = fold
		}
	}
}

// Orchestrator runs the query pipeline. Queries for the same session are
// serialized; different sessions run concurrently.
type Orchestrator struct {
	store      statex.Store
	classifier contractx.Classifier
	router     contractx.Router
	composer   contractx.Composer

	window int
	fold   statex.FoldPolicy
	now    func() time.Time

	runner compose.Runnable[GraphInput, contractx.Result]

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func New(
	ctx context.Context,
	store statex.Store,
	classifier contractx.Classifier,
	router contractx.Router,
	composer contractx.Composer,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", contractx.ErrValidation)
	}
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is nil", contractx.ErrValidation)
	}
	if router == nil {
		return nil, fmt.Errorf("%w: router is nil", contractx.ErrValidation)
	}
	if composer == nil {
		return nil, fmt.Errorf("%w: composer is nil", contractx.ErrValidation)
	}

	cfg = cfg.withDefaults()

	o := &Orchestrator{
		store:      store,
		classifier: classifier,
		router:     router,
		composer:   composer,
		window:     cfg.MemoryWindow,
		fold:       statex.DigestFold{},
		now:        time.Now,
		locks:      make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(o)
	}

	runner, err := o.compileHandleQueryGraph(ctx)
	if err != nil {
		return nil, err
	}
	o.runner = runner

	return o, nil
}

// HandleQuery runs one user query through the full pipeline and returns
// the composed answer with its execution trace. The session is updated
// even when tool execution fails; only validation and persistence errors
// surface to the caller.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, query string) (contractx.Result, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	started := o.now()
	result, err := o.runner.Invoke(ctx, GraphInput{SessionID: sessionID, Query: query})
	if err != nil {
		return contractx.Result{}, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("route", string(result.Trace.Route)).
		Bool("degraded", result.Trace.Degraded).
		Bool("partial", result.Trace.Partial).
		Int("tool_calls", len(result.Trace.Calls)).
		Dur("elapsed", o.now().Sub(started)).
		Msg("query handled")

	return result, nil
}

// ExpireSession drops a session's memory. Missing sessions are not an error.
func (o *Orchestrator) ExpireSession(ctx context.Context, sessionID string) error {
	unlock := o.lockSession(sessionID)
	defer unlock()

	if err := o.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, statex.ErrSessionNotFound) {
		return err
	}
	return nil
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		o.locks[sessionID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, sessionID)
		}
		o.mu.Unlock()
	}
}
