package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	classifierx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/classifier"
	composerx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/composer"
	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	routerx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/router"
	statex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/state"
	toolx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/tool"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

type fakeClassifier struct {
	decision contractx.Decision
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(ctx context.Context, query string, convo contractx.Context) (contractx.Decision, error) {
	f.calls++
	if f.err != nil {
		return contractx.Decision{}, f.err
	}
	return f.decision, nil
}

type fakeRouter struct {
	out   contractx.Outcome
	err   error
	calls int
}

func (f *fakeRouter) Route(ctx context.Context, decision contractx.Decision, query string, convo contractx.Context) (contractx.Outcome, error) {
	f.calls++
	return f.out, f.err
}

type fakeStore struct {
	sessions map[string]*statex.Session
	saveErr  error
	saved    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*statex.Session)}
}

func (f *fakeStore) Load(ctx context.Context, sessionID string) (*statex.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, statex.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) Save(ctx context.Context, s *statex.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved++
	f.sessions[s.SessionID] = s
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

// newFullOrchestrator wires the real pipeline over the fixture warehouse.
func newFullOrchestrator(t *testing.T, store statex.Store, cfg Config) *Orchestrator {
	t.Helper()

	registry := toolx.NewRegistry()
	for _, tl := range toolx.Catalog(warehousex.NewFixture(time.Now())) {
		if err := registry.Register(tl); err != nil {
			t.Fatalf("Register(%s) error = %v", tl.Name, err)
		}
	}
	router, err := routerx.New(registry, routerx.Config{})
	if err != nil {
		t.Fatalf("router.New() error = %v", err)
	}

	o, err := New(context.Background(), store, classifierx.NewRules(), router, composerx.New(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestHandleQueryInvalidInput(t *testing.T) {
	t.Parallel()

	o := newFullOrchestrator(t, statex.NewMemoryStore(), Config{})

	if _, err := o.HandleQuery(context.Background(), "   ", "hello"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, err := o.HandleQuery(context.Background(), "s1", "   "); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestHandleQuerySimpleFactsEndToEnd(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newFullOrchestrator(t, store, Config{})

	result, err := o.HandleQuery(context.Background(), "s1", "What's our revenue?")
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if result.Trace.Route != contractx.RouteSimpleFacts {
		t.Fatalf("route = %s, want simple_facts", result.Trace.Route)
	}
	if !strings.Contains(result.Answer, "RM") {
		t.Fatalf("answer missing currency: %q", result.Answer)
	}
	if result.Trace.Degraded || result.Trace.Partial {
		t.Fatalf("unexpected trace flags: %+v", result.Trace)
	}
	if len(result.Trace.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(result.Trace.Calls))
	}

	session, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(session.Exchanges) != 1 {
		t.Fatalf("session has %d exchanges, want 1", len(session.Exchanges))
	}
	if session.Exchanges[0].Query != "What's our revenue?" {
		t.Fatalf("stored query = %q", session.Exchanges[0].Query)
	}
}

func TestHandleQueryFollowUpResolvesLastQuarter(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newFullOrchestrator(t, store, Config{})

	if _, err := o.HandleQuery(context.Background(), "s1", "What's our revenue?"); err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}

	result, err := o.HandleQuery(context.Background(), "s1", "what about last quarter?")
	if err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if result.Trace.Route != contractx.RouteConversation {
		t.Fatalf("route = %s, want conversation", result.Trace.Route)
	}

	now := time.Now()
	year, quarter := now.Year(), (int(now.Month())-1)/3
	if quarter == 0 {
		year, quarter = year-1, 4
	}
	wantPeriod := fmt.Sprintf("Q%d %d", quarter, year)
	if !strings.Contains(result.Answer, wantPeriod) {
		t.Fatalf("answer = %q, want mention of %s", result.Answer, wantPeriod)
	}

	session, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(session.Exchanges) != 2 {
		t.Fatalf("session has %d exchanges, want 2", len(session.Exchanges))
	}
}

func TestHandleQueryClassifierFailureDegradesToConversation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router := &fakeRouter{}

	o, err := New(context.Background(), store,
		&fakeClassifier{err: errors.New("model unreachable")},
		router, composerx.New(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := o.HandleQuery(context.Background(), "s1", "What's our revenue?")
	if err != nil {
		t.Fatalf("classifier failure must not surface, got %v", err)
	}
	if result.Trace.Route != contractx.RouteConversation {
		t.Fatalf("route = %s, want conversation fallback", result.Trace.Route)
	}
	if !result.Trace.Degraded {
		t.Fatal("degraded flag must be set")
	}
	if router.calls != 1 {
		t.Fatalf("router called %d times, want 1", router.calls)
	}
	if store.saved != 1 {
		t.Fatalf("expected one save, got %d", store.saved)
	}
}

func TestHandleQueryRouteFailureSavesMarkerExchange(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	failing := &fakeRouter{
		out: contractx.Outcome{Calls: []contractx.ToolCall{
			{Tool: toolx.ToolKPISnapshot, Failed: true, Error: "db down"},
		}},
		err: fmt.Errorf("%w: kpi.snapshot: db down", contractx.ErrToolFailure),
	}

	o, err := New(context.Background(), store,
		&fakeClassifier{decision: contractx.Decision{Route: contractx.RouteSimpleFacts}},
		failing, composerx.New(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := o.HandleQuery(context.Background(), "s1", "What's our revenue?")
	if err != nil {
		t.Fatalf("route failure must not surface, got %v", err)
	}
	if !result.Trace.Degraded || !result.Trace.Partial {
		t.Fatalf("trace flags = %+v, want degraded and partial", result.Trace)
	}
	if strings.Contains(result.Answer, "db down") {
		t.Fatalf("internal error leaked into answer: %q", result.Answer)
	}

	session, ok := store.sessions["s1"]
	if !ok || len(session.Exchanges) != 1 {
		t.Fatalf("marker exchange not saved: %#v", session)
	}
	marker := session.Exchanges[0]
	if !marker.Degraded {
		t.Fatal("marker exchange must be degraded")
	}
	if len(marker.ToolCalls) != 1 || !marker.ToolCalls[0].Failed {
		t.Fatalf("marker must carry the failed call: %#v", marker.ToolCalls)
	}
}

func TestHandleQuerySaveErrorPropagates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.saveErr = errors.New("storage offline")

	o, err := New(context.Background(), store,
		&fakeClassifier{decision: contractx.Decision{Route: contractx.RouteConversation}},
		&fakeRouter{}, composerx.New(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := o.HandleQuery(context.Background(), "s1", "hello"); err == nil {
		t.Fatal("expected save error to propagate")
	}
}

func TestHandleQueryFoldsBeyondWindow(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newFullOrchestrator(t, store, Config{MemoryWindow: 2})

	for i := 0; i < 3; i++ {
		if _, err := o.HandleQuery(context.Background(), "s1", fmt.Sprintf("kpi report %d", i)); err != nil {
			t.Fatalf("HandleQuery(%d) error = %v", i, err)
		}
	}

	session, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(session.Exchanges) != 2 {
		t.Fatalf("window holds %d exchanges, want 2", len(session.Exchanges))
	}
	if session.Folds != 1 {
		t.Fatalf("folds = %d, want 1", session.Folds)
	}
	if !strings.Contains(session.Summary, "kpi report 0") {
		t.Fatalf("summary should digest the evicted exchange: %q", session.Summary)
	}
}

func TestExpireSession(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newFullOrchestrator(t, store, Config{})

	if _, err := o.HandleQuery(context.Background(), "s1", "What's our revenue?"); err != nil {
		t.Fatalf("HandleQuery() error = %v", err)
	}
	if err := o.ExpireSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ExpireSession() error = %v", err)
	}
	if _, err := store.Load(context.Background(), "s1"); !errors.Is(err, statex.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}

	// Expiring a missing session is fine.
	if err := o.ExpireSession(context.Background(), "never-existed"); err != nil {
		t.Fatalf("ExpireSession(missing) error = %v", err)
	}
}

func TestSequentialQueriesPerSessionKeepOrder(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newFullOrchestrator(t, store, Config{})

	queries := []string{"What's our revenue?", "current call volume", "kpi report"}
	for _, q := range queries {
		if _, err := o.HandleQuery(context.Background(), "s1", q); err != nil {
			t.Fatalf("HandleQuery(%q) error = %v", q, err)
		}
	}

	session, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(session.Exchanges) != len(queries) {
		t.Fatalf("session has %d exchanges, want %d", len(session.Exchanges), len(queries))
	}
	for i, q := range queries {
		if session.Exchanges[i].Query != q {
			t.Fatalf("exchanges[%d] = %q, want %q", i, session.Exchanges[i].Query, q)
		}
	}
}
