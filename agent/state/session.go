package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
)

var (
	ErrNilSession     = errors.New("session is nil")
	ErrInvalidSession = errors.New("session id is empty")
)

// Session is the conversation-scoped container for one user interaction
// stream: a bounded window of exchanges plus a summary folding anything
// evicted from the window. Exchange order is insertion order and is the
// sole ordering signal for context construction.
type Session struct {
	SessionID string               `json:"session_id"`
	Exchanges []contractx.Exchange `json:"exchanges,omitempty"`
	Summary   string               `json:"summary,omitempty"`
	Folds     int                  `json:"folds"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func NewSession(sessionID string, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// FoldPolicy absorbs an evicted exchange into the running summary. It
// must be deterministic given the same (summary, evicted) input.
type FoldPolicy interface {
	Fold(summary string, evicted contractx.Exchange) string
}

// Append adds an exchange and evicts past the window size, folding each
// evicted exchange into the summary exactly once.
func (s *Session) Append(ex contractx.Exchange, window int, fold FoldPolicy, now time.Time) error {
	if s == nil {
		return ErrNilSession
	}
	if window <= 0 {
		return fmt.Errorf("%w: memory window must be > 0", contractx.ErrValidation)
	}
	if fold == nil {
		fold = DigestFold{}
	}

	s.Exchanges = append(s.Exchanges, ex)
	for len(s.Exchanges) > window {
		evicted := s.Exchanges[0]
		s.Exchanges = append([]contractx.Exchange(nil), s.Exchanges[1:]...)
		s.Summary = fold.Fold(s.Summary, evicted)
		s.Folds++
	}
	s.Touch(now)
	return nil
}

// Context returns the summary plus the full current window.
func (s *Session) Context() contractx.Context {
	if s == nil {
		return contractx.Context{}
	}
	return contractx.Context{
		Summary: s.Summary,
		Window:  append([]contractx.Exchange(nil), s.Exchanges...),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *Session) Validate() error {
	if s == nil {
		return ErrNilSession
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	for i, ex := range s.Exchanges {
		if !ex.Route.Valid() {
			return fmt.Errorf("%w: exchange %d has invalid route %q", contractx.ErrValidation, i, ex.Route)
		}
	}
	return nil
}

const defaultSummaryLimit = 2000

// DigestFold is the default deterministic folding policy: it appends a
// one-line digest of the evicted exchange and trims the oldest digests
// once the summary exceeds MaxLen.
type DigestFold struct {
	// MaxLen bounds the summary length; defaults to 2000 bytes.
	MaxLen int
}

func (d DigestFold) Fold(summary string, evicted contractx.Exchange) string {
	limit := d.MaxLen
	if limit <= 0 {
		limit = defaultSummaryLimit
	}

	digest := digestExchange(evicted)
	if summary == "" {
		summary = digest
	} else {
		summary = summary + " | " + digest
	}

	// Trim whole digests from the front until within the limit.
	for len(summary) > limit {
		idx := strings.Index(summary, " | ")
		if idx < 0 {
			return summary[len(summary)-limit:]
		}
		summary = summary[idx+3:]
	}
	return summary
}

func digestExchange(ex contractx.Exchange) string {
	answer := firstLine(ex.Answer)
	if len(answer) > 160 {
		answer = answer[:160]
	}
	return fmt.Sprintf("[%s] q=%q a=%q", ex.Route, firstLine(ex.Query), answer)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
