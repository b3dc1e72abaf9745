// Package documents provides the state shared by the import and export
// transaction composers: the session state machine, the single-submission
// guard and close hooks.
package documents

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"dentalstock/internal/core/apperror"
	"dentalstock/pkg/logger"
)

// Kind names a document type.
type Kind string

const (
	KindImport Kind = "import" // Phiếu nhập kho
	KindExport Kind = "export" // Phiếu xuất kho
)

// State is the composer lifecycle:
//
//	Empty → Editing → Validating → Submitting → Closed
//	                      ↘             ↘
//	                       Editing (with LastError)
type State int

const (
	StateEmpty State = iota
	StateEditing
	StateValidating
	StateSubmitting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// CloseReason tells OnClosed hooks why a composer closed.
type CloseReason int

const (
	// ClosedSubmitted means the document was accepted by the service.
	ClosedSubmitted CloseReason = iota
	// ClosedDiscarded means the operator closed the composer without submitting.
	ClosedDiscarded
)

// ClosedHook runs after a composer closes.
type ClosedHook func(ctx context.Context, kind Kind, reason CloseReason)

// Session holds the lifecycle state of one composer. Composers embed it and
// guard their own document with Mu.
type Session struct {
	Mu   sync.Mutex
	Kind Kind
	Log  *logger.Logger

	state   State
	lastErr error
	hooks   []ClosedHook
}

// NewSession creates a session in StateEmpty.
func NewSession(kind Kind, log *logger.Logger) Session {
	if log == nil {
		log = logger.Default()
	}
	return Session{
		Kind: kind,
		Log:  log.WithComponent(string(kind) + "-composer"),
	}
}

// OnClosed registers a hook fired after the composer closes.
func (s *Session) OnClosed(hook ClosedHook) {
	s.Mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.Mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.state
}

// LastError returns the error of the last failed validation or submission.
func (s *Session) LastError() error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.lastErr
}

// CheckEditableLocked returns an error unless lines may be changed. Callers
// hold Mu.
func (s *Session) CheckEditableLocked() error {
	switch s.state {
	case StateClosed:
		return apperror.NewConflict(apperror.CodeComposerClosed, "composer is closed")
	case StateSubmitting:
		return apperror.NewConflict(apperror.CodeSubmissionInProgress, "document is being submitted")
	}
	return nil
}

// TouchLocked moves the session to Editing after a successful edit. Callers
// hold Mu.
func (s *Session) TouchLocked(lines int) {
	if lines == 0 {
		s.state = StateEmpty
		return
	}
	s.state = StateEditing
}

// Submit runs one submission attempt. Under Mu it calls prepare, which
// validates the document and returns the send function; send then runs
// without the lock. Only one attempt may be in flight. On success, clear
// runs under Mu and the session closes; on failure the document is kept
// untouched and the error is recorded.
func (s *Session) Submit(ctx context.Context, prepare func() (send func(context.Context) error, err error), clear func()) error {
	s.Mu.Lock()
	if err := s.CheckEditableLocked(); err != nil {
		s.Mu.Unlock()
		return err
	}
	prev := s.state
	s.state = StateValidating
	send, err := prepare()
	if err != nil {
		s.state = prev
		s.lastErr = err
		s.Mu.Unlock()
		s.Log.WithContext(ctx).Infow("document validation failed", "error", err)
		return err
	}
	s.state = StateSubmitting
	s.Mu.Unlock()

	err = send(ctx)

	s.Mu.Lock()
	if err != nil {
		s.state = StateEditing
		s.lastErr = apperror.NewSubmission(string(s.Kind), err)
		err = s.lastErr
		s.Mu.Unlock()
		s.Log.WithContext(ctx).Warnw("document submission failed",
			"error", err,
			"retryable", apperror.IsRetryable(err))
		return err
	}
	clear()
	s.lastErr = nil
	s.state = StateClosed
	hooks := append([]ClosedHook(nil), s.hooks...)
	s.Mu.Unlock()

	s.Log.WithContext(ctx).Infow("document submitted")
	runHooks(ctx, s.Log, hooks, s.Kind, ClosedSubmitted)
	return nil
}

// Discard closes the session without submitting. It is refused while a
// submission is in flight.
func (s *Session) Discard(ctx context.Context, clear func()) error {
	s.Mu.Lock()
	switch s.state {
	case StateClosed:
		s.Mu.Unlock()
		return nil
	case StateSubmitting:
		s.Mu.Unlock()
		return apperror.NewConflict(apperror.CodeSubmissionInProgress, "document is being submitted")
	}
	clear()
	s.lastErr = nil
	s.state = StateClosed
	hooks := append([]ClosedHook(nil), s.hooks...)
	s.Mu.Unlock()

	runHooks(ctx, s.Log, hooks, s.Kind, ClosedDiscarded)
	return nil
}

func runHooks(ctx context.Context, log *logger.Logger, hooks []ClosedHook, kind Kind, reason CloseReason) {
	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithContext(ctx).Errorw("close hook panic recovered", "panic", r)
				}
			}()
			h(ctx, kind, reason)
		}()
	}
}

// NormalizeText trims s and converts it to NFC, so lot numbers and notes
// typed with decomposed Vietnamese diacritics compare equal.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
