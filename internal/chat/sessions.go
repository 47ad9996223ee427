package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type session struct {
	ctrl *Controller
	refs int
}

// Sessions runs sends through one controller per day transcript, so each
// chat session has its own send guard. A controller is kept only while a send
// on its day is in flight.
type Sessions struct {
	relay  Relay
	store  Store
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessions creates an empty session set
func NewSessions(r Relay, s Store, cfg Config, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		relay:    r,
		store:    s,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Send runs req on the controller of day. A second send on the same day
// while one is in flight fails with ErrBusy.
func (s *Sessions) Send(ctx context.Context, day string, req Request, onUpdate func(Update)) (*Result, error) {
	ctrl := s.acquire(day)
	defer s.release(day)
	return ctrl.Send(ctx, req, onUpdate)
}

func (s *Sessions) acquire(day string) *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[day]
	if !ok {
		sess = &session{ctrl: New(day, s.relay, s.store, s.cfg, s.logger)}
		s.sessions[day] = sess
	}
	sess.refs++
	return sess.ctrl
}

func (s *Sessions) release(day string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[day]
	if !ok {
		return
	}
	sess.refs--
	if sess.refs <= 0 {
		delete(s.sessions, day)
	}
}

// Active lists the days with a send in flight
func (s *Sessions) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var days []string
	for day, sess := range s.sessions {
		if sess.ctrl.State() != Idle {
			days = append(days, day)
		}
	}
	return days
}
