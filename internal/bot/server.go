package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"grimoire/internal/task"
)

// Handler is one interaction handler. Setup recovers persisted state and
// re-arms timers; Handle reports whether it claimed the interaction;
// Dispose cancels every token the handler owns.
type Handler interface {
	Setup(ctx context.Context) error
	Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error)
	Dispose()
}

// Server owns the gateway session and dispatches interactions to its
// handlers. The process-wide lock totally orders interaction handling
// and the shutdown sequence: at most one interaction is in flight at a
// time.
type Server struct {
	session  *discordgo.Session
	lock     *task.Lock
	log      *slog.Logger
	handlers []Handler
}

func NewServer(token string, lock *task.Lock, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	s := &Server{
		session: session,
		lock:    lock,
		log:     logger,
	}
	session.AddHandler(func(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
		s.dispatch(ic)
	})
	return s, nil
}

// Session exposes the gateway session for handlers that need a
// Messenger.
func (s *Server) Session() *discordgo.Session {
	return s.session
}

func (s *Server) AddHandler(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Start opens the gateway connection and runs every handler's recovery
// bootstrap.
func (s *Server) Start(ctx context.Context) error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	for _, h := range s.handlers {
		if err := h.Setup(ctx); err != nil {
			return fmt.Errorf("handler setup: %w", err)
		}
	}
	return nil
}

// Shutdown cancels every owned token, then closes the session under the
// process lock so no interaction is half-handled when the gateway drops.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, h := range s.handlers {
		h.Dispose()
	}

	if err := s.lock.Acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release()
	return s.session.Close()
}

func (s *Server) dispatch(ic *discordgo.InteractionCreate) {
	ctx := context.Background()
	if err := s.lock.Acquire(ctx); err != nil {
		return
	}
	defer s.lock.Release()

	traceID := uuid.NewString()
	for _, h := range s.handlers {
		claimed, err := h.Handle(ctx, ic)
		if err != nil {
			s.log.Error("interaction failed", "trace_id", traceID, "user_id", interactionUserID(ic), "err", err)
			return
		}
		if claimed {
			return
		}
	}
}
