package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Authenticator interface {
	SignUp(ctx context.Context, email, password string, role model.UserRole, language string) (model.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (model.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (model.AuthSession, error)
	SignOut(ctx context.Context, session model.AuthSession) error
	Authenticate(ctx context.Context, accessToken string) (model.AuthSession, error)
}

type ServerDeps struct {
	Sessions *usecase.SessionUsecase
	Auth     Authenticator
}

type Server struct {
	sessions   *usecase.SessionUsecase
	auth       Authenticator
	log        *log.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

func New(addr string, deps ServerDeps, log *log.Logger) *Server {
	s := &Server{
		sessions: deps.Sessions,
		auth:     deps.Auth,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mobile clients send no Origin header or an app scheme.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.setupRoutes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is done and then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server started", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
