// Package httpapi exposes the account service over JSON/HTTP:
// POST /signup, POST /login, GET /profile and GET /health.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/dmitrijs2005/authsync/internal/server/models"
	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
)

// AccountService is the subset of the account service the handlers call.
type AccountService interface {
	Register(ctx context.Context, email, password, displayName string) (*models.Account, error)
	Authenticate(ctx context.Context, email, password string) (string, error)
	Profile(ctx context.Context, token string) (*models.Account, error)
}

type HTTPServer struct {
	address         string
	accounts        AccountService
	logger          logging.Logger
	validate        *validator.Validate
	shutdownTimeout time.Duration
}

func NewHTTPServer(a string, l logging.Logger, accounts AccountService, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServer{
		address:         a,
		accounts:        accounts,
		logger:          l.With("module", "http_server"),
		validate:        newValidator(),
		shutdownTimeout: shutdownTimeout,
	}
}

// Handler returns the routed API.
func (s *HTTPServer) Handler() http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodPost, "/signup", http.HandlerFunc(s.signup))
	router.Handler(http.MethodPost, "/login", http.HandlerFunc(s.login))
	router.Handler(http.MethodGet, "/profile", s.requireBearer(http.HandlerFunc(s.profile)))
	router.Handler(http.MethodGet, "/health", http.HandlerFunc(s.health))
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, p interface{}) {
		s.logger.Error(r.Context(), "Handler panic", "panic", p, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
	return router
}

// Run serves until ctx is canceled, then drains open requests for at most
// the shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *HTTPServer) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}
