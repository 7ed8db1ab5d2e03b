package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"voxbox/internal/logging"
)

// Server hosts the local authorization pages: a landing page that links to
// the provider and the redirect callback that completes the exchange.
type Server struct {
	manager *Manager
	logger  *slog.Logger
	httpSrv *http.Server
	addr    string
}

// NewServer constructs the callback server bound to host:port.
func NewServer(host string, port int, manager *Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		manager: manager,
		logger:  logger.With(logging.String(logging.FieldComponent, "oauth-server")),
		addr:    fmt.Sprintf("%s:%d", host, port),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleRoot)
	mux.HandleFunc("/oauth/callback", srv.handleCallback)
	srv.httpSrv = &http.Server{
		Addr:              srv.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Addr returns the bound address once Start has been called.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving and shuts down when the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("oauth server: listen on %s: %w", s.addr, err)
	}
	s.addr = listener.Addr().String()
	s.logger.Info("authorization server listening", logging.String("addr", s.addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("oauth server: shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	authURL, err := s.manager.AuthorizationURL()
	if err != nil {
		s.logger.Error("build authorization url", logging.Error(err))
		http.Error(w, "failed to build authorization URL", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html>
<head><title>VoxBox Authorization</title></head>
<body>
<h1>VoxBox - Dropbox Authorization</h1>
<p>Click the link below to authorize this application with your Dropbox account:</p>
<p><a href="%s">Authorize with Dropbox</a></p>
<p>VoxBox will create an App Folder in your Dropbox with Inbox, Outbox, and Archive folders.</p>
</body>
</html>`, authURL)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		s.logger.Warn("authorization denied by provider", logging.String("error", providerErr))
		writeHTML(w, http.StatusBadRequest, "Authorization Failed", "Error: "+providerErr)
		return
	}
	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		writeHTML(w, http.StatusBadRequest, "Bad Request", "Missing authorization code or state")
		return
	}

	token, err := s.manager.HandleCallback(r.Context(), code, state)
	if err != nil {
		s.logger.Error("authorization callback failed", logging.Error(err))
		writeHTML(w, http.StatusForbidden, "Authorization Failed", err.Error())
		return
	}

	s.logger.Info("account authorized",
		logging.String("account_id", token.AccountID),
		logging.String("email", token.AccountEmail))
	writeHTML(w, http.StatusOK, "Authorization Successful!",
		"You can close this window. VoxBox is now connected to your Dropbox.")
}

func writeHTML(w http.ResponseWriter, status int, heading, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<h1>%s</h1><p>%s</p>", heading, detail)
}
