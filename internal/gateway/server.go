package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"debtflow/internal/logging"
)

// CallbackPath is where the gateway sends the user back to.
const CallbackPath = "/gateway-callback"

// DefaultCallbackAddr is the local listen address for the return trip.
const DefaultCallbackAddr = "127.0.0.1:8765"

const successPage = `<html>
<head><title>Gateway connected</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
	<h1>Authorization received</h1>
	<p>You can close this tab and return to debtflow.</p>
	<script>window.close();</script>
</body>
</html>`

// CallbackServer is a local HTTP listener that delivers return trips into an
// Inbox. Requests whose state token does not match the expected one are
// rejected.
type CallbackServer struct {
	addr  string
	inbox *Inbox

	mu       sync.Mutex
	expected string
	server   *http.Server
	listener net.Listener
	errCh    chan error
}

// NewCallbackServer creates a server for addr. Use "127.0.0.1:0" for an
// ephemeral port.
func NewCallbackServer(addr string, inbox *Inbox) *CallbackServer {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	return &CallbackServer{addr: addr, inbox: inbox, errCh: make(chan error, 1)}
}

// Expect sets the state token the next return trip must carry.
func (s *CallbackServer) Expect(stateToken string) {
	s.mu.Lock()
	s.expected = stateToken
	s.mu.Unlock()
}

// Start begins listening. It returns once the socket is bound.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("callback server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)

	s.listener = ln
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()
	logging.Gateway("callback server listening on %s", ln.Addr())
	return nil
}

// URL is the callback URL to hand to the gateway. Valid after Start.
func (s *CallbackServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String() + CallbackPath
}

// Errors reports a failure of the serve loop.
func (s *CallbackServer) Errors() <-chan error {
	return s.errCh
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	params := ParseReturnParams(r.URL.Query())
	params.Returned = true // arriving here is the return trip

	s.mu.Lock()
	expected := s.expected
	s.mu.Unlock()

	if expected != "" && params.State != expected {
		logging.Get(logging.CategoryGateway).Warn("callback rejected: state token mismatch")
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	s.inbox.Deliver(params)
	if params.Error != "" {
		logging.Get(logging.CategoryGateway).Warn("gateway returned error: %s", params.Error)
		http.Error(w, "Authorization failed: "+params.Error, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(successPage))
}

// Shutdown stops the server gracefully.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
