// Package proxy relays a DevTools websocket between an HTTP client and the
// running browser, so a login can be completed on a remote or containerised browser.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/session"
)

const dialTimeout = 10 * time.Second

// ErrNoDevTools is returned when the engine does not expose a DevTools endpoint
var ErrNoDevTools = errors.New("browser engine does not expose a DevTools endpoint")

var upgrader = websocket.Upgrader{
	CheckOrigin: localOrigin,
}

// localOrigin admits clients without an Origin (CDP tooling), pages served by
// this host and pages served from loopback. Any other page would get full
// control of the logged-in browser.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme == "devtools" || strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Browser is the part of the session manager the proxy needs
type Browser interface {
	Running() bool
	DebuggerURL() string
}

type Server struct {
	browser Browser
	logger  *zap.Logger
}

// NewServer creates a new DevTools proxy server
func NewServer(browser Browser, logger *zap.Logger) *Server {
	return &Server{
		browser: browser,
		logger:  logger.With(zap.String("component", "devtools-proxy")),
	}
}

// Endpoint resolves the upstream DevTools URL
func (s *Server) Endpoint() (string, error) {
	if !s.browser.Running() {
		return "", session.ErrNoSession
	}
	endpoint := s.browser.DebuggerURL()
	if endpoint == "" {
		return "", ErrNoDevTools
	}
	return endpoint, nil
}

func (s *Server) HandleDevTools(w http.ResponseWriter, r *http.Request) {
	browserURL, err := s.Endpoint()
	switch {
	case errors.Is(err, session.ErrNoSession):
		http.Error(w, "Browser is not running", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	}

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("client connected to devtools", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()

	browserConn, _, err := websocket.DefaultDialer.DialContext(ctx, browserURL, nil)
	if err != nil {
		s.logger.Error("failed to connect to browser", zap.String("url", browserURL), zap.Error(err))
		clientConn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error connecting: %v", err)))
		return
	}
	defer browserConn.Close()

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.proxyMessages(clientConn, browserConn, "client→browser")
	}()

	go func() {
		errChan <- s.proxyMessages(browserConn, clientConn, "browser→client")
	}()

	// Wait for either direction to close
	err = <-errChan
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("devtools proxy ended", zap.Error(err))
	}

	s.logger.Info("client disconnected from devtools", zap.String("remote", r.RemoteAddr))
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			s.logger.Warn("failed to write message", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}
