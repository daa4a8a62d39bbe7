// Package gateway forwards authorized requests to the POS backend with a
// signed gateway token the backend can trust.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"github.com/go-chi/chi/v5/middleware"
)

// Headers the gateway owns. Client supplied copies are always removed.
const (
	HeaderGatewayToken = "X-Gateway-Token"
	HeaderUserID       = "X-User-Id"
	HeaderSessionID    = "X-Session-Id"
	HeaderRequestID    = "X-Request-ID"
)

// TokenSigner mints the gateway token for a subject
type TokenSigner interface {
	Sign(ctx context.Context, subject string) (string, error)
}

type forwardKey struct{}

type forwardInfo struct {
	token     string
	user      *models.AuthenticatedUser
	requestID string
}

// Forwarder proxies requests to the POS backend
type Forwarder struct {
	backend *url.URL
	signer  TokenSigner
	proxy   *httputil.ReverseProxy
	logger  *slog.Logger
}

// NewForwarder returns a forwarder for backendURL. An empty backendURL yields
// a forwarder that answers 503 to everything.
func NewForwarder(backendURL string, signer TokenSigner, transport http.RoundTripper, logger *slog.Logger) (*Forwarder, error) {
	f := &Forwarder{signer: signer, logger: logger}
	if backendURL == "" {
		return f, nil
	}

	target, err := url.Parse(backendURL)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("backend url must be absolute")
	}
	f.backend = target

	f.proxy = &httputil.ReverseProxy{
		Rewrite:      f.rewrite,
		Transport:    transport,
		ErrorHandler: f.proxyError,
	}
	return f, nil
}

// Configured reports whether a backend URL was provided
func (f *Forwarder) Configured() bool {
	return f.proxy != nil
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.proxy == nil {
		f.logger.Error("backend not configured", slog.String("path", r.URL.Path))
		pkghttp.WriteError(w, http.StatusServiceUnavailable, models.CodeServiceUnavailable, "POS backend service is not configured")
		return
	}

	user := auth.GetUserFromContext(r)
	subject := auth.PublicSubject
	if user != nil {
		subject = user.ID
	}

	token, err := f.signer.Sign(r.Context(), subject)
	if err != nil {
		f.logger.Error("failed to sign gateway token", slog.Any("error", err))
		pkghttp.WriteError(w, http.StatusBadGateway, models.CodeBadGateway, "Failed to communicate with POS backend service")
		return
	}

	info := &forwardInfo{token: token, user: user, requestID: requestID(r)}
	f.proxy.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), forwardKey{}, info)))
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(f.backend)
	pr.Out.Host = f.backend.Host

	h := pr.Out.Header
	for _, name := range []string{HeaderGatewayToken, HeaderUserID, HeaderSessionID, HeaderRequestID} {
		h.Del(name)
	}

	info, _ := pr.In.Context().Value(forwardKey{}).(*forwardInfo)
	if info == nil {
		return
	}
	h.Set(HeaderGatewayToken, "Bearer "+info.token)
	if info.user != nil {
		h.Set(HeaderUserID, info.user.ID)
		h.Set(HeaderSessionID, info.user.SessionID)
	}
	if info.requestID != "" {
		h.Set(HeaderRequestID, info.requestID)
	}
	pr.SetXForwarded()
}

func (f *Forwarder) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	f.logger.Error("backend request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	if isTimeout(err) {
		pkghttp.WriteError(w, http.StatusGatewayTimeout, models.CodeGatewayTimeout, "POS backend service did not respond in time")
		return
	}
	pkghttp.WriteError(w, http.StatusBadGateway, models.CodeBadGateway, "Failed to communicate with POS backend service")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(HeaderRequestID))
}
