// Package daemon runs the engine as a local intercepting proxy with an
// admin endpoint for the command protocol and event broadcasts.
package daemon

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/veilbox/offline-engine/internal/config"
	"github.com/veilbox/offline-engine/internal/engine"
)

// Server fronts the engine with a local HTTP proxy: every request the host
// application sends through it is handled by the engine
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	proxy  *goproxy.ProxyHttpServer
}

// New creates a daemon server around an initialized engine
func New(cfg *config.Config, eng *engine.Engine) *Server {
	proxy := goproxy.NewProxyHttpServer()

	s := &Server{
		cfg:    cfg,
		engine: eng,
		proxy:  proxy,
	}

	proxy.OnRequest().DoFunc(s.intercept)

	return s
}

// GetProxy returns the proxy handler (exported for testing)
func (s *Server) GetProxy() http.Handler {
	return s.proxy
}

// Start runs the admin endpoint, the connectivity prober, and the proxy.
// Blocks until the proxy listener fails.
func (s *Server) Start() error {
	go s.startAdmin()
	go s.probeLoop()

	logrus.Infof("Starting intercepting proxy on port %d", s.cfg.Server.ProxyPort)
	logrus.Infof("Admin endpoint on port %d", s.cfg.Server.AdminPort)
	logrus.Infof("Engine version: %s", s.cfg.Engine.Version)

	return http.ListenAndServe(fmt.Sprintf(":%d", s.cfg.Server.ProxyPort), s.proxy)
}

// intercept bridges goproxy requests into the engine and engine results
// back into HTTP responses
func (s *Server) intercept(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			logrus.Errorf("Failed to read request body: %v", err)
			return r, errorResponse(r, http.StatusBadGateway, "failed to read request body")
		}
		r.Body.Close()
	}

	req := &engine.Request{
		Method: r.Method,
		URL:    targetURL(r),
		Header: r.Header.Clone(),
		Body:   body,
	}

	result, err := s.engine.HandleRequest(r.Context(), req)
	if err != nil {
		logrus.Errorf("Engine could not resolve %s %s: %v", r.Method, req.URL, err)
		return r, errorResponse(r, http.StatusBadGateway, err.Error())
	}

	return r, toHTTPResponse(r, result)
}

func targetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.String())
}

func toHTTPResponse(r *http.Request, result *engine.Result) *http.Response {
	header := result.Header
	if header == nil {
		header = http.Header{}
	}
	if result.Queued {
		header.Set("X-Offline-Queued", "true")
	}
	if result.Offline {
		header.Set("X-Offline", "true")
	}

	return &http.Response{
		StatusCode:    result.StatusCode,
		Status:        http.StatusText(result.StatusCode),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       r,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(result.Body)),
		ContentLength: int64(len(result.Body)),
	}
}

func errorResponse(r *http.Request, status int, message string) *http.Response {
	return goproxy.NewResponse(r, "text/plain", status, message)
}
