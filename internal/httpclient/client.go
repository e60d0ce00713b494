package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-webdav"
)

// DefaultPort is the CalDAV-over-TLS port used when none is configured
const DefaultPort = 443

// ContentType is sent on every request, body or not
const ContentType = `text/xml; charset="UTF-8"`

// KeyMode selects how the session keys its connection cache
type KeyMode int

const (
	// KeyByHostPort keeps one connection per "host:port" of the request URL,
	// so absolute hrefs pointing at other hosts get their own connection.
	KeyByHostPort KeyMode = iota
	// KeyByServer keeps a single connection to the configured server and
	// sends every request there, whatever host an href names.
	KeyByServer
)

// Config holds the settings of a Session
type Config struct {
	Username string
	Password string
	Server   string
	Port     int

	// Insecure switches the scheme to plain http.
	Insecure  bool
	TLSConfig *tls.Config

	KeyMode KeyMode
	// MaxConnsPerEndpoint bounds the live connections per cache entry.
	// Zero means one.
	MaxConnsPerEndpoint int
	// Timeout applies to each request. Zero leaves it to the transport.
	Timeout time.Duration

	Logger *slog.Logger
}

// Session owns the authenticated connections to a CalDAV server and issues
// WebDAV requests over them. It is safe for concurrent use.
type Session struct {
	cfg     Config
	baseURL url.URL
	logger  *slog.Logger

	mu        sync.Mutex
	endpoints map[string]*endpoint
}

type endpoint struct {
	transport *http.Transport
	client    webdav.HTTPClient
}

// NewSession validates the configuration and creates a session. No
// connection is opened until the first request.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Username == "" {
		return nil, errors.New("basic auth username cannot be empty")
	}
	if cfg.Password == "" {
		return nil, errors.New("basic auth password cannot be empty")
	}
	if cfg.Server == "" {
		return nil, errors.New("server cannot be empty")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxConnsPerEndpoint <= 0 {
		cfg.MaxConnsPerEndpoint = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}

	scheme := "https"
	if cfg.Insecure {
		scheme = "http"
	}
	base := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)),
		Path:   "/",
	}

	return &Session{
		cfg:       cfg,
		baseURL:   base,
		logger:    logger,
		endpoints: make(map[string]*endpoint),
	}, nil
}

// BaseURL returns the root URL of the configured server
func (s *Session) BaseURL() url.URL {
	return s.baseURL
}

// ResolveURL resolves a URL string against the base URL
func (s *Session) ResolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	resolved := s.baseURL.ResolveReference(ref)
	if s.cfg.KeyMode == KeyByServer {
		resolved.Scheme = s.baseURL.Scheme
		resolved.Host = s.baseURL.Host
	}
	return resolved, nil
}

// Get sends a GET request
func (s *Session) Get(ctx context.Context, urlStr string, headers http.Header) (*etree.Document, error) {
	return s.Do(ctx, http.MethodGet, urlStr, headers, nil)
}

// Do sends an arbitrary request and parses the response body as XML. Any
// failure is returned as *Error and is never retried.
func (s *Session) Do(ctx context.Context, method, urlStr string, headers http.Header, body []byte) (*etree.Document, error) {
	resolved, err := s.ResolveURL(urlStr)
	if err != nil {
		return nil, &Error{Op: method, URL: urlStr, Kind: ErrTransport, Err: err}
	}
	target := resolved.String()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Op: method, URL: target, Kind: ErrTransport, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", ContentType)
	// net/http keeps connections alive anyway; some servers close the socket
	// unless the client asks explicitly.
	req.Header.Set("Connection", "keep-alive")

	ep := s.endpoint(endpointKey(resolved))
	resp, err := ep.client.Do(req)
	if err != nil {
		s.logger.Debug("request failed", "method", method, "url", target, "error", err)
		return nil, &Error{Op: method, URL: target, Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	// Drain the body before anything else so the connection can go back to
	// the idle pool.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: method, URL: target, Kind: ErrTransport, Err: err}
	}

	s.logger.Debug("received response", "method", method, "url", target, "status", resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Debug("unexpected status code",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return nil, &Error{Op: method, URL: target, StatusCode: resp.StatusCode, Kind: ErrStatus}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		s.logger.Debug("failed to parse XML response", "error", err)
		return nil, &Error{Op: method, URL: target, Kind: ErrMalformedXML, Err: err}
	}
	if doc.Root() == nil {
		return nil, &Error{Op: method, URL: target, Kind: ErrMalformedXML, Err: errors.New("no root element")}
	}
	return doc, nil
}

// Close releases idle connections. A session that is never closed is fine;
// the server does not require a goodbye.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ep := range s.endpoints {
		ep.transport.CloseIdleConnections()
		delete(s.endpoints, key)
	}
}

// endpoint returns the cached connection for key, creating it on first use
func (s *Session) endpoint(key string) *endpoint {
	if s.cfg.KeyMode == KeyByServer {
		key = s.baseURL.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ep, ok := s.endpoints[key]; ok {
		return ep
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.cfg.TLSConfig != nil {
		tlsConfig = s.cfg.TLSConfig.Clone()
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		MaxConnsPerHost:     s.cfg.MaxConnsPerEndpoint,
		MaxIdleConnsPerHost: s.cfg.MaxConnsPerEndpoint,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	httpClient := &http.Client{
		Transport: newLoggingTransport(transport, s.logger),
		Timeout:   s.cfg.Timeout,
	}
	ep := &endpoint{
		transport: transport,
		client:    webdav.HTTPClientWithBasicAuth(httpClient, s.cfg.Username, s.cfg.Password),
	}
	s.endpoints[key] = ep

	s.logger.Debug("opened endpoint", "key", key)
	return ep
}

// endpointKey returns "host:port" for u, filling in the scheme's default port
func endpointKey(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
