package httpclient

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
)

// loggingTransport implements http.RoundTripper and logs request and
// response bodies at debug level. Credentials are applied before the request
// reaches it, so the Authorization header is redacted.
type loggingTransport struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

func newLoggingTransport(transport http.RoundTripper, logger *slog.Logger) *loggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &loggingTransport{transport: transport, logger: logger}
}

// RoundTrip implements the http.RoundTripper interface
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.logger.Enabled(req.Context(), slog.LevelDebug) {
		return t.transport.RoundTrip(req)
	}

	reqBody := ""
	if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			if bodyBytes, err := io.ReadAll(body); err == nil {
				reqBody = string(bodyBytes)
			}
			body.Close()
		}
	}

	headers := req.Header.Clone()
	if headers.Get("Authorization") != "" {
		headers.Set("Authorization", "[redacted]")
	}

	t.logger.Debug("outgoing request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", headers,
		"body", reqBody)

	resp, err := t.transport.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	respBody := ""
	if resp.Body != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		respBody = string(bodyBytes)
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	t.logger.Debug("incoming response",
		"status", resp.Status,
		"headers", resp.Header,
		"body", respBody)

	return resp, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
