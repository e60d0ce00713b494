package davclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"github.com/beevik/etree"
)

var (
	// ErrNoPrincipal is returned when the server does not report a
	// current-user-principal
	ErrNoPrincipal = errors.New("could not find current-user-principal")
	// ErrNoCalendarData is returned when a data REPORT yields no calendar-data
	ErrNoCalendarData = errors.New("no calendar-data in response")
)

// FetchStrategy selects how calendar objects are downloaded once their hrefs
// are known
type FetchStrategy int

const (
	// FetchMultiget downloads every object in a single calendar-multiget
	// REPORT.
	FetchMultiget FetchStrategy = iota
	// FetchPerHref sends one calendar-query REPORT per object, for servers
	// that reject multiget.
	FetchPerHref
)

// String implements fmt.Stringer
func (s FetchStrategy) String() string {
	switch s {
	case FetchMultiget:
		return "multiget"
	case FetchPerHref:
		return "per-href"
	default:
		return "unknown"
	}
}

// Requester is the transport the client drives. *httpclient.Session
// implements it.
type Requester interface {
	Propfind(ctx context.Context, urlStr string, depth int, body *etree.Document) (*etree.Document, error)
	Report(ctx context.Context, urlStr string, depth int, query *etree.Document) (*etree.Document, error)
	ResolveURL(urlStr string) (*url.URL, error)
}

// Config holds the client options
type Config struct {
	Strategy FetchStrategy
	// Concurrency bounds parallel per-href requests. Zero or one keeps them
	// sequential. Multiget ignores it.
	Concurrency int
	Logger      *slog.Logger
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Strategy:    FetchMultiget,
		Concurrency: 1,
	}
}

// Client discovers and fetches the calendars of the authenticated user
type Client struct {
	requester Requester
	cfg       Config
	logger    *slog.Logger

	mu        sync.Mutex
	principal string
	calendars []*Calendar
}

// NewClient creates a client over the given transport. A nil cfg means
// DefaultConfig.
func NewClient(requester Requester, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		requester: requester,
		cfg:       *cfg,
		logger:    logger,
	}
}
