package davclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// mockCall records one request made through mockRequester
type mockCall struct {
	method string
	url    string
	depth  int
	// query is the local name of the request body root
	query string
	body  string
}

// mockRequester implements Requester with canned multistatus bodies keyed
// by "METHOD url". Several bodies for one key are served in order, the last
// one repeating.
type mockRequester struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	delays    map[string]time.Duration
	calls     []mockCall
}

func newMockRequester() *mockRequester {
	return &mockRequester{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		delays:    make(map[string]time.Duration),
	}
}

func (m *mockRequester) on(method, url, body string) *mockRequester {
	key := method + " " + url
	m.responses[key] = append(m.responses[key], body)
	return m
}

func (m *mockRequester) fail(method, url string, err error) *mockRequester {
	m.errs[method+" "+url] = err
	return m
}

func (m *mockRequester) Propfind(ctx context.Context, urlStr string, depth int, body *etree.Document) (*etree.Document, error) {
	return m.do(ctx, "PROPFIND", urlStr, depth, body)
}

func (m *mockRequester) Report(ctx context.Context, urlStr string, depth int, query *etree.Document) (*etree.Document, error) {
	return m.do(ctx, "REPORT", urlStr, depth, query)
}

func (m *mockRequester) ResolveURL(urlStr string) (*url.URL, error) {
	base, _ := url.Parse("https://caldav.example.com:443/")
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}

func (m *mockRequester) do(ctx context.Context, method, urlStr string, depth int, body *etree.Document) (*etree.Document, error) {
	key := method + " " + urlStr

	c := mockCall{method: method, url: urlStr, depth: depth}
	if body != nil && body.Root() != nil {
		c.query = body.Root().Tag
		c.body, _ = body.WriteToString()
	}

	m.mu.Lock()
	m.calls = append(m.calls, c)
	delay := m.delays[key]
	err := m.errs[key]
	var (
		resp string
		ok   bool
	)
	if queue := m.responses[key]; len(queue) > 0 {
		resp, ok = queue[0], true
		if len(queue) > 1 {
			m.responses[key] = queue[1:]
		}
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("unexpected %s", key)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(resp); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *mockRequester) callsTo(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockCall
	for _, c := range m.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}
