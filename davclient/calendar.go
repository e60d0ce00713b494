package davclient

import (
	"context"
	"sync"

	"github.com/samber/mo"
)

// Calendar is a handle on one calendar collection. Path is unique on the
// server; Name is whatever the owner called it and may repeat.
type Calendar struct {
	Path string
	Name string

	client *Client

	mu   sync.Mutex
	data mo.Option[string]
}

// Data returns the whole collection as one VCALENDAR document. The first
// successful fetch is kept for the lifetime of the handle; concurrent callers
// wait for it instead of fetching again.
func (cal *Calendar) Data(ctx context.Context) (string, error) {
	cal.mu.Lock()
	defer cal.mu.Unlock()

	if data, ok := cal.data.Get(); ok {
		return data, nil
	}

	data, err := cal.client.FetchCalendarData(ctx, cal.Path)
	if err != nil {
		return "", err
	}
	cal.data = mo.Some(data)
	return data, nil
}

// URL returns the absolute URL of the collection
func (cal *Calendar) URL() string {
	u, err := cal.client.requester.ResolveURL(cal.Path)
	if err != nil {
		return cal.Path
	}
	return u.String()
}
