package davclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/samber/mo"

	davxml "github.com/cyp0633/caldav2rem/internal/xml"
)

// FetchCalendarData downloads every object of the collection at path and
// merges them into one VCALENDAR document. Unlike Calendar.Data it always
// goes to the server.
func (c *Client) FetchCalendarData(ctx context.Context, path string) (string, error) {
	hrefs, err := c.memberHrefs(ctx, path)
	if err != nil {
		return "", err
	}
	c.logger.Debug("collected member hrefs", "path", path, "count", len(hrefs))

	if len(hrefs) == 0 {
		return MergeFragments(nil), nil
	}

	var fragments []string
	switch c.cfg.Strategy {
	case FetchPerHref:
		fragments, err = c.fetchPerHref(ctx, hrefs)
	default:
		fragments, err = c.fetchMultiget(ctx, path, hrefs)
	}
	if err != nil {
		return "", err
	}

	c.logger.Debug("fetched calendar data",
		"path", path,
		"strategy", c.cfg.Strategy.String(),
		"fragments", len(fragments))
	return MergeFragments(fragments), nil
}

// memberHrefs lists the object hrefs of a collection with an initial
// sync-collection report
func (c *Client) memberHrefs(ctx context.Context, path string) ([]string, error) {
	doc, err := c.requester.Report(ctx, path, 1, davxml.MemberListRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar objects: %w", err)
	}

	var hrefs []string
	for _, resp := range davxml.Responses(doc) {
		href, ok := resp.Href().Get()
		if !ok || samePath(href, path) {
			continue
		}
		hrefs = append(hrefs, href)
	}
	return hrefs, nil
}

func (c *Client) fetchMultiget(ctx context.Context, path string, hrefs []string) ([]string, error) {
	req := &davxml.CalendarMultigetRequest{Hrefs: hrefs}
	doc, err := c.requester.Report(ctx, path, 1, req.ToXML())
	if err != nil {
		return nil, fmt.Errorf("failed to execute calendar-multiget: %w", err)
	}

	fragments := fragmentTexts(doc)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: calendar-multiget on %s", ErrNoCalendarData, path)
	}
	return fragments, nil
}

// fetchPerHref queries each object on its own. With Concurrency above one
// the requests overlap, but fragments still come back in href order.
func (c *Client) fetchPerHref(ctx context.Context, hrefs []string) ([]string, error) {
	workers := c.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(hrefs) {
		workers = len(hrefs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]mo.Result[[]string], len(hrefs))
	jobs := make(chan int)

	// The first failure cancels the rest; later cancellation errors are
	// not what the caller needs to see.
	var (
		errOnce  sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res := c.queryObject(ctx, hrefs[idx])
				if err := res.Error(); err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
				}
				results[idx] = res
			}
		}()
	}

	for idx := range hrefs {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	var fragments []string
	for _, res := range results {
		texts, err := res.Get()
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, texts...)
	}
	return fragments, nil
}

func (c *Client) queryObject(ctx context.Context, href string) mo.Result[[]string] {
	if err := ctx.Err(); err != nil {
		return mo.Err[[]string](err)
	}

	req := &davxml.CalendarQueryRequest{}
	doc, err := c.requester.Report(ctx, href, 1, req.ToXML())
	if err != nil {
		return mo.Err[[]string](fmt.Errorf("failed to execute calendar-query on %s: %w", href, err))
	}

	texts := fragmentTexts(doc)
	if len(texts) == 0 {
		return mo.Err[[]string](fmt.Errorf("%w: calendar-query on %s", ErrNoCalendarData, href))
	}
	return mo.Ok(texts)
}

// fragmentTexts returns every calendar-data text of doc without the XML
// indentation around it. Leading and trailing whitespace of a fragment lies
// outside its VCALENDAR, while whitespace inside folded lines is kept.
func fragmentTexts(doc *etree.Document) []string {
	texts := davxml.Texts(doc, davxml.TagCalendarData)
	for i, text := range texts {
		texts[i] = strings.TrimSpace(text)
	}
	return texts
}
