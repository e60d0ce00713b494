package davclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	davxml "github.com/cyp0633/caldav2rem/internal/xml"
)

// Principal returns the href of the authenticated principal. The lookup runs
// once per client.
func (c *Client) Principal(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principalLocked(ctx)
}

func (c *Client) principalLocked(ctx context.Context) (string, error) {
	if c.principal != "" {
		return c.principal, nil
	}

	doc, err := c.requester.Propfind(ctx, "/", 1, davxml.CurrentUserPrincipalRequest())
	if err != nil {
		return "", fmt.Errorf("failed to get current-user-principal: %w", err)
	}

	path := davxml.TagResponse + "/" + davxml.TagPropstat + "/" + davxml.TagProp + "/" +
		davxml.TagCurrentUserPrincipal + "/" + davxml.TagHref
	href, err := davxml.RequireText(&doc.Element, "//"+path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoPrincipal, err)
	}

	c.logger.Debug("resolved principal", "principal", href)
	c.principal = href
	return href, nil
}

// calendarsPath derives the calendar collection of a principal. The server
// this tool targets does not answer calendar-home-set, but always keeps
// calendars under /<principal id>/calendars/, so that path is built directly.
func calendarsPath(principal string) (string, error) {
	u, err := url.Parse(principal)
	if err != nil {
		return "", fmt.Errorf("failed to parse principal %q: %w", principal, err)
	}
	segment, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if segment == "" {
		return "", fmt.Errorf("%w: principal %q has no path segment", ErrNoPrincipal, principal)
	}
	return "/" + segment + "/calendars/", nil
}

// Calendars returns every calendar collection of the principal, in server
// order. The list is fetched once per client.
func (c *Client) Calendars(ctx context.Context) ([]*Calendar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calendars != nil {
		return c.calendars, nil
	}

	principal, err := c.principalLocked(ctx)
	if err != nil {
		return nil, err
	}
	home, err := calendarsPath(principal)
	if err != nil {
		return nil, err
	}

	doc, err := c.requester.Propfind(ctx, home, 1, davxml.DisplayNameRequest())
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make([]*Calendar, 0)
	for _, resp := range davxml.Responses(doc) {
		href, ok := resp.Href().Get()
		if !ok {
			continue
		}
		// Depth 1 echoes the collection itself; it is not a calendar.
		if samePath(href, home) {
			continue
		}
		calendars = append(calendars, &Calendar{
			Path:   href,
			Name:   resp.Prop(davxml.TagDisplayName).OrEmpty(),
			client: c,
		})
	}

	c.logger.Debug("listed calendars", "home", home, "count", len(calendars))
	c.calendars = calendars
	return calendars, nil
}

// CalendarsByName indexes the calendars by display name. Names are not
// unique; a later calendar replaces an earlier one with the same name, so
// callers that need every calendar should use Calendars.
func (c *Client) CalendarsByName(ctx context.Context) (map[string]*Calendar, error) {
	calendars, err := c.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Calendar, len(calendars))
	for _, cal := range calendars {
		byName[cal.Name] = cal
	}
	return byName, nil
}

// Calendar looks up a calendar by display name with CalendarsByName
// semantics
func (c *Client) Calendar(ctx context.Context, name string) (*Calendar, error) {
	byName, err := c.CalendarsByName(ctx)
	if err != nil {
		return nil, err
	}
	cal, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("no calendar named %q", name)
	}
	return cal, nil
}

func samePath(href, path string) bool {
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	return strings.TrimSuffix(href, "/") == strings.TrimSuffix(path, "/")
}
