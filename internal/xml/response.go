package xml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"
)

// ErrMissingElement is returned when a required element is absent from a
// server response
var ErrMissingElement = errors.New("missing XML element")

// Element lookups below use etree paths without prefixes, which match an
// element of that local name in any namespace. Servers disagree on prefixes
// (D:, d:, default namespace), so nothing here depends on them.

// Response wraps a single <response> element of a multistatus body
type Response struct {
	elem *etree.Element
}

// Responses returns every <response> element in the document, in document
// order
func Responses(doc *etree.Document) []Response {
	if doc == nil {
		return nil
	}
	elems := doc.FindElements("//" + TagResponse)
	out := make([]Response, 0, len(elems))
	for _, e := range elems {
		out = append(out, Response{elem: e})
	}
	return out
}

// Href returns the trimmed href of the response, if any
func (r Response) Href() mo.Option[string] {
	return OptionalText(r.elem, TagHref)
}

// Prop returns the trimmed text of the named property from the first
// propstat carrying it
func (r Response) Prop(local string) mo.Option[string] {
	return OptionalText(r.elem, TagPropstat+"/"+TagProp+"/"+local)
}

// Element exposes the wrapped element for callers needing raw access
func (r Response) Element() *etree.Element {
	return r.elem
}

// Require fetches the first element matching path below e or fails with
// ErrMissingElement
func Require(e *etree.Element, path string) (*etree.Element, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingElement, path)
	}
	found := e.FindElement(path)
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingElement, path)
	}
	return found, nil
}

// RequireText is Require followed by a trimmed, non-empty text check
func RequireText(e *etree.Element, path string) (string, error) {
	found, err := Require(e, path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(found.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %s has no text", ErrMissingElement, path)
	}
	return text, nil
}

// OptionalText returns the trimmed text at path, or None when the element is
// missing or empty
func OptionalText(e *etree.Element, path string) mo.Option[string] {
	text, err := RequireText(e, path)
	if err != nil {
		return mo.None[string]()
	}
	return mo.Some(text)
}

// Texts returns the untrimmed text of every element named local anywhere in
// the document, in document order. Calendar data keeps its line structure,
// so no trimming happens here.
func Texts(doc *etree.Document, local string) []string {
	if doc == nil {
		return nil
	}
	elems := doc.FindElements("//" + local)
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		out = append(out, e.Text())
	}
	return out
}
