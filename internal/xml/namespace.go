package xml

import (
	"strings"

	"github.com/beevik/etree"
)

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
)

// Prefixes used in outgoing request bodies. Some servers only accept the
// lower-case d:/c: spelling, so these are fixed rather than negotiated.
const (
	PrefixDAV    = "d"
	PrefixCalDAV = "c"
)

// AddNamespaces declares the selected namespaces on the document root using
// the fixed request prefixes.
func AddNamespaces(doc *etree.Document, namespaces ...string) {
	root := doc.Root()
	if root == nil {
		return
	}
	for _, ns := range namespaces {
		switch ns {
		case DAV:
			root.CreateAttr("xmlns:"+PrefixDAV, DAV)
		case CalDAV:
			root.CreateAttr("xmlns:"+PrefixCalDAV, CalDAV)
		}
	}
}

// LocalName strips any namespace prefix from a tag
func LocalName(tag string) string {
	if idx := strings.LastIndex(tag, ":"); idx != -1 {
		return tag[idx+1:]
	}
	return tag
}
