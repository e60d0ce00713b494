package httpclient

import (
	"context"

	"github.com/beevik/etree"
)

// MethodReport is the WebDAV/CalDAV query method
const MethodReport = "REPORT"

// Report executes a REPORT request with the given query body and depth
func (s *Session) Report(ctx context.Context, urlStr string, depth int, query *etree.Document) (*etree.Document, error) {
	queryType := ""
	if query != nil && query.Root() != nil {
		queryType = query.Root().Tag
	}
	s.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth,
		"query_type", queryType)

	return s.doXML(ctx, MethodReport, urlStr, depth, query)
}
