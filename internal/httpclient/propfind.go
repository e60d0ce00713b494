package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/beevik/etree"
)

// MethodPropfind is the WebDAV property query method
const MethodPropfind = "PROPFIND"

// Propfind sends a PROPFIND request with the given body and depth
func (s *Session) Propfind(ctx context.Context, urlStr string, depth int, body *etree.Document) (*etree.Document, error) {
	s.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth)

	return s.doXML(ctx, MethodPropfind, urlStr, depth, body)
}

// doXML serializes body and sends it with a Depth header
func (s *Session) doXML(ctx context.Context, method, urlStr string, depth int, body *etree.Document) (*etree.Document, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = body.WriteToBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", method, err)
		}
	}

	headers := http.Header{}
	headers.Set("Depth", strconv.Itoa(depth))

	doc, err := s.Do(ctx, method, urlStr, headers, data)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(method+" request complete", "url", urlStr)
	return doc, nil
}
