package sanitizer

import (
	"net/url"

	"golang.org/x/net/html"
)

type SanitizedHTMLDoc struct {
	contentNode    *html.Node
	discoveredUrls []url.URL
}

// GetContentNode returns the sanitized content root; nil for a zero value.
func (s *SanitizedHTMLDoc) GetContentNode() *html.Node {
	return s.contentNode
}

func (s *SanitizedHTMLDoc) GetDiscoveredURLs() []url.URL {
	return s.discoveredUrls
}

// NewSanitizedHTMLDocForTest builds a SanitizedHTMLDoc exposing the given
// discovered URLs. discoveredUrls is unexported so scheduler tests driving
// the discovery/admission path need a constructor rather than a literal.
func NewSanitizedHTMLDocForTest(discoveredUrls []url.URL) SanitizedHTMLDoc {
	return SanitizedHTMLDoc{discoveredUrls: discoveredUrls}
}
