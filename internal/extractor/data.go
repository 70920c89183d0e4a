package extractor

import "golang.org/x/net/html"

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ContentScoreMultiplier tunes calculateContentScore's weighting of each
// structural signal when scoring a candidate content container.
type ContentScoreMultiplier struct {
	NonWhitespaceDivisor float64
	Paragraphs           float64
	Headings             float64
	CodeBlocks           float64
	ListItems            float64
}

// defaultContentScoreMultiplier mirrors the weights calculateContentScore
// used before it became configurable.
var defaultContentScoreMultiplier = ContentScoreMultiplier{
	NonWhitespaceDivisor: 50.0,
	Paragraphs:           5.0,
	Headings:             10.0,
	CodeBlocks:           15.0,
	ListItems:            2.0,
}

// MeaningfulThreshold tunes isMeaningful's minimum bar for treating a node
// as real documentation content rather than chrome or navigation.
type MeaningfulThreshold struct {
	MinNonWhitespace    int
	MinHeadings         int
	MinParagraphsOrCode int
	MaxLinkDensity      float64
}

// defaultMeaningfulThreshold mirrors the constants isMeaningful used before
// it became configurable.
var defaultMeaningfulThreshold = MeaningfulThreshold{
	MinNonWhitespace:    50,
	MinHeadings:         0,
	MinParagraphsOrCode: 1,
	MaxLinkDensity:      0.8,
}

// ExtractParam holds the tunable extraction knobs the scheduler derives
// from crawl configuration. Zero-valued fields in ScoreMultiplier/Threshold
// fall back to the documented defaults above.
type ExtractParam struct {
	BodySpecificityBias  float64
	LinkDensityThreshold float64
	ScoreMultiplier      ContentScoreMultiplier
	Threshold            MeaningfulThreshold
}

func (p ExtractParam) resolvedScoreMultiplier() ContentScoreMultiplier {
	if p.ScoreMultiplier == (ContentScoreMultiplier{}) {
		return defaultContentScoreMultiplier
	}
	return p.ScoreMultiplier
}

func (p ExtractParam) resolvedThreshold() MeaningfulThreshold {
	if p.Threshold == (MeaningfulThreshold{}) {
		return defaultMeaningfulThreshold
	}
	return p.Threshold
}
