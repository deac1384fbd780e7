package extractor

import (
	"net/url"

	"golang.org/x/net/html"

	"github.com/rohmanhakim/docs-crawler/pkg/failure"
)

// ExtractionResult holds the content-isolation outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// Extractor abstracts content isolation, so a test double or an
// alternate strategy can stand in for DomExtractor.
type Extractor interface {
	Extract(sourceUrl url.URL, htmlByte []byte) (ExtractionResult, failure.ClassifiedError)
	SetExtractParam(params ExtractParam)
}

// ExtractParam tunes content isolation: the Threshold fields decide what
// counts as meaningful in every layer, the rest tune the heuristic
// scoring layer. SetExtractParam replaces the whole set; zero-valued
// fields are used as given, not replaced by NewDomExtractor's defaults.
type ExtractParam struct {
	BodySpecificityBias  float64
	LinkDensityThreshold float64
	ScoreMultiplier      ContentScoreMultiplier
	Threshold            MeaningfulThreshold
}

// ContentScoreMultiplier weights the text-density scoring function
// that picks the best candidate container once chrome is stripped.
type ContentScoreMultiplier struct {
	NonWhitespaceDivisor float64
	Paragraphs           float64
	Headings             float64
	CodeBlocks           float64
	ListItems            float64
}

// MeaningfulThreshold bounds what counts as substantive content,
// shared by every heuristic layer's isMeaningful check.
type MeaningfulThreshold struct {
	MinNonWhitespace    int
	MinHeadings         int
	MinParagraphsOrCode int
	MaxLinkDensity      float64
}

func defaultExtractParam() ExtractParam {
	return ExtractParam{
		BodySpecificityBias:  0.75,
		LinkDensityThreshold: 0.80,
		ScoreMultiplier: ContentScoreMultiplier{
			NonWhitespaceDivisor: 50.0,
			Paragraphs:           5.0,
			Headings:             10.0,
			CodeBlocks:           15.0,
			ListItems:            2.0,
		},
		Threshold: MeaningfulThreshold{
			MinNonWhitespace:    50,
			MinHeadings:         0,
			MinParagraphsOrCode: 1,
			MaxLinkDensity:      0.8,
		},
	}
}

// ParsedPage is the full result of parsing one page's HTML: head
// metadata, structured data, links, headings, images, and extracted
// text, produced in the fixed step order the page-parsing pipeline
// requires.
type ParsedPage struct {
	Title          string
	Description    string
	Keywords       []string
	Author         string
	Robots         string
	OpenGraph      OpenGraph
	TwitterCard    string
	Canonical      string
	Lang           string
	StructuredData []map[string]any
	Links          []Link
	Headings       []Heading
	Images         []Image
	Text           string
}

// OpenGraph holds the og:* meta properties this pipeline recognizes.
type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
}

// LinkKind distinguishes an anchor link from a frame/iframe source,
// since both resolve to a crawlable URL but carry different semantics.
type LinkKind string

const (
	LinkKindAnchor LinkKind = "a"
	LinkKindFrame  LinkKind = "frame"
)

// Link is one crawlable reference discovered on the page.
type Link struct {
	URL      string
	Kind     LinkKind
	Internal bool
	NoFollow bool
	Text     string
}

// Heading is one trimmed, length-capped heading from H1 through H6.
type Heading struct {
	Level int
	Text  string
}

// Image is one discovered image reference, resolved against the page's base URL.
type Image struct {
	Src   string
	Alt   string
	Title string
}

const (
	maxAnchorTextLen  = 200
	maxHeadingTextLen = 200
	maxImages         = 50
)
