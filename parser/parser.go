package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-editions/models"
)

const (
	// KeywordSelector matches the nodes carrying an edition name.
	KeywordSelector = `span[itemprop="keywords"]`
	// PriceSelector matches the nodes carrying a source-currency price.
	PriceSelector = `span[itemprop="price"]`
)

var (
	// ErrNoEdition is returned when a keyword node has no "... Edition" text.
	ErrNoEdition = errors.New("no edition name in keyword node")
	// ErrNoPrice is returned when a price node has no "<digits>$" text.
	ErrNoPrice = errors.New("no price in price node")

	editionPattern = regexp.MustCompile(`(?i)^.* edition`)
	pricePattern   = regexp.MustCompile(`(\d+)\s*\$`)
)

// ExtractError reports which node failed extraction.
type ExtractError struct {
	Kind  string // edition or price
	Index int
	Text  string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s node %d (%q): %v", e.Kind, e.Index, e.Text, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Extract parses body and returns edition names and prices in document order.
// Pairing the two sequences is left to the caller.
func Extract(body []byte) (*models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return ExtractDocument(doc)
}

// ExtractDocument runs extraction on an already parsed document.
func ExtractDocument(doc *goquery.Document) (*models.Page, error) {
	page := &models.Page{
		Editions: []string{},
		Prices:   []int{},
	}

	var err error
	doc.Find(KeywordSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := NormalizeText(s.Text())
		edition, perr := ParseEdition(text)
		if perr != nil {
			err = &ExtractError{Kind: "edition", Index: i, Text: text, Err: perr}
			return false
		}
		page.Editions = append(page.Editions, edition)
		return true
	})
	if err != nil {
		return nil, err
	}

	doc.Find(PriceSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := NormalizeText(s.Text())
		price, perr := ParsePrice(text)
		if perr != nil {
			err = &ExtractError{Kind: "price", Index: i, Text: text, Err: perr}
			return false
		}
		page.Prices = append(page.Prices, price)
		return true
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// ParseEdition returns the longest prefix of text ending in " Edition",
// matched case-insensitively.
func ParseEdition(text string) (string, error) {
	match := editionPattern.FindString(text)
	if match == "" {
		return "", ErrNoEdition
	}
	return strings.TrimSpace(match), nil
}

// ParsePrice returns the first run of digits immediately followed by "$".
func ParsePrice(text string) (int, error) {
	match := pricePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, ErrNoPrice
	}
	price, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", match[1], err)
	}
	return price, nil
}

// NormalizeText collapses runs of whitespace into single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
