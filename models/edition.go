// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Page holds what the extractor found on the product page, in document order.
type Page struct {
	Editions []string
	Prices   []int
}

// Rates maps a currency code to its conversion factor from the base currency.
type Rates map[string]decimal.Decimal

// Price is a source amount converted into the target currency.
type Price struct {
	Source    int
	Amount    decimal.Decimal
	Display   string
	Currency  string
	Converted time.Time
}

func (p Price) String() string {
	return p.Display
}

// Listing pairs an edition with its converted price.
type Listing struct {
	Edition     string    `csv:"edition" json:"edition"`
	SourcePrice int       `csv:"source_price" json:"source_price"`
	Price       string    `csv:"price" json:"price"`
	Amount      string    `csv:"amount" json:"amount"`
	Currency    string    `csv:"currency" json:"currency"`
	ScrapedAt   time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Report holds the overall result of one run. Listings keep page order.
type Report struct {
	Product        string
	URL            string
	SourceCurrency string
	TargetCurrency string
	Rate           decimal.Decimal
	Listings       []*Listing
	StartTime      time.Time
	EndTime        time.Time
}
