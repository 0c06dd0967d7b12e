// Package exchange looks up conversion rates and converts scraped prices.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-editions/config"
	"github.com/aluiziolira/go-scrape-editions/models"
)

// LookupRecorder receives one call per rate lookup with source "remote" or
// "cache". *scraper.Metrics satisfies it.
type LookupRecorder interface {
	IncRateLookup(source string)
}

// Client fetches the latest rates for a base currency and caches them so a
// run performs at most one remote call per base.
type Client struct {
	http     *resty.Client
	baseURL  string
	apiKey   string
	cache    *expirable.LRU[string, models.Rates]
	recorder LookupRecorder
}

// NewClient builds a rate client from cfg. recorder may be nil.
func NewClient(cfg *config.Config, recorder LookupRecorder) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimSuffix(cfg.RatesBaseURL, "/"),
		apiKey:   cfg.APIKey,
		cache:    expirable.NewLRU[string, models.Rates](cfg.RateCacheSize, nil, cfg.RateCacheTTL),
		recorder: recorder,
	}
}

// Rates returns every conversion rate for base.
func (c *Client) Rates(ctx context.Context, base string) (models.Rates, error) {
	base = strings.ToUpper(base)
	if rates, ok := c.cache.Get(base); ok {
		c.record("cache")
		return rates, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Get(c.latestURL(base))
	if err != nil {
		return nil, fmt.Errorf("request rates for %s: %w", base, err)
	}
	c.record("remote")

	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}

	rates, err := decodeRates(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode rates for %s: %w", base, err)
	}

	c.cache.Add(base, rates)
	slog.Debug("exchange rates fetched", slog.String("base", base), slog.Int("currencies", len(rates)))
	return rates, nil
}

// Rate returns the factor converting one unit of from into to.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rates, err := c.Rates(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	rate, ok := rates[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s -> %s: %w", from, to, ErrRateNotFound)
	}
	return rate, nil
}

func (c *Client) latestURL(base string) string {
	return fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, base)
}

func (c *Client) record(source string) {
	if c.recorder != nil {
		c.recorder.IncRateLookup(source)
	}
}

// decodeRates reads a body of the form
//
//	{"result":"success","conversion_rates":{"AUD":1.5,...}}
//
// jsonparser only walks the keys it reads, so the whole body is checked for
// well-formedness first.
func decodeRates(body []byte) (models.Rates, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid json", ErrMalformedResponse)
	}
	if result, err := jsonparser.GetString(body, "result"); err == nil && result == "error" {
		errorType, _ := jsonparser.GetString(body, "error-type")
		return nil, &APIError{Type: errorType}
	}

	raw, dataType, _, err := jsonparser.Get(body, "conversion_rates")
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return nil, fmt.Errorf("%w: missing conversion_rates", ErrMalformedResponse)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dataType != jsonparser.Object {
		return nil, fmt.Errorf("%w: conversion_rates is %s", ErrMalformedResponse, dataType)
	}

	rates := make(models.Rates)
	err = jsonparser.ObjectEach(raw, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.Number {
			return fmt.Errorf("rate %s is %s", key, dataType)
		}
		rate, err := decimal.NewFromString(string(value))
		if err != nil {
			return fmt.Errorf("rate %s: %w", key, err)
		}
		rates[strings.ToUpper(string(key))] = rate
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return rates, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
