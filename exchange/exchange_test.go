package exchange

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-editions/config"
)

const latestUSD = "http://rates.test/v6/test-key/latest/USD"

type countingRecorder struct {
	lookups map[string]int
}

func (r *countingRecorder) IncRateLookup(source string) {
	if r.lookups == nil {
		r.lookups = make(map[string]int)
	}
	r.lookups[source]++
}

func newTestClient(t *testing.T, body string, status int) (*Client, *httpmock.MockTransport, *countingRecorder) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RatesBaseURL = "http://rates.test/v6/"
	cfg.APIKey = "test-key"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", latestUSD, httpmock.NewStringResponder(status, body))

	recorder := &countingRecorder{}
	client := NewClient(cfg, recorder)
	client.http.SetTransport(transport)
	return client, transport, recorder
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		amount int
		want   string
	}{
		{
			name:   "whole result keeps one decimal",
			body:   `{"conversion_rates": {"AUD": 1.5}}`,
			amount: 100,
			want:   "$150.0",
		},
		{
			name:   "rounds to two decimals",
			body:   `{"conversion_rates": {"AUD": 1.333}}`,
			amount: 33,
			want:   "$43.99",
		},
		{
			name:   "trailing zero trimmed",
			body:   `{"result":"success","base_code":"USD","conversion_rates": {"USD": 1, "AUD": 1.25}}`,
			amount: 10,
			want:   "$12.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, tt.body, http.StatusOK)
			converter := NewConverter(client, "USD", "AUD", "$")

			price, err := converter.Convert(context.Background(), tt.amount)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if price.Display != tt.want {
				t.Fatalf("Convert(%d) = %q, want %q", tt.amount, price.Display, tt.want)
			}
			if price.Source != tt.amount || price.Currency != "AUD" {
				t.Fatalf("unexpected price metadata: %+v", price)
			}
		})
	}
}

func TestRatesFetchedOncePerRun(t *testing.T) {
	client, transport, recorder := newTestClient(t, `{"conversion_rates": {"AUD": 1.5}}`, http.StatusOK)
	converter := NewConverter(client, "USD", "AUD", "$")

	for _, amount := range []int{45, 75, 100, 140} {
		if _, err := converter.Convert(context.Background(), amount); err != nil {
			t.Fatalf("convert %d: %v", amount, err)
		}
	}

	if calls := transport.GetTotalCallCount(); calls != 1 {
		t.Fatalf("remote calls = %d, want 1", calls)
	}
	if recorder.lookups["remote"] != 1 || recorder.lookups["cache"] != 3 {
		t.Fatalf("lookups = %v, want remote=1 cache=3", recorder.lookups)
	}
}

func TestRateErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		check   func(error) bool
		wantErr string
	}{
		{
			name:    "missing currency",
			body:    `{"conversion_rates": {"EUR": 0.9}}`,
			status:  http.StatusOK,
			check:   func(err error) bool { return errors.Is(err, ErrRateNotFound) },
			wantErr: "ErrRateNotFound",
		},
		{
			name:    "malformed json",
			body:    `<html>maintenance</html>`,
			status:  http.StatusOK,
			check:   func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
			wantErr: "ErrMalformedResponse",
		},
		{
			name:    "trailing garbage after rates",
			body:    `{"conversion_rates": {"AUD": 1.5}} <!-- cached -->`,
			status:  http.StatusOK,
			check:   func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
			wantErr: "ErrMalformedResponse",
		},
		{
			name:    "rates not an object",
			body:    `{"conversion_rates": [1.5]}`,
			status:  http.StatusOK,
			check:   func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
			wantErr: "ErrMalformedResponse",
		},
		{
			name:    "non numeric rate",
			body:    `{"conversion_rates": {"AUD": "1.5"}}`,
			status:  http.StatusOK,
			check:   func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
			wantErr: "ErrMalformedResponse",
		},
		{
			name:   "api error document",
			body:   `{"result":"error","error-type":"invalid-key"}`,
			status: http.StatusOK,
			check: func(err error) bool {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.Type == "invalid-key"
			},
			wantErr: "APIError(invalid-key)",
		},
		{
			name:   "http failure",
			body:   `upstream down`,
			status: http.StatusServiceUnavailable,
			check: func(err error) bool {
				var statusErr *StatusError
				return errors.As(err, &statusErr) && statusErr.Code == http.StatusServiceUnavailable
			},
			wantErr: "StatusError(503)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, tt.body, tt.status)
			_, err := client.Rate(context.Background(), "USD", "AUD")
			if err == nil || !tt.check(err) {
				t.Fatalf("Rate() error = %v, want %s", err, tt.wantErr)
			}
		})
	}
}

func TestFailedLookupIsNotCached(t *testing.T) {
	client, transport, _ := newTestClient(t, `upstream down`, http.StatusBadGateway)

	for i := 0; i < 2; i++ {
		if _, err := client.Rate(context.Background(), "USD", "AUD"); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	if calls := transport.GetTotalCallCount(); calls != 2 {
		t.Fatalf("remote calls = %d, want 2", calls)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{amount: "150", want: "$150.0"},
		{amount: "43.99", want: "$43.99"},
		{amount: "12.50", want: "$12.5"},
		{amount: "0", want: "$0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			if got := FormatPrice("$", decimal.RequireFromString(tt.amount)); got != tt.want {
				t.Fatalf("FormatPrice(%s) = %q, want %q", tt.amount, got, tt.want)
			}
		})
	}
}

func TestApplyRoundsHalfAwayFromZero(t *testing.T) {
	got := Apply(1, decimal.RequireFromString("0.125"))
	if !got.Equal(decimal.RequireFromString("0.13")) {
		t.Fatalf("Apply(1, 0.125) = %s, want 0.13", got)
	}
}
