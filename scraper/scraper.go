package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-editions/config"
)

// Scraper wraps a synchronous colly collector that fetches one page per call.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	// mu serialises Fetch; the collector callbacks write into last.
	mu   sync.Mutex
	last fetchResult
}

type fetchResult struct {
	body   []byte
	status int
	err    error
}

// NewScraper builds a scraper instance configured from cfg. A nil metrics
// value disables instrumentation.
func NewScraper(cfg *config.Config, metrics *Metrics) (*Scraper, error) {
	parsed, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("target url must include a host")
	}

	// No AllowedDomains: only one URL is visited, and the product page may
	// redirect to another host (apex to www).
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	s := &Scraper{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}
	s.configureHandlers()
	return s, nil
}

// Fetch issues a single GET against rawURL and returns the response body.
// There is no retry: any transport failure or non-2xx status is returned as
// a classified error (ErrTimeout, ErrNotFound, ...).
func (s *Scraper) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = fetchResult{}

	visitErr := s.collector.Visit(rawURL)
	result := s.last

	if result.err == nil && visitErr != nil {
		result.err = classifyError(visitErr, result.status)
		s.Metrics.IncError(errorTypeLabel(result.err))
	}
	if result.err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, result.err)
	}

	slog.Debug("page fetched",
		slog.String("url", rawURL),
		slog.Int("status", result.status),
		slog.Int("bytes", len(result.body)),
	)
	return result.body, nil
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		s.Metrics.IncRequest("started")
		slog.Debug("requesting page", slog.String("url", r.URL.String()))
	})

	s.collector.OnResponse(func(r *colly.Response) {
		s.Metrics.IncRequest("completed")
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
		s.last.status = r.StatusCode
		s.last.body = append([]byte(nil), r.Body...)
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		classified := classifyError(err, statusCode)
		category := errorTypeLabel(classified)
		s.Metrics.IncError(category)

		pageURL := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			pageURL = r.Request.URL.String()
		}
		slog.Error("request error",
			slog.String("url", pageURL),
			slog.String("category", category),
			slog.Any("error", err),
		)

		s.last.status = statusCode
		s.last.err = classified
	})
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		default:
			return ErrHTTPStatus{Code: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return ErrHTTPStatus{Code: statusCode, Err: fmt.Errorf("unexpected http status %d", statusCode)}
	}
	return err
}
