package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-editions/config"
	"github.com/aluiziolira/go-scrape-editions/models"
	"github.com/aluiziolira/go-scrape-editions/parser"
)

// Stages reported by StageError.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageConvert = "convert"
	StageReport  = "report"
)

// OutputWriter defines the interface for report output.
type OutputWriter interface {
	Write(report *models.Report) error
	Close() error
	Validate() error
}

// Fetcher returns the raw body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Converter converts source-currency amounts.
type Converter interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
	Convert(ctx context.Context, amount int) (models.Price, error)
}

// ItemCounter is told how many listings a run produced.
type ItemCounter interface {
	AddItems(n int)
}

// StageError tells callers which step of the run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CountMismatchError is returned when the page yields a different number of
// editions and prices. Positional pairing would be meaningless.
type CountMismatchError struct {
	Editions int
	Prices   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("found %d editions but %d prices", e.Editions, e.Prices)
}

// Runner executes one scrape: fetch, extract, convert, report.
type Runner struct {
	cfg       *config.Config
	fetcher   Fetcher
	converter Converter
	writer    OutputWriter
	items     ItemCounter
}

// NewRunner wires the collaborators of a run. items may be nil.
func NewRunner(cfg *config.Config, fetcher Fetcher, converter Converter, writer OutputWriter, items ItemCounter) *Runner {
	return &Runner{
		cfg:       cfg,
		fetcher:   fetcher,
		converter: converter,
		writer:    writer,
		items:     items,
	}
}

// Run performs the scrape and writes the report. Nothing is written when any
// earlier stage fails.
func (r *Runner) Run(ctx context.Context) (*models.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	report := &models.Report{
		Product:        r.cfg.Product,
		URL:            r.cfg.TargetURL,
		SourceCurrency: r.cfg.SourceCurrency,
		TargetCurrency: r.cfg.TargetCurrency,
		StartTime:      time.Now(),
	}

	body, err := r.fetcher.Fetch(ctx, r.cfg.TargetURL)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	page, err := parser.Extract(body)
	if err != nil {
		return nil, &StageError{Stage: StageExtract, Err: err}
	}
	if len(page.Editions) != len(page.Prices) {
		return nil, &StageError{Stage: StageExtract, Err: &CountMismatchError{
			Editions: len(page.Editions),
			Prices:   len(page.Prices),
		}}
	}
	slog.Debug("page extracted", slog.Int("editions", len(page.Editions)))

	rate, err := r.converter.Rate(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageConvert, Err: err}
	}
	report.Rate = rate

	report.Listings = make([]*models.Listing, 0, len(page.Editions))
	for i, edition := range page.Editions {
		price, err := r.converter.Convert(ctx, page.Prices[i])
		if err != nil {
			return nil, &StageError{Stage: StageConvert, Err: fmt.Errorf("%s: %w", edition, err)}
		}
		report.Listings = append(report.Listings, &models.Listing{
			Edition:     edition,
			SourcePrice: price.Source,
			Price:       price.Display,
			Amount:      price.Amount.StringFixed(2),
			Currency:    price.Currency,
			ScrapedAt:   price.Converted,
		})
	}
	report.EndTime = time.Now()

	if err := r.writer.Write(report); err != nil {
		return nil, &StageError{Stage: StageReport, Err: err}
	}
	if r.items != nil {
		r.items.AddItems(len(report.Listings))
	}
	return report, nil
}
