package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-editions/models"
)

func sampleReport() *models.Report {
	scrapedAt := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)
	return &models.Report{
		Product:        "Escape from Tarkov",
		SourceCurrency: "USD",
		TargetCurrency: "AUD",
		Rate:           decimal.RequireFromString("1.3"),
		Listings: []*models.Listing{
			{Edition: "Standard Edition", SourcePrice: 77, Price: "$100.0", Amount: "100.00", Currency: "AUD", ScrapedAt: scrapedAt},
			{Edition: "Left Behind Edition", SourcePrice: 100, Price: "$130.0", Amount: "130.00", Currency: "AUD", ScrapedAt: scrapedAt},
		},
	}
}

func TestTextWriterWrite(t *testing.T) {
	var out bytes.Buffer
	if err := NewTextWriter(&out).Write(sampleReport()); err != nil {
		t.Fatalf("write text: %v", err)
	}

	want := "\nEscape from Tarkov current pricing:\n(prices in AUD before tax and other fees)\n\n" +
		"Standard Edition: $100.0\n" +
		"Left Behind Edition: $130.0\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Fatalf("text output mismatch (-want +got):\n%s", diff)
	}
}

func TestTableWriterWrite(t *testing.T) {
	var out bytes.Buffer
	if err := NewTableWriter(&out).Write(sampleReport()); err != nil {
		t.Fatalf("write table: %v", err)
	}

	rendered := out.String()
	standard := strings.Index(rendered, "Standard Edition")
	leftBehind := strings.Index(rendered, "Left Behind Edition")
	if standard < 0 || leftBehind < 0 || standard > leftBehind {
		t.Fatalf("listings missing or out of order:\n%s", rendered)
	}
	if !strings.Contains(rendered, "$130.0") {
		t.Fatalf("expected converted price in table:\n%s", rendered)
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleReport()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "edition" || records[0][2] != "price" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	want := []string{"Left Behind Edition", "100", "$130.0", "130.00", "AUD", "2025-11-04T13:09:13Z"}
	if diff := cmp.Diff(want, records[2]); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleReport()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	var editions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var listing models.Listing
		if err := json.Unmarshal(scanner.Bytes(), &listing); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		editions = append(editions, listing.Edition)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if diff := cmp.Diff([]string{"Standard Edition", "Left Behind Edition"}, editions); diff != "" {
		t.Fatalf("editions mismatch (-want +got):\n%s", diff)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "prices.csv")
	jsonPath := filepath.Join(dir, "out", "prices.json")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleReport()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	for _, path := range []string{csvPath, jsonPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", path)
		}
	}
}

func TestMultiWriterWritesInOrder(t *testing.T) {
	first := &mockWriter{}
	second := &mockWriter{}
	report := sampleReport()

	mw := NewMultiWriter(first, nil, second)
	if err := mw.Write(report); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(first.reports) != 1 || len(second.reports) != 1 {
		t.Fatalf("expected each writer to receive the report once")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestJSONWriterEmptyReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	report := sampleReport()
	report.Listings = nil
	if err := writer.Write(report); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("an empty report is a valid export, got %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("size = %d, want 0", info.Size())
	}
}

func TestExportWritersLeaveFileUntilWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	previous := "edition,source_price,price,amount,currency,scraped_at\nStandard Edition,45,$67.5,67.50,AUD,2025-11-03T10:00:00Z\n"
	if err := os.WriteFile(path, []byte(previous), 0o644); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before anything was written")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(got) != previous {
		t.Fatalf("export changed without a write:\n%s", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestCSVWriterReplacesPreviousExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	if err := os.WriteFile(path, []byte("stale\n"), 0o644); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleReport()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if strings.Contains(string(got), "stale") || !strings.HasPrefix(string(got), "edition,") {
		t.Fatalf("export was not replaced:\n%s", got)
	}
}
