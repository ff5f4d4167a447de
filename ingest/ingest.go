package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"posfeed/normalize"
	"posfeed/observability"
	"posfeed/parsedoc"
	"posfeed/refdata"
)

// File kinds recognised by the dispatcher. Anything else is handed to the
// generic normalizer with its raw kind label.
const (
	KindJournal = "CPJ"
	KindFuel    = "FCF"
	KindSummary = "SUM"
	KindCatalog = "PRICEBOOK"
	KindUnknown = "UNKNOWN"
)

// Service wires the normalizers behind a single entry point. One Service is
// shared by the HTTP surface and the directory sweeper.
type Service struct {
	DB       *gorm.DB
	Resolver *refdata.Resolver
	Log      *slog.Logger
	Metrics  *observability.IngestMetrics
	Now      func() time.Time
}

// NewService returns a Service with the default resolver and metrics registry.
func NewService(db *gorm.DB, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		DB:       db,
		Resolver: refdata.NewResolver(),
		Log:      log,
		Metrics:  observability.Ingest(),
		Now:      time.Now,
	}
}

// DetectKind derives the record kind from the file name. Journal, fuel, and
// summary feeds carry a three-letter prefix; pricebook extracts arrive as CSV
// with "pricebook" somewhere in the name.
func DetectKind(path string) string {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".csv") {
		if strings.Contains(name, "pricebook") {
			return KindCatalog
		}
		return "CSV"
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) >= 3 {
		return strings.ToUpper(base[:3])
	}
	return KindUnknown
}

// normalizerFor picks the handler for a detected kind. Unrecognised kinds go
// through the keyword scanner so salvageable reference data is still captured.
func (s *Service) normalizerFor(kind string) normalize.Normalizer {
	switch kind {
	case KindJournal:
		return normalize.NewJournalNormalizer(s.Resolver, s.Log)
	case KindFuel:
		return normalize.NewFuelNormalizer(s.Resolver, s.Log)
	case KindSummary:
		return normalize.NewSummaryNormalizer(s.Resolver, s.Log)
	case KindCatalog:
		return normalize.NewCatalogNormalizer(s.Resolver, s.Log)
	default:
		return normalize.NewGenericNormalizer(s.Resolver, s.Log, kind)
	}
}

// Ingest parses one file and normalizes every record it contains. Record
// failures roll back their own transaction and are reported through the
// result counts; only file-level problems (unreadable file, unrecognised
// document structure) surface as an error.
func (s *Service) Ingest(ctx context.Context, path string) (normalize.Result, error) {
	kind := DetectKind(path)
	start := s.Now()

	doc, err := s.parse(path)
	if err != nil {
		s.Metrics.ObserveFile(kind, 0, 0, 0, s.Now().Sub(start), err)
		return normalize.Result{Kind: kind}, err
	}

	res, err := s.normalizerFor(kind).Process(ctx, s.DB, doc)
	s.Metrics.ObserveFile(kind, res.Processed, res.Skipped, res.Errors, s.Now().Sub(start), err)
	if err != nil {
		s.Log.Error("file ingestion failed", "path", path, "kind", kind, "err", err)
		return res, fmt.Errorf("ingest: %s: %w", filepath.Base(path), err)
	}
	s.Log.Info("file ingested",
		"path", path,
		"kind", kind,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"errors", res.Errors)
	return res, nil
}

// IngestDir processes every regular file in dir in name order. A failing file
// is logged and counted but does not stop the sweep; context cancellation
// does.
func (s *Service) IngestDir(ctx context.Context, dir string) ([]normalize.Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	results := make([]normalize.Result, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.Ingest(ctx, filepath.Join(dir, name))
		if err != nil {
			res.Errors++
		}
		results = append(results, res)
	}
	return results, nil
}

// parse reads the file and builds the document tree. CSV files become a
// sequence of row mappings so every normalizer consumes the same node shape.
func (s *Service) parse(path string) (*parsedoc.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		doc, err := parsedoc.ParseCSV(f)
		if err != nil {
			return nil, fmt.Errorf("ingest: parse csv: %w", err)
		}
		return doc, nil
	}
	doc, err := parsedoc.ParseXML(f)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse xml: %w", err)
	}
	return doc, nil
}
