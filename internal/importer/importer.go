// Package importer loads structured documents into the engine.
//
// Documents are parsed concurrently, since parsing never touches the engine.
// Their clauses are then asserted one document at a time, in the order the
// paths were given, through the caller's Applier.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
	"datalogbridge/internal/markup"
	"datalogbridge/internal/objnotation"
)

// Format names a document normalizer.
type Format string

const (
	FormatMarkup         Format = "markup"
	FormatObjectNotation Format = "object-notation"
)

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// FormatOf picks the normalizer from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatMarkup, nil
	case ".json":
		return FormatObjectNotation, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Supported reports whether path has an importable extension.
func Supported(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// Applier asserts one clause. *session.Executor implements it.
type Applier interface {
	Apply(ctx context.Context, c ir.Clause) error
}

// Report describes one document.
type Report struct {
	Path     string
	Format   Format
	Clauses  int // clauses the document normalized to
	Asserted int // clauses accepted by the engine
	Warnings []string
	Metadata *markup.Metadata
	Err      error
}

// OK reports whether the whole document went through.
func (r Report) OK() bool { return r.Err == nil && r.Asserted == r.Clauses }

// parsed is the pure result of normalizing one file.
type parsed struct {
	clauses  []ir.Clause
	warnings []string
	metadata *markup.Metadata
}

// Importer parses and asserts documents.
type Importer struct {
	applier     Applier
	parallelism int
}

// New creates an importer. parallelism below 1 means one parser at a time.
func New(a Applier, parallelism int) *Importer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Importer{applier: a, parallelism: parallelism}
}

// Import parses every path and asserts the clauses of each parsed document.
// A document that fails to parse asserts nothing; a failing clause stops its
// document. The returned error joins every document failure.
func (im *Importer) Import(ctx context.Context, paths ...string) ([]Report, error) {
	timer := logging.StartTimer(logging.CategoryImport, "Import")
	defer timer.Stop()

	reports, docs, err := im.parseAll(ctx, paths)
	if err != nil {
		return reports, err
	}

	var errs []error
	for i := range reports {
		r := &reports[i]
		if r.Err == nil {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			im.assertDocument(ctx, r, docs[i])
		}
		logging.ImportCompleted(r.Path, r.Asserted, r.Err)
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}

	logging.Import("Imported %d documents (%d failed)", len(reports), len(errs))
	return reports, errors.Join(errs...)
}

// Check parses every path without touching the engine.
func (im *Importer) Check(ctx context.Context, paths ...string) ([]Report, error) {
	reports, _, err := im.parseAll(ctx, paths)
	if err != nil {
		return reports, err
	}
	var errs []error
	for _, r := range reports {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}
	return reports, errors.Join(errs...)
}

func (im *Importer) assertDocument(ctx context.Context, r *Report, doc *parsed) {
	for _, c := range doc.clauses {
		if err := im.applier.Apply(ctx, c); err != nil {
			r.Err = fmt.Errorf("clause %d (%s): %w", r.Asserted, c, err)
			logging.ImportWarn("%s: stopped after %d of %d clauses: %v", r.Path, r.Asserted, r.Clauses, err)
			return
		}
		r.Asserted++
	}
	logging.ImportDebug("%s: asserted %d clauses", r.Path, r.Asserted)
}

// parseAll normalizes the documents concurrently. Per-document failures are
// kept in the reports; only cancellation fails the call.
func (im *Importer) parseAll(ctx context.Context, paths []string) ([]Report, []*parsed, error) {
	reports := make([]Report, len(paths))
	docs := make([]*parsed, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.parallelism)
	for i, path := range paths {
		reports[i].Path = path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			format, err := FormatOf(path)
			if err != nil {
				reports[i].Err = err
				return nil
			}
			reports[i].Format = format
			doc, err := parseFile(format, path)
			if err != nil {
				logging.ImportWarn("%s: %v", path, err)
				reports[i].Err = err
				return nil
			}
			docs[i] = doc
			reports[i].Clauses = len(doc.clauses)
			reports[i].Warnings = doc.warnings
			reports[i].Metadata = doc.metadata
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, nil, err
	}
	return reports, docs, nil
}

func parseFile(format Format, path string) (*parsed, error) {
	switch format {
	case FormatMarkup:
		doc, err := markup.ParseFile(path)
		if err != nil {
			return nil, err
		}
		out := &parsed{clauses: doc.Clauses}
		if !doc.Metadata.IsZero() {
			md := doc.Metadata
			out.metadata = &md
		}
		return out, nil
	case FormatObjectNotation:
		doc, err := objnotation.ParseFile(path)
		if err != nil {
			return nil, err
		}
		out := &parsed{clauses: doc.Clauses}
		for _, w := range doc.Warnings {
			out.warnings = append(out.warnings, w.String())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
