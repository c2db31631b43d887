package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/wudi/pdfstudio/observability"
)

// Repair methods, in the order they are attempted.
const (
	RepairStrict  = "strict"
	RepairLenient = "lenient"
	RepairPdfcpu  = "pdfcpu"
)

// RepairOptions configures Repair. Producer is written into the metadata of
// the repaired document; Now stamps ModDate and defaults to time.Now.
type RepairOptions struct {
	Password string
	Logger   observability.Logger
	Producer string
	Now      func() time.Time
}

// RepairReport describes which attempt produced the document.
type RepairReport struct {
	Method   string
	Warnings []error
	// Attempts holds the failures of the attempts that came before Method.
	Attempts []error
}

var ErrNoPages = errors.New("document has no pages")

// Repair opens damaged input with progressively more forgiving readers:
// a strict load, a lenient load, and finally a pdfcpu relaxed
// read-optimize-write pass followed by a strict load of its output. The first
// attempt yielding at least one page wins.
func Repair(ctx context.Context, data []byte, opts RepairOptions) (*Document, RepairReport, error) {
	logger := observability.OrNop(opts.Logger)
	var report RepairReport
	base := []LoadOption{WithLogger(logger)}
	if opts.Password != "" {
		base = append(base, WithPassword(opts.Password))
	}

	attempts := []struct {
		method string
		load   func() (*Document, error)
	}{
		{RepairStrict, func() (*Document, error) { return Load(ctx, data, base...) }},
		{RepairLenient, func() (*Document, error) { return Load(ctx, data, append(base, WithLenient())...) }},
		{RepairPdfcpu, func() (*Document, error) {
			fixed, err := rewriteWithPdfcpu(data, opts.Password)
			if err != nil {
				return nil, err
			}
			return Load(ctx, fixed, base...)
		}},
	}
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		doc, err := a.load()
		if err == nil && doc.PageCount() == 0 {
			err = ErrNoPages
		}
		if err != nil {
			logger.Warn("repair attempt failed", observability.String("method", a.method), observability.Error("error", err))
			report.Attempts = append(report.Attempts, fmt.Errorf("%s: %w", a.method, err))
			continue
		}
		report.Method = a.method
		report.Warnings = doc.Warnings()
		normalizeMetadata(doc, opts)
		logger.Info("document repaired", observability.String("method", a.method), observability.Int("pages", doc.PageCount()))
		return doc, report, nil
	}
	return nil, report, &CorruptDocumentError{Lenient: true, Err: errors.Join(report.Attempts...)}
}

func normalizeMetadata(doc *Document, opts RepairOptions) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	info := doc.Info()
	if opts.Producer != "" {
		info.Producer = opts.Producer
	}
	info.ModDate = now()
	if info.CreationDate.IsZero() {
		info.CreationDate = info.ModDate
	}
	doc.SetInfo(info)
}

func rewriteWithPdfcpu(data []byte, password string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	var out bytes.Buffer
	if err := api.WriteContext(pctx, &out); err != nil {
		return nil, fmt.Errorf("pdfcpu write: %w", err)
	}
	return out.Bytes(), nil
}
