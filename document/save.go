package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/writer"
)

// SaveOptions controls serialization. The zero value writes a classic
// cross-reference table and leaves stream filters untouched.
type SaveOptions struct {
	// Compact packs objects into object streams behind a cross-reference
	// stream.
	Compact bool
	// CompressStreams Flate-encodes unfiltered streams when that shrinks them.
	CompressStreams bool
	// Version overrides the header version.
	Version string
}

// Save serializes the document. The output depends only on the document's
// state and opts, and the document is left unchanged.
func (d *Document) Save(ctx context.Context, opts SaveOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := writer.Config{
		Version:       opts.Version,
		Compress:      opts.CompressStreams,
		ObjectStreams: opts.Compact,
	}
	if d.protection != nil {
		enc := *d.protection
		cfg.Encryption = &enc
	}
	out, err := writer.New().Write(ctx, d.raw, cfg)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	d.logger.Debug("document saved",
		observability.Int("pages", len(d.pages)),
		observability.Int("bytes", len(out)),
		observability.String("mode", saveMode(opts)),
	)
	return out, nil
}

func saveMode(opts SaveOptions) string {
	if opts.Compact {
		return "compact"
	}
	return "classic"
}

var ErrEmptyPassword = errors.New("password must not be empty")

// ProtectOptions adjusts Protect. An empty OwnerPassword reuses the user
// password.
type ProtectOptions struct {
	OwnerPassword string
}

// Protect makes Save encrypt the output with the Standard security handler,
// AES-128 (V4/R4). Readers need password to open the result.
func (d *Document) Protect(password string, opts ProtectOptions) error {
	if password == "" {
		return ErrEmptyPassword
	}
	d.protection = &writer.Encryption{UserPassword: password, OwnerPassword: opts.OwnerPassword}
	return nil
}

// Unprotect removes any pending protection so Save writes plain output.
func (d *Document) Unprotect() { d.protection = nil }
