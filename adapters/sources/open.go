package sources

import (
	"context"
	"path/filepath"
	"strings"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/core"
	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// Options configures how a file is turned into a row source
type Options struct {
	Sheet     string                 `json:"sheet"`     // XLSX sheet, first sheet when empty
	Delimiter rune                   `json:"delimiter"` // 0 sniffs the delimiter
	Coercion  coercer.CoercionConfig `json:"coercion"`
	HTTP      HTTPOptions            `json:"http"`
	Logger    *internal.Logger       `json:"-"`
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		Coercion: coercer.DefaultCoercionConfig(),
		HTTP:     DefaultHTTPOptions(),
		Logger:   internal.DefaultLogger,
	}
}

func (o Options) logger() *internal.Logger {
	if o.Logger == nil {
		return internal.DefaultLogger
	}
	return o.Logger
}

func (o Options) coercer() *coercer.CellCoercer {
	if o.Coercion.NullTokens == nil {
		o.Coercion = coercer.DefaultCoercionConfig()
	}
	return coercer.NewCellCoercer(o.Coercion)
}

// Format identifies a supported file layout
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatXLSX      Format = "xlsx"
	FormatJSONLines Format = "jsonlines"
	FormatHTTPJSON  Format = "http-json"
)

// IsURL reports whether path names an HTTP endpoint rather than a file
func IsURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// DetectFormat picks a reader from the URL scheme or file extension
func DetectFormat(path string) (Format, error) {
	if IsURL(path) {
		return FormatHTTPJSON, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".tab", ".psv", ".txt":
		return FormatDelimited, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".jsonl", ".ndjson":
		return FormatJSONLines, nil
	}
	return "", apperrors.WithCode(apperrors.CodeUnsupportedFormat, core.NewUnsupportedFormatError(path))
}

// Open creates a row source for path. The caller closes it.
func Open(path string, opts Options) (ports.ClosableRowSource, error) {
	return OpenContext(context.Background(), path, opts)
}

// OpenContext is Open with a context bounding any work done while opening,
// such as fetching the first page of an HTTP source
func OpenContext(ctx context.Context, path string, opts Options) (ports.ClosableRowSource, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatXLSX:
		return OpenXLSX(path, opts)
	case FormatJSONLines:
		return OpenJSONLines(path, opts)
	case FormatHTTPJSON:
		return OpenHTTP(ctx, path, opts)
	default:
		if opts.Delimiter == 0 && strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		return OpenDelimited(path, opts)
	}
}
