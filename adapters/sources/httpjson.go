package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"goprofile/adapters/datareadiness/coercer"
	"goprofile/domain/core"
	"goprofile/domain/table"
	"goprofile/internal"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// HTTPOptions configures reading records from a paginated JSON endpoint
type HTTPOptions struct {
	DataPath    string            `json:"data_path"`    // gjson path of the record array, whole body when empty
	CursorPath  string            `json:"cursor_path"`  // gjson path of the next-page cursor, common names when empty
	CursorParam string            `json:"cursor_param"` // query parameter carrying the cursor
	TotalPath   string            `json:"total_path"`   // gjson path of the total record count, optional
	MaxPages    int               `json:"max_pages"`
	Timeout     time.Duration     `json:"timeout"`
	Headers     map[string]string `json:"headers"`
	Client      *http.Client      `json:"-"`
}

// DefaultHTTPOptions returns sensible defaults
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		CursorParam: "cursor",
		MaxPages:    100,
		Timeout:     30 * time.Second,
	}
}

var cursorFields = []string{"next_cursor", "cursor", "next", "continuation_token"}

const maxResponseBytes = 256 * 1024 * 1024

// HTTPSource streams records from a JSON API one page at a time
type HTTPSource struct {
	url     string
	opts    HTTPOptions
	client  *http.Client
	pending []gjson.Result
	columns []string
	cursor  string
	pages   int
	total   int64 // -1 when the endpoint does not report it
	coercer *coercer.CellCoercer
	logger  *internal.Logger
}

var (
	_ ports.ClosableRowSource = (*HTTPSource)(nil)
	_ ports.RowCounter        = (*HTTPSource)(nil)
)

// OpenHTTP fetches the first page of rawURL and derives the columns from it
func OpenHTTP(ctx context.Context, rawURL string, opts Options) (*HTTPSource, error) {
	httpOpts := opts.HTTP
	defaults := DefaultHTTPOptions()
	if httpOpts.CursorParam == "" {
		httpOpts.CursorParam = defaults.CursorParam
	}
	if httpOpts.MaxPages <= 0 {
		httpOpts.MaxPages = defaults.MaxPages
	}
	if httpOpts.Timeout <= 0 {
		httpOpts.Timeout = defaults.Timeout
	}
	client := httpOpts.Client
	if client == nil {
		client = &http.Client{Timeout: httpOpts.Timeout}
	}

	src := &HTTPSource{
		url:     rawURL,
		opts:    httpOpts,
		client:  client,
		total:   -1,
		coercer: opts.coercer(),
		logger:  opts.logger().With("HTTPSource"),
	}
	if err := src.fetch(ctx); err != nil {
		return nil, apperrors.SourceError(rawURL, err)
	}
	if len(src.pending) == 0 {
		return nil, apperrors.SourceError(rawURL, core.ErrEmptySource)
	}
	src.columns = jsonColumns(src.pending)
	src.logger.Debug("Opened %s (%d columns)", rawURL, len(src.columns))
	return src, nil
}

// fetch loads the next page into pending and advances the cursor
func (s *HTTPSource) fetch(ctx context.Context) error {
	target, err := url.Parse(s.url)
	if err != nil {
		return err
	}
	if s.cursor != "" {
		query := target.Query()
		query.Set(s.opts.CursorParam, s.cursor)
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("page %d: API returned status %d", s.pages+1, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("page %d: response is not valid JSON", s.pages+1)
	}

	data := gjson.ParseBytes(body)
	if s.opts.DataPath != "" {
		data = gjson.GetBytes(body, s.opts.DataPath)
		if !data.Exists() {
			return fmt.Errorf("data path %q not found in response", s.opts.DataPath)
		}
	}
	switch {
	case data.IsArray():
		for _, record := range data.Array() {
			if record.IsObject() {
				s.pending = append(s.pending, record)
			}
		}
	case data.IsObject():
		s.pending = append(s.pending, data)
	default:
		return fmt.Errorf("data path %q is not an array or object", s.opts.DataPath)
	}

	if s.opts.TotalPath != "" {
		if total := gjson.GetBytes(body, s.opts.TotalPath); total.Type == gjson.Number {
			s.total = total.Int()
		}
	}
	s.cursor = nextCursor(body, s.opts.CursorPath)
	s.pages++
	s.logger.Debug("Fetched page %d of %s (%d records) in %v", s.pages, s.url, len(s.pending), time.Since(start))
	return nil
}

func nextCursor(body []byte, path string) string {
	if path != "" {
		return gjson.GetBytes(body, path).String()
	}
	for _, field := range cursorFields {
		if cursor := gjson.GetBytes(body, field); cursor.Exists() && cursor.String() != "" {
			return cursor.String()
		}
	}
	return ""
}

// Columns returns the column names inferred from the first page
func (s *HTTPSource) Columns() []string { return s.columns }

// Next returns the next record, fetching another page when the current one
// is used up
func (s *HTTPSource) Next(ctx context.Context) (table.Row, error) {
	for len(s.pending) == 0 {
		if s.cursor == "" || s.pages >= s.opts.MaxPages {
			return nil, io.EOF
		}
		if err := s.fetch(ctx); err != nil {
			return nil, err
		}
	}
	record := s.pending[0]
	s.pending = s.pending[1:]
	return jsonRow(record, s.columns, s.coercer), nil
}

// TotalRows reports the record count advertised by the endpoint
func (s *HTTPSource) TotalRows() (int64, bool) {
	return s.total, s.total >= 0
}

// Pages returns how many pages have been fetched
func (s *HTTPSource) Pages() int { return s.pages }

// Close is a no-op; responses are closed as they are read
func (s *HTTPSource) Close() error { return nil }
