package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"goprofile/adapters/sources"
	"goprofile/app"
	"goprofile/internal"
	"goprofile/internal/config"
	apperrors "goprofile/internal/errors"
	"goprofile/ports"
)

// AnalysisHandler exposes the analysis service over HTTP
type AnalysisHandler struct {
	service   *app.AnalysisService
	options   sources.Options
	maxUpload int64
	dataRoot  string // resolved absolute root; empty disables the files endpoint
	allowURLs bool
	logger    *internal.Logger
}

// FilesRequest asks the server to analyze files it can read locally
type FilesRequest struct {
	Paths []string `json:"paths" binding:"required,min=1,dive,required"`
}

// NewAnalysisHandler creates a new analysis handler. server.MaxUploadMB
// bounds the request body of an upload; server.DataRoot confines the files
// endpoint.
func NewAnalysisHandler(service *app.AnalysisService, options sources.Options, server config.ServerConfig, logger *internal.Logger) *AnalysisHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	h := &AnalysisHandler{
		service:   service,
		options:   options,
		maxUpload: int64(server.MaxUploadMB) << 20,
		allowURLs: server.AllowURLs,
		logger:    logger.With("AnalysisHandler"),
	}
	if server.DataRoot != "" {
		root, err := filepath.Abs(server.DataRoot)
		if err == nil {
			h.dataRoot = resolveExisting(root)
		} else {
			h.logger.Warn("Data root %q unusable, files endpoint disabled: %v", server.DataRoot, err)
		}
	}
	return h
}

// AnalyzeUpload profiles a table sent either as a multipart "file" field or
// as the raw request body. The source name comes from the "name" query
// parameter, then the uploaded file name.
func (h *AnalysisHandler) AnalyzeUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	name := c.Query("name")
	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		header, err := c.FormFile("file")
		if err != nil {
			h.fail(c, apperrors.InvalidInput("multipart upload needs a \"file\" field"))
			return
		}
		file, err := header.Open()
		if err != nil {
			h.fail(c, apperrors.SourceError(header.Filename, err))
			return
		}
		defer file.Close()
		body = file
		if name == "" {
			name = header.Filename
		}
	}
	if name == "" {
		name = "upload.csv"
	}

	opts := h.options
	if sheet := c.Query("sheet"); sheet != "" {
		opts.Sheet = sheet
	}
	rows, err := h.openUpload(name, body, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rows.Close()

	result, err := h.service.AnalyzeSource(c.Request.Context(), name, rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AnalysisHandler) openUpload(name string, body io.Reader, opts sources.Options) (ports.ClosableRowSource, error) {
	format, err := sources.DetectFormat(name)
	if err != nil {
		// bodies without a recognised extension are read as delimited text
		format = sources.FormatDelimited
	}
	switch format {
	case sources.FormatXLSX:
		return sources.NewXLSXSource(name, body, opts)
	case sources.FormatJSONLines:
		return sources.NewJSONLinesSource(name, body, opts)
	}
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		opts.Delimiter = '\t'
	}
	return sources.NewDelimitedSource(name, body, opts)
}

// AnalyzeFiles profiles several server-side files concurrently
func (h *AnalysisHandler) AnalyzeFiles(c *gin.Context) {
	var req FilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.WithCode(apperrors.CodeInvalidInput, err))
		return
	}

	paths := make([]string, len(req.Paths))
	for i, p := range req.Paths {
		resolved, err := h.resolvePath(p)
		if err != nil {
			h.fail(c, err)
			return
		}
		paths[i] = resolved
	}

	results, err := h.service.AnalyzeFiles(c.Request.Context(), paths)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// resolvePath maps a requested path onto the data root. Relative paths are
// taken from the root; anything that cleans or links to a location outside
// it is refused, as are URLs unless they were enabled.
func (h *AnalysisHandler) resolvePath(p string) (string, error) {
	if sources.IsURL(p) {
		if h.allowURLs {
			return p, nil
		}
		return "", apperrors.Forbidden(fmt.Sprintf("%s: URL sources are disabled (GOPROFILE_ALLOW_URLS)", p))
	}
	if h.dataRoot == "" {
		return "", apperrors.Forbidden("server-side paths are disabled (GOPROFILE_DATA_ROOT is not set)")
	}

	candidate := filepath.Clean(p)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(h.dataRoot, candidate)
	}
	rel, err := filepath.Rel(h.dataRoot, resolveExisting(candidate))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Forbidden(fmt.Sprintf("%s is outside the data root", p))
	}
	return candidate, nil
}

// resolveExisting follows symlinks in the longest existing prefix of path
func resolveExisting(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	dir, base := filepath.Split(path)
	dir = filepath.Clean(dir)
	if dir == path || base == "" {
		return path
	}
	return filepath.Join(resolveExisting(dir), base)
}

// Health reports that the server is up
func (h *AnalysisHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AnalysisHandler) fail(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	status := statusFor(code)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		h.logger.Debug("%s %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

// statusFor maps an application error code to an HTTP status
func statusFor(code string) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeSourceError:
		return http.StatusUnprocessableEntity
	case apperrors.CodeCancelled:
		return http.StatusRequestTimeout
	case apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
