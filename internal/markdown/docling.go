package markdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/folio/internal/apperr"
)

// DefaultPageBreak is the placeholder docling inserts between pages.
const DefaultPageBreak = "<!-- page-break -->"

// DoclingConfig configures a docling-serve client.
type DoclingConfig struct {
	URL            string
	PageBreak      string
	RequestTimeout time.Duration
}

// Docling converts documents through a docling-serve instance
// (POST /v1/convert/file).
type Docling struct {
	url       string
	pageBreak string
	client    *http.Client
	logger    *slog.Logger
}

func NewDocling(cfg DoclingConfig, logger *slog.Logger) *Docling {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Docling{
		url:       cfg.URL,
		pageBreak: strings.TrimSpace(cfg.PageBreak),
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("component", "docling"),
	}
}

func (d *Docling) Capabilities() Capabilities {
	return Capabilities{PageBoundaries: d.pageBreak != ""}
}

type doclingResponse struct {
	Document struct {
		MDContent string `json:"md_content"`
	} `json:"document"`
	Status string `json:"status"`
	Errors []struct {
		Message string `json:"error_message"`
	} `json:"errors"`
}

func (d *Docling) Convert(ctx context.Context, req Request) (Document, error) {
	body, contentType, err := d.encode(req)
	if err != nil {
		return Document{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return Document{}, fmt.Errorf("build docling request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Document{}, ctxErr
		}
		return Document{}, apperr.Wrap(apperr.EngineFailure, err, "markdown engine unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.EngineFailure, err, "read markdown engine response")
	}
	d.logger.Debug("docling responded", "status", resp.StatusCode, "bytes", len(raw), "duration_ms", time.Since(started).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return Document{}, apperr.New(apperr.EngineFailure, "markdown engine returned status %d", resp.StatusCode).
			WithField("filename", req.Filename)
	}

	var out doclingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Document{}, apperr.Wrap(apperr.EngineFailure, err, "decode markdown engine response")
	}
	if out.Status != "" && out.Status != "success" {
		msg := out.Status
		if len(out.Errors) > 0 && out.Errors[0].Message != "" {
			msg = out.Errors[0].Message
		}
		return Document{}, apperr.New(apperr.EngineFailure, "markdown conversion failed: %s", msg).
			WithField("filename", req.Filename)
	}

	doc := Document{Markdown: out.Document.MDContent}
	if req.PageBreaks && d.pageBreak != "" {
		doc.Pages = SplitPages([]byte(doc.Markdown), d.pageBreak)
	}
	return doc, nil
}

func (d *Docling) encode(req Request) (io.Reader, string, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, "", fmt.Errorf("open source pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := req.Filename
	if name == "" {
		name = filepath.Base(req.Path)
	}
	part, err := w.CreateFormFile("files", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read source pdf: %w", err)
	}

	fields := [][2]string{
		{"to_formats", "md"},
		{"image_export_mode", "placeholder"},
		{"do_ocr", "true"},
		{"force_ocr", strconv.FormatBool(req.ForceOCR)},
		{"table_mode", "accurate"},
	}
	if req.PageBreaks && d.pageBreak != "" {
		fields = append(fields, [2]string{"md_page_break_placeholder", d.pageBreak})
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
