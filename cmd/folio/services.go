package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/folio/internal/config"
	"github.com/mattjoyce/folio/internal/dispatch"
	"github.com/mattjoyce/folio/internal/events"
	"github.com/mattjoyce/folio/internal/journal"
	"github.com/mattjoyce/folio/internal/markdown"
	"github.com/mattjoyce/folio/internal/ocr"
	"github.com/mattjoyce/folio/internal/ocr/tesseract"
	"github.com/mattjoyce/folio/internal/pdfdoc"
	"github.com/mattjoyce/folio/internal/session"
	"github.com/mattjoyce/folio/internal/storage"
	"github.com/mattjoyce/folio/internal/workspace"
)

// services are the components shared by `start` and `run`.
type services struct {
	db         *sql.DB
	journal    *journal.Journal
	hub        *events.Hub
	roots      *workspace.RootManager
	sessions   *session.Manager
	dispatcher *dispatch.Dispatcher
}

func (s *services) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{hub: events.NewHub(512)}

	if cfg.Journal.On() {
		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
		}
		svc.db = db
		svc.journal = journal.New(db)
	}

	roots, err := workspace.NewRootManager(cfg.Sessions.BaseDir)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("initialize session directory %s: %w", cfg.Sessions.BaseDir, err)
	}
	svc.roots = roots

	svc.sessions = session.NewManager(roots, session.Options{
		TTL:            cfg.Sessions.TTL,
		AllowLocalDirs: cfg.Sessions.LocalDirsAllowed(),
		MaxUploadBytes: cfg.Sessions.MaxUploadBytes,
		Events:         svc.hub,
		Logger:         logger,
	})

	deps := dispatch.Deps{
		PDF:        pdfdoc.NewPdfcpu(cfg.Sessions.TTL),
		Rasterizer: ocr.NewPoppler(cfg.OCR.Pdftoppm),
		OCR:        tesseract.New(cfg.OCR.Languages...),
		Markdown: markdown.NewDocling(markdown.DoclingConfig{
			URL:            cfg.Markdown.URL,
			PageBreak:      cfg.Markdown.PageBreakPlaceholder(),
			RequestTimeout: cfg.Markdown.RequestTimeout,
		}, logger),
		Events: svc.hub,
		Logger: logger,
	}
	if svc.journal != nil {
		deps.Journal = svc.journal
	}
	svc.dispatcher = dispatch.New(dispatcherConfig(cfg), deps)
	return svc, nil
}

func dispatcherConfig(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		MaxConcurrent: cfg.Dispatch.MaxConcurrent,
		Timeouts: dispatch.Timeouts{
			OCR:      durationOrZero(cfg.Dispatch.Timeouts.OCR),
			Markdown: durationOrZero(cfg.Dispatch.Timeouts.Markdown),
			Split:    durationOrZero(cfg.Dispatch.Timeouts.Split),
			Merge:    durationOrZero(cfg.Dispatch.Timeouts.Merge),
		},
		OCRDPI:        cfg.OCR.DPI,
		OCRLanguages:  cfg.OCR.Languages,
		OCRPreprocess: cfg.OCR.Preprocess,
		OCRMaxEdge:    cfg.OCR.MaxEdge,
	}
}

func durationOrZero(d *time.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return *d
}
