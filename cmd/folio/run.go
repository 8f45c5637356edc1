package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/config"
	"github.com/mattjoyce/folio/internal/dispatch"
	"github.com/mattjoyce/folio/internal/log"
	"github.com/mattjoyce/folio/internal/session"
)

// runFlags are shared by every `run` operation.
type runFlags struct {
	configPath string
	inDir      string
	outDir     string
	jsonOut    bool
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&f.inDir, "in", "", "Input directory holding the PDFs")
	fs.StringVar(&f.outDir, "out", "", "Output directory for artifacts")
	fs.BoolVar(&f.jsonOut, "json", false, "Print results as JSON")
}

// opFunc runs one operation against the held session.
type opFunc func(ctx context.Context, d *dispatch.Dispatcher, h *session.Handle, files []string) ([]dispatch.Result, error)

func runOperationNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printRunHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	op := args[0]
	fs := flag.NewFlagSet("run "+op, flag.ContinueOnError)
	var common runFlags
	common.register(fs)

	var run opFunc
	switch op {
	case "ocr":
		output := fs.String("output", "full", "full or pages")
		preprocess := fs.Bool("preprocess", false, "Grayscale and downscale pages before OCR")
		run = func(ctx context.Context, d *dispatch.Dispatcher, h *session.Handle, files []string) ([]dispatch.Result, error) {
			mode, err := dispatch.ParseOutputMode(*output)
			if err != nil {
				return nil, err
			}
			var pre *bool
			if flagSet(fs, "preprocess") {
				pre = preprocess
			}
			return eachFile(files, func(name string) (dispatch.Result, error) {
				return d.OCR(ctx, h, dispatch.OCRParams{Filename: name, Output: mode, Preprocess: pre})
			})
		}
	case "markdown":
		output := fs.String("output", "full", "full or pages")
		forceOCR := fs.Bool("force-ocr", false, "Ask the converter to OCR every page")
		run = func(ctx context.Context, d *dispatch.Dispatcher, h *session.Handle, files []string) ([]dispatch.Result, error) {
			mode, err := dispatch.ParseOutputMode(*output)
			if err != nil {
				return nil, err
			}
			return eachFile(files, func(name string) (dispatch.Result, error) {
				return d.Markdown(ctx, h, dispatch.MarkdownParams{Filename: name, Output: mode, ForceOCR: *forceOCR})
			})
		}
	case "split":
		pageRange := fs.String("range", "", "Inclusive page range, e.g. 2-5")
		pageList := fs.String("pages", "", "Comma-separated page numbers, e.g. 1,3,7")
		combined := fs.Bool("combined", false, "Write the selection as one PDF")
		run = func(ctx context.Context, d *dispatch.Dispatcher, h *session.Handle, files []string) ([]dispatch.Result, error) {
			pages, err := parsePageList(*pageList)
			if err != nil {
				return nil, err
			}
			return eachFile(files, func(name string) (dispatch.Result, error) {
				return d.Split(ctx, h, dispatch.SplitParams{Filename: name, PageRange: *pageRange, Pages: pages, Combined: *combined})
			})
		}
	case "merge":
		outName := fs.String("out-name", "", "Merged file name (default merged.pdf)")
		run = func(ctx context.Context, d *dispatch.Dispatcher, h *session.Handle, files []string) ([]dispatch.Result, error) {
			res, err := d.Merge(ctx, h, dispatch.MergeParams{Filenames: files, OutName: *outName})
			if err != nil {
				return nil, err
			}
			return []dispatch.Result{res}, nil
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown operation: %s\n\n", op)
		printRunHelp()
		return 1
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if common.inDir == "" || common.outDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --in and --out are required")
		return 1
	}

	return executeRun(common, fs.Args(), run)
}

func executeRun(f runFlags, files []string, run opFunc) int {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// One-shot runs keep stdout for results and skip the journal.
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel)
	journalOff, localOn := false, true
	cfg.Journal.Enabled = &journalOff
	cfg.Sessions.AllowLocalDirs = &localOn

	scratch, err := os.MkdirTemp("", "folio-run-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create scratch directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(scratch)
	cfg.Sessions.BaseDir = scratch

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, log.Get())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer svc.Close()
	defer svc.sessions.Shutdown(context.Background())

	info, err := svc.sessions.Create(ctx, session.Config{InputDir: f.inDir, OutputDir: f.outDir})
	if err != nil {
		printRunError(err)
		return 1
	}
	h, err := svc.sessions.Get(ctx, info.ID)
	if err != nil {
		printRunError(err)
		return 1
	}
	defer h.Release()

	if len(files) == 0 {
		files, err = h.Workspace().ListInputFiles()
		if err != nil {
			printRunError(err)
			return 1
		}
	}

	logger := log.WithSession(info.ID)
	logger.Debug("one-shot session opened", "input_dir", f.inDir, "output_dir", f.outDir, "files", len(files))

	results, err := run(ctx, svc.dispatcher, h, files)
	logger.Debug("one-shot session finished", "results", len(results), "failed", err != nil)
	if f.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
	} else {
		printResults(results)
	}
	if err != nil {
		printRunError(err)
		return 1
	}
	return 0
}

// eachFile runs fn per file and stops at the first failure, returning the
// results gathered so far.
func eachFile(files []string, fn func(string) (dispatch.Result, error)) ([]dispatch.Result, error) {
	if len(files) == 0 {
		return nil, apperr.New(apperr.FileNotFound, "no PDF files to process")
	}
	results := make([]dispatch.Result, 0, len(files))
	for _, name := range files {
		res, err := fn(name)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func parsePageList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	pages := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, apperr.New(apperr.InvalidConfig, "invalid page number %q", p).WithField("pages", raw)
		}
		pages = append(pages, n)
	}
	return pages, nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printResults(results []dispatch.Result) {
	for _, res := range results {
		for _, a := range res.Artifacts {
			fmt.Printf("%s\t%s\n", a.Kind, a.Name)
		}
		for _, p := range res.Pages {
			if !p.OK {
				fmt.Fprintf(os.Stderr, "page %d failed: %s\n", p.Page, p.Error)
			}
		}
	}
}

func printRunError(err error) {
	if e, ok := apperr.As(err); ok {
		fmt.Fprintf(os.Stderr, "Error (%s): %s\n", e.Kind, e.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func printRunHelp() {
	fmt.Println("Usage: folio run <ocr|markdown|split|merge> --in DIR --out DIR [flags] [FILE...]")
	fmt.Println()
	fmt.Println("Runs one operation against a local directory without starting the service.")
	fmt.Println("With no FILE arguments every PDF in --in is processed (merge: in name order).")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --in DIR          Input directory")
	fmt.Println("  --out DIR         Output directory")
	fmt.Println("  --config PATH     Config file (defaults apply without one)")
	fmt.Println("  --json            Print results as JSON")
	fmt.Println()
	fmt.Println("ocr:       --output full|pages  --preprocess")
	fmt.Println("markdown:  --output full|pages  --force-ocr")
	fmt.Println("split:     --range A-B | --pages 1,3,7  --combined")
	fmt.Println("merge:     --out-name NAME")
}
