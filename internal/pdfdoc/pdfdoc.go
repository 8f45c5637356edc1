// Package pdfdoc wraps the low-level PDF page primitives the dispatcher
// needs: counting pages, collecting a page sequence into a new document and
// concatenating documents.
package pdfdoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/mattjoyce/folio/internal/apperr"
)

//go:generate mockgen -destination=../dispatch/mocks/mock_pdfdoc.go -package=mocks github.com/mattjoyce/folio/internal/pdfdoc Toolkit

// Toolkit is the page manipulation boundary.
type Toolkit interface {
	PageCount(ctx context.Context, path string) (int, error)
	// Collect writes the given 1-based pages, in order and with duplicates
	// kept, to out.
	Collect(ctx context.Context, in, out string, pages []int) error
	// Merge concatenates every page of inputs, in order, into out.
	Merge(ctx context.Context, inputs []string, out string) error
}

var disableConfigDir sync.Once

// Pdfcpu implements Toolkit with pdfcpu. Page counts are cached per file
// identity (path, size, mtime). pdfcpu mutates the configuration it is
// given, so every call gets its own.
type Pdfcpu struct {
	counts *cache.Cache
}

// NewPdfcpu returns a Toolkit. cacheTTL <= 0 uses ten minutes.
func NewPdfcpu(cacheTTL time.Duration) *Pdfcpu {
	disableConfigDir.Do(api.DisableConfigDir)
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Pdfcpu{counts: cache.New(cacheTTL, 2*cacheTTL)}
}

func (p *Pdfcpu) newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (p *Pdfcpu) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat pdf: %w", err)
	}
	key := path + "|" + strconv.FormatInt(fi.Size(), 10) + "|" + strconv.FormatInt(fi.ModTime().UnixNano(), 10)
	if n, ok := p.counts.Get(key); ok {
		return n.(int), nil
	}

	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, engineErr("count pages", err)
	}
	p.counts.Set(key, n, cache.DefaultExpiration)
	return n, nil
}

func (p *Pdfcpu) Collect(ctx context.Context, in, out string, pages []int) error {
	if len(pages) == 0 {
		return errors.New("collect: no pages selected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := make([]string, len(pages))
	for i, n := range pages {
		sel[i] = strconv.Itoa(n)
	}
	if err := api.CollectFile(in, out, sel, p.newConf()); err != nil {
		return engineErr("collect pages", err)
	}
	return ctx.Err()
}

func (p *Pdfcpu) Merge(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return errors.New("merge: no inputs")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.MergeCreateFile(inputs, out, false, p.newConf()); err != nil {
		return engineErr("merge documents", err)
	}
	return ctx.Err()
}

func engineErr(action string, err error) error {
	return apperr.Wrap(apperr.EngineFailure, err, "pdf engine could not %s", action)
}
