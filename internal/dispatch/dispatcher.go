// Package dispatch runs PDF operations against a session workspace.
//
// Every call is synchronous for the caller. Work is bounded by a semaphore
// sized by MaxConcurrent, writes to the same artifact key within a session
// are serialized, and each operation kind carries its own timeout.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/journal"
	"github.com/mattjoyce/folio/internal/markdown"
	"github.com/mattjoyce/folio/internal/ocr"
	"github.com/mattjoyce/folio/internal/pdfdoc"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/folio/internal/dispatch Recorder

// Recorder persists an audit row per operation.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Publisher receives operation lifecycle events.
type Publisher interface {
	Publish(eventType string, data any)
}

// Timeouts per operation kind. Zero disables the timeout.
type Timeouts struct {
	OCR      time.Duration
	Markdown time.Duration
	Split    time.Duration
	Merge    time.Duration
}

// Config tunes a Dispatcher.
type Config struct {
	MaxConcurrent int
	Timeouts      Timeouts

	OCRDPI        int
	OCRLanguages  []string
	OCRPreprocess bool
	OCRMaxEdge    int
}

// Deps are the external collaborators.
type Deps struct {
	PDF        pdfdoc.Toolkit
	Rasterizer ocr.Rasterizer
	OCR        ocr.Engine
	Markdown   markdown.Converter
	Journal    Recorder
	Events     Publisher
	Logger     *slog.Logger
	Now        func() time.Time
}

type Dispatcher struct {
	cfg    Config
	deps   Deps
	sem    chan struct{}
	keys   *keyLock
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, deps Deps) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}
	if cfg.OCRDPI <= 0 {
		cfg.OCRDPI = 300
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		keys:   newKeyLock(),
		logger: logger.With("component", "dispatch"),
		now:    now,
	}
}

// Capacity is the number of operations that may run at once.
func (d *Dispatcher) Capacity() int { return cap(d.sem) }

// InFlight is the number of operations currently holding a worker slot.
func (d *Dispatcher) InFlight() int { return len(d.sem) }

func (d *Dispatcher) timeout(op Op) time.Duration {
	switch op {
	case OpOCR:
		return d.cfg.Timeouts.OCR
	case OpMarkdown:
		return d.cfg.Timeouts.Markdown
	case OpSplit:
		return d.cfg.Timeouts.Split
	case OpMerge:
		return d.cfg.Timeouts.Merge
	}
	return 0
}

// job describes one validated operation ready to run.
type job struct {
	op       Op
	filename string
	keys     []string
	work     func(ctx context.Context) (Result, error)
}

// run applies the timeout, takes the artifact key locks and a worker slot,
// executes the work and records the outcome.
func (d *Dispatcher) run(ctx context.Context, t Target, j job) (Result, error) {
	started := d.now()
	logger := d.logger.With("session_id", t.ID(), "op", j.op, "filename", j.filename)

	limit := d.timeout(j.op)
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	res, err := d.execute(ctx, t, j)
	if err != nil {
		err = d.classify(ctx, j.op, limit, err)
	}
	res.Op = j.op
	res.Duration = d.now().Sub(started)

	d.record(t.ID(), j, started, res, err)
	if err != nil {
		logger.Warn("operation failed", "error", err, "kind", apperr.KindOf(err), "duration_ms", res.Duration.Milliseconds())
		return Result{}, err
	}
	logger.Info("operation completed", "artifacts", len(res.Artifacts), "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

func (d *Dispatcher) execute(ctx context.Context, t Target, j job) (Result, error) {
	scoped := make([]string, len(j.keys))
	for i, k := range j.keys {
		scoped[i] = t.ID() + "\x00" + k
	}
	unlock, err := d.keys.Lock(ctx, scoped...)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-d.sem }()

	d.publish("operation.started", t.ID(), j, nil, nil)
	return j.work(ctx)
}

// classify turns a deadline hit into OperationTimeout. Other errors pass
// through; bare engine errors are wrapped as EngineFailure.
func (d *Dispatcher) classify(ctx context.Context, op Op, limit time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if limit > 0 {
			return apperr.Wrap(apperr.OperationTimeout, err, "%s did not finish within %s", op, limit).WithField("op", string(op))
		}
		return apperr.Wrap(apperr.OperationTimeout, err, "%s did not finish in time", op).WithField("op", string(op))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if _, ok := apperr.As(err); !ok {
		return apperr.Wrap(apperr.EngineFailure, err, "%s failed", op).WithField("op", string(op))
	}
	return err
}

func (d *Dispatcher) record(sessionID string, j job, started time.Time, res Result, opErr error) {
	entry := journal.Entry{
		SessionID:   sessionID,
		Op:          string(j.op),
		Filename:    j.filename,
		Status:      journal.StatusSucceeded,
		StartedAt:   started,
		CompletedAt: started.Add(res.Duration),
		Duration:    res.Duration,
	}
	for _, a := range res.Artifacts {
		entry.Artifacts = append(entry.Artifacts, a.Kind.Dir()+"/"+a.Name)
	}
	if opErr != nil {
		entry.Status = journal.StatusFailed
		entry.ErrorKind = string(apperr.KindOf(opErr))
		entry.Error = publicMessage(opErr)
		d.publish("operation.failed", sessionID, j, nil, opErr)
	} else {
		d.publish("operation.completed", sessionID, j, &res, nil)
	}

	if d.deps.Journal == nil {
		return
	}
	// The caller's context may already be done; the audit row is still wanted.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.deps.Journal.Record(ctx, entry); err != nil {
		d.logger.Error("failed to record operation", "session_id", sessionID, "op", j.op, "error", err)
	}
}

func (d *Dispatcher) publish(eventType, sessionID string, j job, res *Result, opErr error) {
	if d.deps.Events == nil {
		return
	}
	data := map[string]any{
		"session_id": sessionID,
		"op":         j.op,
		"filename":   j.filename,
	}
	if res != nil {
		data["artifacts"] = res.Artifacts
		data["duration_ms"] = res.Duration.Milliseconds()
	}
	if opErr != nil {
		data["kind"] = apperr.KindOf(opErr)
		data["error"] = publicMessage(opErr)
	}
	d.deps.Events.Publish(eventType, data)
}

func publicMessage(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Public()
	}
	return err.Error()
}
