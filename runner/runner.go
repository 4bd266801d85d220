// Package runner drives one monitoring run from browser launch to delivery
// of the result envelope, and guarantees the browser is torn down.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/extractor"
	"github.com/use-agent/downwatch/models"
	"github.com/use-agent/downwatch/scraper"
	"github.com/use-agent/downwatch/webhook"
)

// Reporter delivers a finished result to the collector.
// webhook.Client is the production implementation.
type Reporter interface {
	Deliver(ctx context.Context, result models.RunResult) (*models.DeliveryOutcome, error)
}

// Outcome is everything observable about a finished run.
type Outcome struct {
	RunID string

	// Result is the envelope that was handed to the reporter.
	Result models.RunResult

	// Err is the failure that diverted the run to the failure branch, or
	// nil on the success path.
	Err error

	// Delivery and DeliveryErr are the reporter's answer. At most one of
	// them is set.
	Delivery    *models.DeliveryOutcome
	DeliveryErr error

	// States is the path taken through the state machine.
	States []State

	strict bool
}

// Delivered reports whether the collector accepted the envelope.
func (o *Outcome) Delivered() bool {
	return o.DeliveryErr == nil && o.Delivery != nil && o.Delivery.Delivered
}

// Failed reports whether the run counts as failed.
//
// A run on the failure branch always fails, whether or not its report got
// through. A successful scrape fails only under strict delivery, when the
// collector rejected the envelope or could not be reached.
func (o *Outcome) Failed() bool {
	if o.Err != nil {
		return true
	}
	return o.strict && !o.Delivered()
}

// ExitCode maps the outcome to a process exit status.
func (o *Outcome) ExitCode() int {
	if o.Failed() {
		return 1
	}
	return 0
}

func (o *Outcome) enter(s State) {
	o.States = append(o.States, s)
}

// Runner executes runs. It holds no per-run state, so a Runner may be reused
// for sequential runs.
type Runner struct {
	cfg         config.Config
	launcher    scraper.Launcher
	reporter    Reporter
	extractor   *extractor.Extractor
	readiness   *scraper.Readiness
	diagnostics *scraper.DiagnosticCollector
	now         func() time.Time
}

// New builds a runner. It fails only when the configured selectors do not
// compile.
func New(cfg config.Config, launcher scraper.Launcher, reporter Reporter) (*Runner, error) {
	ex, err := extractor.New(cfg.Extract)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:         cfg,
		launcher:    launcher,
		reporter:    reporter,
		extractor:   ex,
		readiness:   scraper.NewReadiness(cfg.Extract.TitleSelector, cfg.Readiness),
		diagnostics: scraper.NewDiagnosticCollector(cfg.Diagnostics),
		now:         time.Now,
	}, nil
}

// SetClock replaces the clock used for envelope timestamps and the
// viewport jitter seed.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// run is the state of one Run call.
type run struct {
	log     *slog.Logger
	out     *Outcome
	session scraper.Session
	page    scraper.Page
}

func (rn *run) enter(s State) {
	rn.out.enter(s)
	rn.log.Debug("state", "state", s.String())
}

// Run performs one complete run. It never panics and never returns nil.
// The browser session, if one was acquired, is closed exactly once before
// Run returns.
func (r *Runner) Run(ctx context.Context) *Outcome {
	id := uuid.NewString()
	rn := &run{
		log: slog.With("run_id", id, "source", r.cfg.Target.Source),
		out: &Outcome{RunID: id, strict: r.cfg.Collector.StrictDelivery},
	}
	rn.enter(StateInit)
	defer r.teardown(rn)

	// ── 1. Scrape under the run deadline ──────────────────────────────
	runCtx, cancel := r.withDeadline(ctx)
	records, err := r.scrape(runCtx, rn)
	cancel()

	// ── 2. Build the envelope ─────────────────────────────────────────
	if err != nil {
		rn.out.Err = err
		rn.log.Error("run failed", "code", models.CodeOf(err), "error", err)

		rn.enter(StateDiagnosing)
		diag := r.diagnostics.Collect(ctx, rn.page)
		rn.out.Result = models.NewFailure(r.cfg.Target.Source, r.now(), err.Error(), diag)
	} else {
		rn.out.Result = models.NewSuccess(r.cfg.Target.Source, r.now(), records)
	}

	// ── 3. Report ─────────────────────────────────────────────────────
	// Delivery outlives a canceled run so the failure still reaches the
	// collector; the webhook client's timeout bounds it.
	r.report(context.WithoutCancel(ctx), rn)
	rn.enter(StateReported)

	return rn.out
}

func (r *Runner) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Run.Deadline > 0 {
		return context.WithTimeout(ctx, r.cfg.Run.Deadline)
	}
	return context.WithCancel(ctx)
}

// scrape runs the steps from launch to extraction. A panic inside any step
// is converted to an error so the failure branch still runs.
func (r *Runner) scrape(ctx context.Context, rn *run) (records []models.StatusRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = models.NewScrapeError(models.ErrCodeBrowserCrash, "panic during scrape", fmt.Errorf("%v", p))
		}
	}()

	// ── 1. Acquire the browser ────────────────────────────────────────
	session, err := r.launcher.Launch(ctx)
	if err != nil {
		return nil, classify(ctx, err, models.ErrCodeBrowserCrash, "failed to launch browser")
	}
	rn.session = session
	rn.enter(StateSessionAcquired)

	// ── 2. Apply a fresh evasion profile ──────────────────────────────
	rng := rand.New(rand.NewSource(r.now().UnixNano()))
	profile := scraper.NewProfile(r.cfg.Evasion, r.cfg.Target.URL, rng)

	page, err := session.NewPage(ctx, profile)
	if err != nil {
		return nil, classify(ctx, err, models.ErrCodeBrowserCrash, "failed to open page")
	}
	rn.page = page
	rn.enter(StateProfileApplied)
	rn.log.Debug("profile applied",
		"viewport", fmt.Sprintf("%dx%d", profile.Width, profile.Height),
		"referer", profile.Referer,
	)

	// ── 3. Navigate ───────────────────────────────────────────────────
	if err := page.Navigate(ctx, r.cfg.Target.URL); err != nil {
		return nil, classify(ctx, err, models.ErrCodeNavigation, "navigation to target URL failed")
	}
	rn.enter(StateNavigated)

	if err := scraper.Settle(ctx, r.cfg.Readiness.NavigationSettle); err != nil {
		return nil, classify(ctx, err, models.ErrCodeNavigation, "interrupted after navigation")
	}

	// ── 4. Consent overlay (best effort) ──────────────────────────────
	if err := scraper.DismissConsent(ctx, page, r.cfg.Readiness.ConsentSelector, r.cfg.Readiness.ConsentTimeout); err != nil {
		rn.log.Debug("consent dismissal skipped", "error", err)
	}
	if err := scraper.Settle(ctx, r.cfg.Readiness.ConsentSettle); err != nil {
		return nil, classify(ctx, err, models.ErrCodeNavigation, "interrupted after consent dismissal")
	}

	// ── 5. Wait for structure ─────────────────────────────────────────
	if err := r.readiness.Wait(ctx, page); err != nil {
		return nil, err
	}
	rn.enter(StateReady)

	// ── 6. Extract ────────────────────────────────────────────────────
	markup, err := page.HTML(ctx)
	if err != nil {
		return nil, classify(ctx, err, models.ErrCodeExtraction, "failed to read rendered markup")
	}
	records, err = r.extractor.Extract(markup)
	if err != nil {
		return nil, classify(ctx, err, models.ErrCodeExtraction, "failed to parse rendered markup")
	}
	rn.enter(StateExtracted)

	withIndicator := 0
	for _, rec := range records {
		if rec.HasIndicator() {
			withIndicator++
		}
	}
	rn.log.Info("records extracted", "count", len(records), "with_indicator", withIndicator)
	rn.log.Debug("records", "data", records)

	return records, nil
}

// report makes the single delivery attempt and records its outcome.
func (r *Runner) report(ctx context.Context, rn *run) {
	outcome, err := r.reporter.Deliver(ctx, rn.out.Result)
	rn.out.Delivery = outcome
	rn.out.DeliveryErr = err

	switch {
	case err != nil:
		rn.log.Error("delivery failed",
			"ok", rn.out.Result.OK,
			"code", models.CodeOf(err),
			"error", err,
		)
	case outcome == nil:
		rn.log.Warn("delivery returned no outcome", "ok", rn.out.Result.OK)
	case !outcome.Delivered:
		rn.log.Warn("delivery rejected",
			"ok", rn.out.Result.OK,
			"error", webhook.RejectedError(outcome),
			"body", outcome.ResponseBody,
		)
	default:
		rn.log.Info("delivered",
			"ok", rn.out.Result.OK,
			"status", outcome.HTTPStatus,
		)
	}
}

// teardown closes the session. Close errors are logged and dropped.
func (r *Runner) teardown(rn *run) {
	if rn.session != nil {
		if err := rn.session.Close(); err != nil {
			rn.log.Warn("teardown failed", "error", err)
		}
	}
	rn.enter(StateTornDown)
}

// classify gives err a code unless it already carries one. Anything that
// fails after the run context ended is attributed to the deadline or to
// cancellation, whichever ended it.
func classify(ctx context.Context, err error, code, msg string) error {
	if models.CodeOf(err) != "" {
		return err
	}
	if ctx.Err() != nil {
		return models.NewScrapeError(models.InterruptCode(ctx), msg, err)
	}
	return models.NewScrapeError(code, msg, err)
}
