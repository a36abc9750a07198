// Package execution runs jobs end to end: resolve, supervise, and settle
// the cost with the session's ledger or quota.
package execution

import (
	"context"
	"io"
	"time"

	"fms/internal/ledger"
	"fms/internal/sandbox/engine"
	"fms/internal/sandbox/observer"
	"fms/internal/sandbox/result"
	"fms/internal/sandbox/spec"
	"fms/pkg/errors"
	"fms/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request describes one job to run.
type Request struct {
	JobID string
	// Label names the job in usage records; defaults to Path.
	Label  string
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Quota  spec.Quota
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Options are optional orchestrator collaborators.
type Options struct {
	Resolver Resolver
	Recorder observer.Recorder
	Now      func() time.Time
}

// Orchestrator drives jobs through an engine.
type Orchestrator struct {
	engine   engine.Engine
	resolver Resolver
	recorder observer.Recorder
	now      func() time.Time
}

// New creates an orchestrator.
func New(eng engine.Engine, opts Options) *Orchestrator {
	o := &Orchestrator{
		engine:   eng,
		resolver: opts.Resolver,
		recorder: opts.Recorder,
		now:      opts.Now,
	}
	if o.resolver == nil {
		o.resolver = SymlinkResolver{}
	}
	if o.recorder == nil {
		o.recorder = observer.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// KillJob aborts a running job.
func (o *Orchestrator) KillJob(ctx context.Context, jobID string) error {
	return o.engine.KillJob(ctx, jobID)
}

// Run executes req under sess and returns the final report. Launch errors
// are returned with a LaunchError report and nothing is charged. Every
// other outcome is charged; a ledger or monitoring failure is returned
// alongside a complete report.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, req Request) (result.Report, error) {
	if sess == nil {
		sess = &Session{}
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if req.Label == "" {
		req.Label = req.Path
	}
	ctx = logger.WithJobID(ctx, req.JobID)
	if sess.Ledger != nil {
		ctx = logger.WithUser(ctx, sess.Ledger.User())
	}
	report := result.Report{JobID: req.JobID, Label: req.Label, Outcome: result.LaunchError, ExitCode: -1}

	target, err := o.resolver.Resolve(req.Path)
	if err != nil {
		logger.Warn(ctx, "resolve target failed", zap.String("path", req.Path), zap.Error(err))
		o.attachBalances(sess, &report)
		return report, err
	}

	if sess.Ledger != nil && sess.Mode == "" {
		o.attachBalances(sess, &report)
		return report, errors.New(errors.LedgerNotConfigured)
	}

	var reserved float64
	quotaMode := sess.Ledger == nil && sess.Quota != nil
	if quotaMode {
		if err := sess.Quota.Reserve(req.Quota.CPUSeconds); err != nil {
			logger.Info(ctx, "job rejected by session quota",
				zap.Float64("requested", req.Quota.CPUSeconds),
				zap.Float64("remaining", sess.Quota.Remaining()),
			)
			o.attachBalances(sess, &report)
			return report, err
		}
		reserved = req.Quota.CPUSeconds
	}

	runSpec := spec.RunSpec{
		JobID:  req.JobID,
		Label:  req.Label,
		Path:   target,
		Args:   req.Args,
		Env:    req.Env,
		Dir:    req.Dir,
		Quota:  req.Quota,
		Stdin:  req.Stdin,
		Stdout: req.Stdout,
		Stderr: req.Stderr,
	}
	if sess.Ledger != nil && sess.Mode == ledger.Prepaid {
		ceiling := sess.Ledger.Balance()
		runSpec.CreditCeiling = &ceiling
		runSpec.Cost = ledger.Cost
	}

	res, runErr := o.engine.Run(ctx, runSpec)
	if res.Outcome == result.LaunchError {
		if quotaMode {
			sess.Quota.Settle(reserved, 0)
		}
		o.attachBalances(sess, &report)
		if runErr == nil {
			runErr = errors.New(errors.LaunchFailed)
		}
		return report, runErr
	}

	report.Outcome = res.Outcome
	report.Sample = res.Sample
	report.ExitCode = res.ExitCode
	report.Cost = ledger.CostOf(res.Sample)

	settleErr := o.settle(ctx, sess, &report, reserved)

	o.recorder.ObserveJob(ctx, report.Outcome.String(), report.Sample.CPUSeconds,
		report.Sample.MaxMemoryMB, report.Sample.WallSeconds, report.Cost)
	if report.Sample.CPUSource != "" {
		o.recorder.ObserveCPUSource(ctx, report.Sample.CPUSource)
	}
	o.attachBalances(sess, &report)

	logger.Info(ctx, "job settled",
		zap.String("outcome", report.Outcome.String()),
		zap.Float64("cost", report.Cost),
		zap.String("mode", string(sess.Mode)),
	)

	if runErr != nil {
		return report, runErr
	}
	return report, settleErr
}

func (o *Orchestrator) settle(ctx context.Context, sess *Session, report *result.Report, reserved float64) error {
	switch {
	case sess.Ledger != nil && sess.Mode == ledger.Prepaid:
		ok, err := sess.Ledger.Debit(ctx, report.Cost)
		if !ok && report.Outcome == result.Success {
			report.Outcome = result.InsufficientCredits
		}
		return err
	case sess.Ledger != nil && sess.Mode == ledger.Postpaid:
		rec := ledger.NewUsageRecord(report.Label, report.Sample, report.Cost, o.now())
		return sess.Ledger.RecordUsage(ctx, rec)
	case sess.Quota != nil:
		sess.Quota.Settle(reserved, report.Sample.CPUSeconds)
	}
	return nil
}

func (o *Orchestrator) attachBalances(sess *Session, report *result.Report) {
	if sess.Ledger != nil {
		balance := sess.Ledger.Balance()
		report.Balance = &balance
	}
	if sess.Ledger == nil && sess.Quota != nil {
		remaining := sess.Quota.Remaining()
		report.Remaining = &remaining
	}
}
