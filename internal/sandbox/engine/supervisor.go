package engine

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"fms/internal/sandbox/cgroup"
	"fms/internal/sandbox/enforcer"
	"fms/internal/sandbox/observer"
	"fms/internal/sandbox/proc"
	"fms/internal/sandbox/result"
	"fms/internal/sandbox/sampler"
	"fms/internal/sandbox/spec"
	"fms/internal/sandbox/tracker"
	"fms/pkg/errors"
	"fms/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type supervisor struct {
	cfg      Config
	src      proc.Source
	times    proc.Times
	recorder observer.Recorder

	registry  map[string]*enforcer.Terminator
	registryM sync.Mutex
}

// NewEngine creates an engine for the current platform.
func NewEngine(cfg Config, deps Deps) (Engine, error) {
	cfg.ApplyDefaults()
	src := deps.Source
	if src == nil {
		var err error
		src, err = proc.NewSource()
		if err != nil {
			return nil, errors.Wrap(err, errors.PlatformUnsupported)
		}
	}
	times := deps.Times
	if times == nil {
		times = proc.NewTimes()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = observer.Nop{}
	}
	return &supervisor{
		cfg:      cfg,
		src:      src,
		times:    times,
		recorder: recorder,
		registry: make(map[string]*enforcer.Terminator),
	}, nil
}

// job is the per-run state shared between Run and the monitoring loop.
type job struct {
	spec.Job
	cmd     *exec.Cmd
	tracker *tracker.Tracker
	term    *enforcer.Terminator
	group   *cgroup.Group

	latest     atomic.Pointer[tracker.ProcessSet]
	lastSample atomic.Pointer[result.Sample]
}

type loopResult struct {
	outcome  result.Outcome
	normal   bool
	sample   result.Sample
	exitCode int
	err      error
}

func (s *supervisor) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{Outcome: result.LaunchError}, err
	}
	if runSpec.JobID == "" {
		runSpec.JobID = uuid.NewString()
	}
	ctx = logger.WithJobID(ctx, runSpec.JobID)

	cmd := exec.Command(runSpec.Path, runSpec.Args...)
	cmd.Env = runSpec.Env
	cmd.Dir = runSpec.Dir
	cmd.Stdin = runSpec.Stdin
	cmd.Stdout = runSpec.Stdout
	cmd.Stderr = runSpec.Stderr
	cmd.SysProcAttr = buildSysProcAttr()
	cmd.WaitDelay = s.cfg.JoinGrace

	var group *cgroup.Group
	if s.cfg.Cgroup.Enabled {
		g, err := cgroup.Create(s.cfg.Cgroup.Root, runSpec.JobID)
		if err != nil {
			logger.Warn(ctx, "create cgroup failed, tracking by parent links only", zap.Error(err))
		} else {
			group = g
		}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		removeGroup(ctx, group)
		return result.RunResult{JobID: runSpec.JobID, Outcome: result.LaunchError, ExitCode: -1},
			errors.Wrapf(err, errors.LaunchFailed, "start %s", runSpec.Path)
	}
	pid := cmd.Process.Pid

	if group != nil {
		if err := group.Add(pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", group.Path()), zap.Error(err))
			removeGroup(ctx, group)
			group = nil
		}
	}

	tcfg := tracker.Config{ProcessGroup: processGroup(pid)}
	if group != nil {
		tcfg.Membership = group
	}
	j := &job{
		Job: spec.Job{
			ID:        runSpec.JobID,
			RootPID:   pid,
			StartedAt: start,
			Quota:     runSpec.Quota,
			Label:     runSpec.Label,
		},
		cmd:     cmd,
		tracker: tracker.New(s.src, pid, tcfg),
		group:   group,
	}
	j.term = enforcer.NewTerminator(func() error {
		return j.tracker.KillAll(j.latest.Load())
	})
	if set, err := j.tracker.Refresh(context.Background()); err == nil {
		j.latest.Store(set)
	}

	s.register(j.ID, j.term)
	defer s.unregister(j.ID)

	logger.Info(ctx, "job started",
		zap.Int("pid", pid),
		zap.String("path", runSpec.Path),
		zap.Float64("cpu_quota", runSpec.Quota.CPUSeconds),
		zap.Float64("memory_mb", runSpec.Quota.MemoryMB),
		zap.Float64("timeout", runSpec.Quota.TimeoutSeconds),
	)

	limits := enforcer.Limits{
		Quota:         runSpec.Quota,
		TimeoutMargin: s.cfg.TimeoutMargin,
		CreditCeiling: runSpec.CreditCeiling,
		Cost:          runSpec.Cost,
	}
	done := make(chan loopResult, 1)
	go func() {
		done <- s.monitor(ctx, j, enforcer.New(limits, j.term), sampler.NewDefault(s.cfg.Sampler, s.times))
	}()

	stopAbort := make(chan struct{})
	defer close(stopAbort)
	go func() {
		select {
		case <-ctx.Done():
			if fired, err := j.term.Fire(); fired {
				s.recorder.ObserveKill(ctx, result.Aborted.String(), err)
				logger.Info(ctx, "job aborted", zap.Error(err))
			}
		case <-stopAbort:
		}
	}()

	var ceiling <-chan time.Time
	if timeout := runSpec.Quota.Timeout(); timeout > 0 {
		timer := time.NewTimer(timeout + s.cfg.JoinGrace)
		defer timer.Stop()
		ceiling = timer.C
	}

	select {
	case res := <-done:
		logger.Info(ctx, "job finished",
			zap.String("outcome", res.outcome.String()),
			zap.Bool("normal", res.normal),
			zap.Float64("cpu", res.sample.CPUSeconds),
			zap.Float64("max_memory_mb", res.sample.MaxMemoryMB),
			zap.Float64("wall", res.sample.WallSeconds),
			zap.String("cpu_source", res.sample.CPUSource),
			zap.Int("exit_code", res.exitCode),
		)
		return result.RunResult{
			JobID:    j.ID,
			Outcome:  res.outcome,
			Normal:   res.normal,
			Sample:   res.sample,
			ExitCode: res.exitCode,
		}, res.err
	case <-ceiling:
		_, _ = j.term.Fire()
		killErr := j.tracker.KillAll(j.latest.Load())
		s.recorder.ObserveKill(ctx, result.RuntimeError.String(), killErr)
		logger.Error(ctx, "monitoring loop did not finish in time, tree killed", zap.Error(killErr))
		var sample result.Sample
		if last := j.lastSample.Load(); last != nil {
			sample = *last
		}
		return result.RunResult{JobID: j.ID, Outcome: result.RuntimeError, Sample: sample, ExitCode: -1},
			errors.New(errors.JoinTimeout)
	}
}

// monitor is the only writer of the job's tracker, sampler and enforcer.
func (s *supervisor) monitor(ctx context.Context, j *job, enf *enforcer.Enforcer, smp *sampler.Sampler) loopResult {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var (
		sample  result.Sample
		normal  bool
		loopErr error
	)
	for {
		set, err := j.tracker.Refresh(context.Background())
		if err != nil {
			killErr := enf.Terminate(result.RuntimeError)
			s.recorder.ObserveKill(ctx, result.RuntimeError.String(), killErr)
			loopErr = errors.Wrap(err, errors.ProcessTableFailed)
			logger.Error(ctx, "refresh process tree failed, tree killed", zap.Error(err), zap.NamedError("kill_error", killErr))
			break
		}
		j.latest.Store(set)
		sample = smp.Sample(set, j.StartedAt, time.Now())
		published := sample
		j.lastSample.Store(&published)

		if j.term.Fired() {
			_ = enf.Terminate(result.Aborted)
			break
		}

		rootExited := !rootAlive(set, j.RootPID)
		if outcome, hit := enf.Check(sample); hit && !(rootExited && outcome == result.Timeout) {
			killErr := enf.Terminate(outcome)
			s.recorder.ObserveKill(ctx, outcome.String(), killErr)
			logger.Info(ctx, "limit exceeded, tree killed",
				zap.String("outcome", outcome.String()),
				zap.Float64("cpu", sample.CPUSeconds),
				zap.Float64("memory_mb", sample.MemoryMB),
				zap.Float64("wall", sample.WallSeconds),
				zap.NamedError("kill_error", killErr),
			)
			break
		}
		if rootExited {
			normal = true
			// Descendants left behind by the root must not outlive the job.
			if _, err := j.term.Fire(); err != nil {
				logger.Warn(ctx, "kill leftover processes failed", zap.Error(err))
			}
			break
		}
		<-ticker.C
	}

	waitErr := j.cmd.Wait()
	// The exit status covers the root and every child it waited for,
	// including the last tick's worth the loop never saw.
	if st := j.cmd.ProcessState; st != nil {
		exitCPU := (st.UserTime() + st.SystemTime()).Seconds()
		sample.CPUSeconds = smp.RaiseCPU(exitCPU, sampler.SourceExit)
		sample.CPUSource = smp.Source()
	}
	if j.group != nil {
		if peak := j.group.MemoryPeakMB(); peak > sample.MaxMemoryMB {
			sample.MaxMemoryMB = peak
		}
		removeGroup(ctx, j.group)
	}

	res := loopResult{
		normal:   normal,
		sample:   sample,
		exitCode: exitCodeFromErr(waitErr, j.cmd.ProcessState),
		err:      loopErr,
	}
	switch {
	case normal:
		res.outcome = result.Success
	case enf.State() == enforcer.Terminated:
		res.outcome = enf.Outcome()
	default:
		res.outcome = result.RuntimeError
	}
	return res
}

func (s *supervisor) KillJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.BadRequest("job id is required")
	}
	s.registryM.Lock()
	term, ok := s.registry[jobID]
	s.registryM.Unlock()
	if !ok {
		return errors.NotFoundError("job")
	}
	fired, err := term.Fire()
	if fired {
		s.recorder.ObserveKill(ctx, result.Aborted.String(), err)
	}
	if err != nil {
		return errors.Wrap(err, errors.KillFailed)
	}
	return nil
}

func (s *supervisor) register(jobID string, term *enforcer.Terminator) {
	s.registryM.Lock()
	defer s.registryM.Unlock()
	s.registry[jobID] = term
}

func (s *supervisor) unregister(jobID string) {
	s.registryM.Lock()
	defer s.registryM.Unlock()
	delete(s.registry, jobID)
}

// rootAlive reports whether the root leads the set and has not exited.
// An exited root stays in the table as a zombie until it is reaped.
func rootAlive(set *tracker.ProcessSet, rootPID int) bool {
	if set.Len() == 0 {
		return false
	}
	root := set.Members[0]
	return root.PID == rootPID && !root.Zombie
}

func removeGroup(ctx context.Context, g *cgroup.Group) {
	if g == nil {
		return
	}
	if err := g.Remove(); err != nil {
		logger.Debug(ctx, "remove cgroup failed", zap.String("cgroup", g.Path()), zap.Error(err))
	}
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.Path == "" {
		return errors.ValidationError("path", "target path is required")
	}
	return nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
