// Package repl is the interactive fms shell.
package repl

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"fms/internal/cli/command"
	"fms/internal/cli/render"
	"fms/internal/execution"
	"fms/internal/ledger"
	"fms/internal/sandbox/spec"
	"fms/pkg/errors"
	"fms/pkg/utils/logger"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"go.uber.org/zap"
)

const defaultPrompt = "fms> "

// LineReader reads one line of input at a time.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// NewReadline opens a terminal line reader with history.
func NewReadline(historyFile string) (LineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("open terminal failed: %w", err)
	}
	return rl, nil
}

// Options configure a Session.
type Options struct {
	Orchestrator *execution.Orchestrator
	Accounts     *ledger.Accounts
	// User is the account used when "mode set" names none.
	User string
	// Mode, when set, starts the session billed to User's ledger.
	Mode ledger.Mode
	// QuotaSeconds is the CPU allowance while no payment mode is set;
	// zero runs jobs without accounting.
	QuotaSeconds float64
	Defaults     spec.Quota
	Reader       LineReader
	Out          io.Writer
	// JobOut and JobErr receive the output of supervised programs.
	JobOut io.Writer
	JobErr io.Writer
}

// Session holds REPL state.
type Session struct {
	orch     *execution.Orchestrator
	accounts *ledger.Accounts
	commands map[string]command.Command
	user     string
	defaults spec.Quota
	session  *execution.Session
	reader   LineReader
	out      io.Writer
	jobOut   io.Writer
	jobErr   io.Writer
}

// New creates a session. A configured Mode opens the user's ledger right away.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Orchestrator == nil || opts.Reader == nil {
		return nil, fmt.Errorf("repl needs an orchestrator and a line reader")
	}
	s := &Session{
		orch:     opts.Orchestrator,
		accounts: opts.Accounts,
		commands: command.Registry(),
		user:     opts.User,
		defaults: opts.Defaults,
		session:  &execution.Session{},
		reader:   opts.Reader,
		out:      opts.Out,
		jobOut:   opts.JobOut,
		jobErr:   opts.JobErr,
	}
	if opts.QuotaSeconds > 0 {
		s.session = execution.NewQuotaSession(opts.QuotaSeconds)
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.jobOut == nil {
		s.jobOut = os.Stdout
	}
	if s.jobErr == nil {
		s.jobErr = os.Stderr
	}
	if opts.Mode != "" {
		if err := s.setMode(ctx, opts.Mode, s.user); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	s.printLine("=== fms: supervised execution ===")
	s.printLine("type 'help' for commands")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.reader.Readline()
		if stderrors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if stderrors.Is(err, io.EOF) {
			s.printLine("bye")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		handled, exit := s.handleSystemCommand(line)
		if exit {
			s.printLine("bye")
			return nil
		}
		if handled {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) (handled, exit bool) {
	switch line {
	case "exit", "quit":
		return true, true
	case "help", "?":
		s.printHelp()
		return true, false
	case "status":
		s.printStatus()
		return true, false
	}
	return false, false
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[command.Key(tokens[0], tokens[1])]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if err := command.Validate(cmd, params); err != nil {
		return err
	}

	switch cmd.Key() {
	case "mode set":
		mode, err := ledger.ParseMode(params.Get("mode"))
		if err != nil {
			return err
		}
		user := params.Get("user")
		if user == "" {
			user = s.user
		}
		return s.setMode(ctx, mode, user)
	case "mode show":
		s.printStatus()
		return nil
	case "credits show":
		return s.showCredits()
	case "credits add":
		return s.addCredits(ctx, params)
	case "usage show":
		return s.showUsage(ctx)
	case "usage clear":
		return s.clearUsage(ctx, params)
	case "quota show":
		return s.showQuota()
	case "quota add":
		return s.addQuota(params)
	case "job run":
		return s.runJob(ctx, params)
	case "job kill":
		return s.orch.KillJob(ctx, params.Get("id"))
	}
	return fmt.Errorf("unhandled command: %s", cmd.Key())
}

func (s *Session) setMode(ctx context.Context, mode ledger.Mode, user string) error {
	if s.accounts == nil {
		return errors.New(errors.LedgerNotConfigured)
	}
	l, err := s.accounts.Get(ctx, user)
	if err != nil {
		return err
	}
	s.user = user
	s.session = execution.NewLedgerSession(l, mode)
	s.printLine("payment mode set to %s for %s", mode, user)
	if mode == ledger.Prepaid {
		s.printLine("available credits: %.2f", l.Balance())
	} else {
		s.printLine("usage will be recorded for billing")
	}
	return nil
}

func (s *Session) ledgerFor(mode ledger.Mode) (*ledger.Ledger, error) {
	if !s.session.PaymentConfigured() {
		return nil, errors.New(errors.LedgerNotConfigured).WithMessage("payment mode is not configured, use 'mode set' first")
	}
	if mode != "" && s.session.Mode != mode {
		return nil, errors.Newf(errors.InvalidPaymentMode, "only available in %s mode", mode)
	}
	return s.session.Ledger, nil
}

func (s *Session) showCredits() error {
	l, err := s.ledgerFor("")
	if err != nil {
		return err
	}
	s.printLine("available credits: %.2f", l.Balance())
	return nil
}

func (s *Session) addCredits(ctx context.Context, params command.Params) error {
	l, err := s.ledgerFor(ledger.Prepaid)
	if err != nil {
		return err
	}
	amount, err := command.ParseFloat(params.Get("amount"))
	if err != nil {
		return err
	}
	if err := l.Credit(ctx, amount); err != nil {
		return err
	}
	s.printLine("added %.2f credits, balance %.2f", amount, l.Balance())
	return nil
}

func (s *Session) showUsage(ctx context.Context) error {
	l, err := s.ledgerFor(ledger.Postpaid)
	if err != nil {
		return err
	}
	records, total, err := l.Usage(ctx)
	if err != nil {
		return err
	}
	render.Usage(s.out, records, total)
	return nil
}

func (s *Session) clearUsage(ctx context.Context, params command.Params) error {
	l, err := s.ledgerFor(ledger.Postpaid)
	if err != nil {
		return err
	}
	if !confirmed(params.Get("confirm")) {
		s.printLine("usage history kept")
		return nil
	}
	archive, err := l.ClearUsage(ctx)
	if err != nil {
		return err
	}
	s.printLine("usage history cleared")
	if archive != "" {
		s.printLine("archived to %s", archive)
	}
	return nil
}

func (s *Session) showQuota() error {
	if s.session.PaymentConfigured() || s.session.Quota == nil {
		return fmt.Errorf("no session quota while a payment mode is set")
	}
	s.printLine("remaining CPU quota: %.2fs", s.session.Quota.Remaining())
	return nil
}

func (s *Session) addQuota(params command.Params) error {
	if s.session.PaymentConfigured() || s.session.Quota == nil {
		return fmt.Errorf("no session quota while a payment mode is set")
	}
	seconds, err := command.ParseFloat(params.Get("seconds"))
	if err != nil {
		return err
	}
	if err := s.session.Quota.Add(seconds); err != nil {
		return err
	}
	s.printLine("remaining CPU quota: %.2fs", s.session.Quota.Remaining())
	return nil
}

func (s *Session) runJob(ctx context.Context, params command.Params) error {
	quota, err := s.quotaFrom(params)
	if err != nil {
		return err
	}
	args, err := command.ParseArgs(params.Get("args"))
	if err != nil {
		return err
	}
	req := execution.Request{
		Label:  params.Get("label"),
		Path:   params.Get("path"),
		Args:   args,
		Quota:  quota,
		Stdout: s.jobOut,
		Stderr: s.jobErr,
	}

	s.printLine("running %s", req.Path)
	s.printLine("CPU quota: %.2fs, memory limit: %.2fMB, timeout: %s", quota.CPUSeconds, quota.MemoryMB, timeoutText(quota))

	jobCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	report, err := s.orch.Run(jobCtx, s.session, req)
	render.Report(s.out, report)
	if err != nil {
		logger.Warn(ctx, "job finished with error", zap.String("job_id", report.JobID), zap.Error(err))
	}
	return err
}

func (s *Session) quotaFrom(params command.Params) (spec.Quota, error) {
	var q spec.Quota
	var err error
	if q.CPUSeconds, err = command.FloatOr(params.Get("cpu"), s.defaults.CPUSeconds); err != nil {
		return q, err
	}
	if q.MemoryMB, err = command.FloatOr(params.Get("memory"), s.defaults.MemoryMB); err != nil {
		return q, err
	}
	if q.TimeoutSeconds, err = command.FloatOr(params.Get("timeout"), s.defaults.TimeoutSeconds); err != nil {
		return q, err
	}
	return q, nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	s.reader.SetPrompt(prompt + ": ")
	defer s.reader.SetPrompt(defaultPrompt)
	line, err := s.reader.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) printStatus() {
	switch {
	case s.session.PaymentConfigured():
		s.printLine("payment mode: %s (user %s)", s.session.Mode, s.session.Ledger.User())
	case s.session.Quota != nil:
		s.printLine("payment mode: none, session CPU quota %.2fs", s.session.Quota.Remaining())
	default:
		s.printLine("payment mode: none")
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | status | exit")
	keys := []string{"mode set", "mode show", "credits show", "credits add", "usage show", "usage clear",
		"quota show", "quota add", "job run", "job kill"}
	for _, key := range keys {
		cmd := s.commands[key]
		s.printLine("  %-14s %s", key, cmd.Summary)
	}
	s.printLine("examples:")
	s.printLine("  mode set mode=prepaid user=alice")
	s.printLine("  credits add amount=25")
	s.printLine("  job run path=/usr/bin/python3 args=\"-c 'print(1)'\" cpu=5 memory=200 timeout=10")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func timeoutText(q spec.Quota) string {
	if q.TimeoutSeconds <= 0 {
		return "none"
	}
	return fmt.Sprintf("%.0fs", q.TimeoutSeconds)
}
