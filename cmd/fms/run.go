package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fms/internal/cli/render"
	"fms/internal/execution"
	"fms/internal/sandbox/result"
	"fms/pkg/utils/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runCPU         float64
	runMemory      float64
	runTimeout     float64
	runMode        string
	runQuota       float64
	runLabel       string
	runDir         string
	runMetricsFile string
	runPropagateRC bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Float64Var(&runCPU, "cpu", 0, "CPU quota in seconds (default from config, <=0 for none)")
	runCmd.Flags().Float64Var(&runMemory, "memory", 0, "memory limit in MB (default from config, <=0 for none)")
	runCmd.Flags().Float64Var(&runTimeout, "timeout", 0, "wall-clock timeout in seconds (default from config, <=0 for none)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "payment mode: prepaid or postpaid (default from config)")
	runCmd.Flags().Float64Var(&runQuota, "quota", 0, "session CPU quota in seconds when no payment mode is set")
	runCmd.Flags().StringVar(&runLabel, "label", "", "name recorded in the usage log (defaults to the path)")
	runCmd.Flags().StringVar(&runDir, "dir", "", "working directory of the program")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	runCmd.Flags().BoolVar(&runPropagateRC, "exit-code", false, "exit with the program's exit code")
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <path> [args...]",
	Short: "Run a program under supervision",
	Long: `Run a program and its children under a CPU quota, memory limit and timeout,
then charge the usage according to the payment mode.

Examples:
  # Run with the configured defaults
  fms run -- ./build.sh

  # Tight limits, billed to alice's prepaid balance
  fms run --user alice --mode prepaid --cpu 5 --memory 200 --timeout 10 -- /usr/bin/python3 job.py`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJob,
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appCfg, appOptions{engine: true})
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.session(ctx, runMode, runQuota)
	if err != nil {
		return err
	}

	quota := appCfg.Defaults
	if cmd.Flags().Changed("cpu") {
		quota.CPUSeconds = runCPU
	}
	if cmd.Flags().Changed("memory") {
		quota.MemoryMB = runMemory
	}
	if cmd.Flags().Changed("timeout") {
		quota.TimeoutSeconds = runTimeout
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "running %s (cpu %.2fs, memory %.2fMB, timeout %.0fs)\n",
		args[0], quota.CPUSeconds, quota.MemoryMB, quota.TimeoutSeconds)

	report, runErr := a.orch.Run(ctx, sess, execution.Request{
		Label:  runLabel,
		Path:   args[0],
		Args:   args[1:],
		Dir:    runDir,
		Quota:  quota,
		Stdin:  cmd.InOrStdin(),
		Stdout: out,
		Stderr: cmd.ErrOrStderr(),
	})
	render.Report(cmd.ErrOrStderr(), report)

	textfile := runMetricsFile
	if textfile == "" {
		textfile = appCfg.Metrics.Textfile
	}
	if textfile != "" {
		if err := a.metrics.WriteTextfile(textfile); err != nil {
			logger.Warn(ctx, "write metrics textfile failed", zap.String("path", textfile), zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if runPropagateRC && report.Outcome == result.Success && report.ExitCode != 0 {
		_ = a.close()
		os.Exit(report.ExitCode)
	}
	if report.Outcome != result.Success {
		return fmt.Errorf("job %s ended with %s", report.JobID, report.Outcome)
	}
	return nil
}
