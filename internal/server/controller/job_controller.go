package controller

import (
	"strings"
	"sync"

	"fms/internal/execution"
	"fms/internal/ledger"
	"fms/internal/sandbox/result"
	"fms/internal/sandbox/spec"
	"fms/internal/server/middleware"
	"fms/internal/server/service"
	"fms/pkg/errors"
	"fms/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// DefaultOutputLimit caps the captured stdout and stderr of one job.
const DefaultOutputLimit = 1 << 20

// RunJobRequest is the body of POST /api/v1/jobs.
type RunJobRequest struct {
	JobID string `json:"job_id"`
	// User and Mode bill the job to a ledger; without a mode the job runs
	// against the server quota, if any.
	User           string   `json:"user"`
	Mode           string   `json:"mode"`
	Label          string   `json:"label"`
	Path           string   `json:"path" binding:"required"`
	Args           []string `json:"args"`
	Env            []string `json:"env"`
	Dir            string   `json:"dir"`
	CPUSeconds     *float64 `json:"cpu_seconds"`
	MemoryMB       *float64 `json:"memory_mb"`
	TimeoutSeconds *float64 `json:"timeout_seconds"`
	Stdin          string   `json:"stdin"`
}

// RunJobResponse is the report of a finished job with its captured output.
type RunJobResponse struct {
	result.Report
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"output_truncated,omitempty"`
}

// JobOptions configure a JobController.
type JobOptions struct {
	Accounts    *ledger.Accounts
	Quota       *execution.QuotaAccount
	Slots       *service.Slots
	Defaults    spec.Quota
	DefaultUser string
	OutputLimit int
}

// JobController runs and aborts jobs.
type JobController struct {
	orch *execution.Orchestrator
	opts JobOptions

	// owners maps a running job id to the user that submitted it.
	owners sync.Map
}

// NewJobController creates a new controller.
func NewJobController(orch *execution.Orchestrator, opts JobOptions) *JobController {
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = DefaultOutputLimit
	}
	return &JobController{orch: orch, opts: opts}
}

// Run executes a job and waits for its report. A client that disconnects
// aborts the job.
func (h *JobController) Run(c *gin.Context) {
	var req RunJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	user, err := h.owner(c, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	sess, err := h.session(c, req, user)
	if err != nil {
		response.Error(c, err)
		return
	}
	if req.JobID != "" {
		if _, busy := h.owners.LoadOrStore(req.JobID, user); busy {
			response.Error(c, errors.BadRequest("job id is already running"))
			return
		}
		defer h.owners.Delete(req.JobID)
	}

	if h.opts.Slots != nil {
		if err := h.opts.Slots.Acquire(ctx); err != nil {
			response.Error(c, err)
			return
		}
		defer h.opts.Slots.Release()
	}

	stdout := newCappedBuffer(h.opts.OutputLimit)
	stderr := newCappedBuffer(h.opts.OutputLimit)
	runReq := execution.Request{
		JobID:  req.JobID,
		Label:  req.Label,
		Path:   req.Path,
		Args:   req.Args,
		Env:    req.Env,
		Dir:    req.Dir,
		Quota:  h.quota(req),
		Stdout: stdout,
		Stderr: stderr,
	}
	if req.Stdin != "" {
		runReq.Stdin = strings.NewReader(req.Stdin)
	}

	report, err := h.orch.Run(ctx, sess, runReq)
	data := RunJobResponse{
		Report:    report,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	if err != nil {
		response.ErrorWithData(c, err, data)
		return
	}
	response.Success(c, data)
}

// Kill aborts a running job.
func (h *JobController) Kill(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		response.BadRequest(c, "Invalid job id")
		return
	}
	if p, ok := middleware.PrincipalFrom(c); ok && !p.IsAdmin() {
		owner, running := h.owners.Load(jobID)
		if !running || owner != p.User {
			response.Error(c, errors.NotFoundError("job"))
			return
		}
	}
	if err := h.orch.KillJob(c.Request.Context(), jobID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"job_id": jobID})
}

// owner resolves the user a job runs for. An authenticated caller defaults
// to its own account and may name another one only as an admin.
func (h *JobController) owner(c *gin.Context, req RunJobRequest) (string, error) {
	p, authenticated := middleware.PrincipalFrom(c)
	user := req.User
	if user == "" {
		user = h.opts.DefaultUser
		if authenticated {
			user = p.User
		}
	}
	if authenticated && !p.CanActFor(user) {
		return "", errors.ForbiddenError("token does not grant access to this account")
	}
	return user, nil
}

func (h *JobController) session(c *gin.Context, req RunJobRequest, user string) (*execution.Session, error) {
	if req.Mode == "" {
		return &execution.Session{Quota: h.opts.Quota}, nil
	}
	mode, err := ledger.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if h.opts.Accounts == nil {
		return nil, errors.New(errors.LedgerNotConfigured)
	}
	l, err := h.opts.Accounts.Get(c.Request.Context(), user)
	if err != nil {
		return nil, err
	}
	return execution.NewLedgerSession(l, mode), nil
}

func (h *JobController) quota(req RunJobRequest) spec.Quota {
	q := h.opts.Defaults
	if req.CPUSeconds != nil {
		q.CPUSeconds = *req.CPUSeconds
	}
	if req.MemoryMB != nil {
		q.MemoryMB = *req.MemoryMB
	}
	if req.TimeoutSeconds != nil {
		q.TimeoutSeconds = *req.TimeoutSeconds
	}
	return q
}
