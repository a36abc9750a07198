// Package server exposes the orchestrator and ledgers over HTTP.
package server

import (
	"net/http"
	"time"

	"fms/internal/execution"
	"fms/internal/ledger"
	"fms/internal/server/controller"
	"fms/internal/server/middleware"
	"fms/internal/server/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Deps are the handlers' collaborators.
type Deps struct {
	Orchestrator *execution.Orchestrator
	Accounts     *ledger.Accounts
	Jobs         controller.JobOptions
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Auth verifies bearer tokens on every /api route. Routes answer 503
	// without it unless AuthDisabled is set.
	Auth         *service.AuthService
	AuthDisabled bool
}

// NewRouter builds the API routes.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceContextMiddleware())
	router.Use(middleware.RequestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	jobOpts := deps.Jobs
	if jobOpts.Accounts == nil {
		jobOpts.Accounts = deps.Accounts
	}
	guard := func(policy middleware.AuthPolicy) gin.HandlerFunc {
		if deps.AuthDisabled {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.AuthMiddleware(deps.Auth, policy)
	}
	adminOnly := middleware.AuthPolicy{Roles: []string{service.RoleAdmin}}
	selfOrAdmin := middleware.AuthPolicy{SelfParam: "user"}

	jobController := controller.NewJobController(deps.Orchestrator, jobOpts)
	jobs := router.Group("/api/v1/jobs", guard(middleware.AuthPolicy{}))
	jobs.POST("", jobController.Run)
	jobs.DELETE("/:id", jobController.Kill)

	accountController := controller.NewAccountController(deps.Accounts)
	accounts := router.Group("/api/v1/accounts")
	accounts.GET("/:user", guard(selfOrAdmin), accountController.Get)
	accounts.POST("/:user/credits", guard(adminOnly), accountController.AddCredits)
	accounts.GET("/:user/usage", guard(selfOrAdmin), accountController.Usage)
	accounts.DELETE("/:user/usage", guard(adminOnly), accountController.ClearUsage)

	return router
}

// NewHTTPServer wraps handler in an http.Server.
func NewHTTPServer(cfg Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
