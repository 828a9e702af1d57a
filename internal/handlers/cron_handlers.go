package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"leavedesk/internal/common"
	"leavedesk/internal/jobs"

	"github.com/labstack/echo/v4"
)

// PendingChangesRunner is satisfied by *jobs.PendingChangesJob.
type PendingChangesRunner interface {
	Run(ctx context.Context) *jobs.PendingChangesResult
}

// JobStatusReporter is satisfied by *background.JobScheduler.
type JobStatusReporter interface {
	GetJobStatus() map[string]interface{}
}

// CronHandlers exposes scheduled jobs to an external cron trigger.
type CronHandlers struct {
	pendingChanges PendingChangesRunner
	scheduler      JobStatusReporter
	secret         string
}

func NewCronHandlers(pendingChanges PendingChangesRunner, secret string) *CronHandlers {
	return &CronHandlers{
		pendingChanges: pendingChanges,
		secret:         secret,
	}
}

// ApplyPendingSubscriptionChanges godoc
// @Summary      Push pending seat counts to LemonSqueezy
// @Description  Always answers 200; per-subscription failures are listed in errors.
// @Tags         cron
// @Produce      json
// @Success      200  {object}  jobs.PendingChangesResult
// @Failure      401  {object}  common.FailureResponse
// @Security     CronSecret
// @Router       /api/cron/apply-pending-subscription-changes [post]
func (h *CronHandlers) ApplyPendingSubscriptionChanges(c echo.Context) error {
	if !h.authorized(c.Request().Header.Get(echo.HeaderAuthorization)) {
		return common.SendUnauthorizedError(c)
	}
	return c.JSON(http.StatusOK, h.pendingChanges.Run(c.Request().Context()))
}

// WithScheduler attaches the in-process scheduler reported by JobStatus.
func (h *CronHandlers) WithScheduler(scheduler JobStatusReporter) *CronHandlers {
	h.scheduler = scheduler
	return h
}

// JobStatus godoc
// @Summary      List the in-process background jobs and their next runs
// @Tags         cron
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  common.FailureResponse
// @Security     CronSecret
// @Router       /api/cron/status [get]
func (h *CronHandlers) JobStatus(c echo.Context) error {
	if !h.authorized(c.Request().Header.Get(echo.HeaderAuthorization)) {
		return common.SendUnauthorizedError(c)
	}
	if h.scheduler == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"scheduler_enabled": false, "total_jobs": 0})
	}
	status := h.scheduler.GetJobStatus()
	status["scheduler_enabled"] = true
	return c.JSON(http.StatusOK, status)
}

func (h *CronHandlers) authorized(header string) bool {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || h.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}
