package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
)

// JobScheduler 调度器接口
type JobScheduler interface {
	GetJobStatus(jobName string) (*scheduler.JobStatus, error)
	ListJobStatus() ([]*scheduler.JobStatus, error)
	TriggerJob(jobName string) error
}

// JobsHandler 定时任务处理器
type JobsHandler struct {
	sched    JobScheduler
	execRepo *repository.JobExecutionRepository
}

// NewJobsHandler 创建定时任务处理器
func NewJobsHandler(sched JobScheduler, execRepo *repository.JobExecutionRepository) *JobsHandler {
	return &JobsHandler{sched: sched, execRepo: execRepo}
}

// ListJobs 列出全部任务状态
// GET /admin/v1/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	statuses, err := h.sched.ListJobStatus()
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, statuses)
}

// GetJob 获取单个任务状态
// GET /admin/v1/jobs/:name
func (h *JobsHandler) GetJob(c *gin.Context) {
	jobName := c.Param("name")
	if jobName == "" {
		BadRequest(c, "job name is required")
		return
	}

	status, err := h.sched.GetJobStatus(jobName)
	if err != nil {
		Error(c, errors.ErrNotFound.WithMessage(err.Error()))
		return
	}

	Success(c, status)
}

// TriggerResult 手动触发结果
type TriggerResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// TriggerJob 手动触发任务 (异步执行，结果见执行记录)
// POST /admin/v1/jobs/:name/trigger
func (h *JobsHandler) TriggerJob(c *gin.Context) {
	jobName := c.Param("name")
	if jobName == "" {
		BadRequest(c, "job name is required")
		return
	}

	if err := h.sched.TriggerJob(jobName); err != nil {
		Error(c, errors.ErrNotFound.WithMessage(err.Error()))
		return
	}

	Success(c, &TriggerResult{Accepted: true, Message: "job triggered"})
}

// ListJobExecutions 查询任务执行历史
// GET /admin/v1/jobs/:name/executions?limit=20
func (h *JobsHandler) ListJobExecutions(c *gin.Context) {
	jobName := c.Param("name")
	if jobName == "" {
		BadRequest(c, "job name is required")
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	executions, err := h.execRepo.ListByJobName(c.Request.Context(), jobName, limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, executions)
}
