// Package router 注册分配引擎的管理 API 路由
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/handler"
	"github.com/almoner-platform/almoner-allocation/internal/middleware"
)

// Handlers 所有处理器
type Handlers struct {
	Allocation *handler.AllocationHandler
	Compliance *handler.ComplianceHandler
	Audit      *handler.AuditHandler
	Jobs       *handler.JobsHandler
	Registry   *handler.RegistryHandler
}

// SetupRouter 设置路由
func SetupRouter(r *gin.Engine, h *Handlers) {
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/admin/v1")
	{
		// 分配请求与决策
		requests := v1.Group("/requests")
		{
			requests.POST("", h.Allocation.SubmitRequest)
			requests.GET("", h.Allocation.ListRequests)
			requests.GET("/:id", h.Allocation.GetRequest)
			requests.GET("/:id/score", h.Allocation.ScoreRequest)
		}

		decisions := v1.Group("/decisions")
		{
			decisions.GET("/:id", h.Allocation.GetDecision)
			decisions.POST("/:id/execute", h.Allocation.ExecuteAllocation)
		}

		v1.GET("/results/:id", h.Allocation.GetResult)
		v1.POST("/batch/run", h.Allocation.RunBatch)

		// 机构视图: 登记信息 + 资格 + 合规
		orgs := v1.Group("/organizations")
		{
			orgs.GET("", h.Registry.ListOrganizations)
			orgs.GET("/stats", h.Registry.OrganizationStats)
			orgs.GET("/:id", h.Registry.GetOrganization)
			orgs.GET("/:id/eligibility", h.Allocation.CheckEligibility)
			orgs.GET("/:id/decisions", h.Allocation.ListDecisionsByOrg)
			orgs.GET("/:id/alerts", h.Compliance.ListAlertsByOrg)
			orgs.POST("/:id/compliance/metrics", h.Compliance.RecordSnapshot)
			orgs.POST("/:id/compliance/assess", h.Compliance.Assess)
			orgs.GET("/:id/compliance/assessment", h.Compliance.GetLatestAssessment)
			orgs.GET("/:id/compliance/assessments", h.Compliance.ListAssessments)
		}

		// 捐赠人视图
		donors := v1.Group("/donors")
		{
			donors.GET("", h.Registry.ListDonors)
			donors.GET("/:id", h.Registry.GetDonor)
			donors.GET("/:id/fund", h.Registry.GetDonorFund)
		}

		// 合规巡检与告警队列
		v1.POST("/compliance/sweep", h.Compliance.Sweep)
		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.Compliance.ListOpenAlerts)
			alerts.GET("/stats", h.Compliance.AlertStats)
			alerts.GET("/:id", h.Compliance.GetAlert)
			alerts.POST("/:id/acknowledge", h.Compliance.AcknowledgeAlert)
			alerts.POST("/:id/resolve", h.Compliance.ResolveAlert)
		}

		// 审计链
		audit := v1.Group("/audit")
		{
			audit.POST("/verify", h.Audit.VerifyChain)
			audit.GET("/entries", h.Audit.ListEntries)
			audit.GET("/entries/:seq", h.Audit.GetEntry)
			audit.GET("/stats", h.Audit.GetStats)
		}

		// 定时任务运维
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.Jobs.ListJobs)
			jobs.GET("/:name", h.Jobs.GetJob)
			jobs.POST("/:name/trigger", h.Jobs.TriggerJob)
			jobs.GET("/:name/executions", h.Jobs.ListJobExecutions)
		}
	}
}
