//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/internal/scheduler"
)

// TestJobRegistryExposed 注册任务可查询, 停用状态如实上报
func (s *AdminAPISuite) TestJobRegistryExposed() {
	var statuses []*scheduler.JobStatus
	s.decode(s.do(http.MethodGet, "/admin/v1/jobs", nil), &statuses)
	s.Require().Len(statuses, 3)

	names := map[string]bool{}
	for _, status := range statuses {
		names[status.Name] = true
		s.False(status.Enabled)
	}
	s.True(names[scheduler.JobNameBatchAllocation])
	s.True(names[scheduler.JobNameComplianceSweep])
	s.True(names[scheduler.JobNameAuditVerify])

	var one scheduler.JobStatus
	s.decode(s.do(http.MethodGet, "/admin/v1/jobs/"+scheduler.JobNameComplianceSweep, nil), &one)
	s.Equal(scheduler.JobNameComplianceSweep, one.Name)

	rec := s.do(http.MethodGet, "/admin/v1/jobs/no_such_job", nil)
	s.Equal(http.StatusNotFound, rec.Code, rec.Body.String())
}

// TestTriggerComplianceSweepJob 手动触发异步执行并落执行流水
func (s *AdminAPISuite) TestTriggerComplianceSweepJob() {
	s.seedOrg("ORG-700", 100)

	var trigger struct {
		Accepted bool `json:"accepted"`
	}
	s.decode(s.do(http.MethodPost, "/admin/v1/jobs/"+scheduler.JobNameComplianceSweep+"/trigger", nil), &trigger)
	s.True(trigger.Accepted)

	// 触发为异步, 轮询执行记录直到成功落库
	var executions []*model.JobExecution
	s.Require().Eventually(func() bool {
		rec := s.do(http.MethodGet, "/admin/v1/jobs/"+scheduler.JobNameComplianceSweep+"/executions", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		executions = executions[:0]
		var env envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			return false
		}
		if err := json.Unmarshal(env.Data, &executions); err != nil {
			return false
		}
		return len(executions) == 1 && executions[0].Status == model.JobStatusSuccess
	}, 5*time.Second, 50*time.Millisecond)

	s.Equal(scheduler.JobNameComplianceSweep, executions[0].JobName)
	s.NotNil(executions[0].FinishedAt)

	// 巡检产生的告警可经 API 查询
	var alerts []*model.ComplianceAlert
	s.decode(s.do(http.MethodGet, "/admin/v1/alerts", nil), &alerts)
	s.Require().Len(alerts, 1)
	s.Equal("ORG-700", alerts[0].OrgID)
}
