package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)
	return configPath
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "service:\n  env: dev\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Service
	assert.Equal(t, "almoner-allocation", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, 9090, cfg.Service.OpsPort)
	assert.Equal(t, "dev", cfg.Service.Env)

	// Postgres
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "almoner_allocation", cfg.Postgres.Database)
	assert.Equal(t, 50, cfg.Postgres.MaxConnections)

	// Kafka topics
	assert.Equal(t, "allocation-events", cfg.Kafka.Topics.AllocationEvents)
	assert.Equal(t, "compliance-alerts", cfg.Kafka.Topics.ComplianceAlerts)
	assert.Equal(t, "donation-settlements", cfg.Kafka.Topics.DonationSettlements)

	// Allocation
	assert.True(t, cfg.Allocation.Weights.GetFundingGapWeight().Equal(decimal.NewFromFloat(0.25)))
	assert.True(t, cfg.Allocation.Weights.GetSeasonalityWeight().Equal(decimal.NewFromFloat(0.10)))
	assert.True(t, cfg.Allocation.GetApprovalThreshold().Equal(decimal.NewFromInt(70)))
	assert.True(t, cfg.Allocation.GetEmergencyThreshold().Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 7, cfg.Allocation.EmergencyWindowDays)
	assert.Equal(t, 200, cfg.Allocation.BatchSize)

	// Compliance
	assert.True(t, cfg.Compliance.Weights.GetFinancialTransparencyWeight().Equal(decimal.NewFromFloat(0.20)))
	assert.True(t, cfg.Compliance.Weights.GetStakeholderFeedbackWeight().Equal(decimal.NewFromFloat(0.15)))
	assert.Equal(t, 180, cfg.Compliance.ReviewIntervals.Low)
	assert.Equal(t, 90, cfg.Compliance.ReviewIntervals.Medium)
	assert.Equal(t, 30, cfg.Compliance.ReviewIntervals.High)
	assert.Equal(t, 7, cfg.Compliance.ReviewIntervals.Critical)

	// Jobs
	assert.Equal(t, "0 0 2 * * *", cfg.Jobs.BatchAllocation.Cron)
	assert.Equal(t, "0 */10 * * * *", cfg.Jobs.StaleExecution.Cron)

	// Log
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FromFile(t *testing.T) {
	configPath := writeConfigFile(t, `
service:
  name: "allocation-test"
  http_port: 8099
  ops_port: 9099
  env: "test"
allocation:
  approval_threshold: "75"
  emergency_window_days: 3
log:
  level: "debug"
  format: "console"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "allocation-test", cfg.Service.Name)
	assert.Equal(t, 8099, cfg.Service.HTTPPort)
	assert.Equal(t, 9099, cfg.Service.OpsPort)
	assert.Equal(t, "test", cfg.Service.Env)
	assert.True(t, cfg.Allocation.GetApprovalThreshold().Equal(decimal.NewFromInt(75)))
	assert.Equal(t, 3, cfg.Allocation.EmergencyWindowDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfigFile(t, `
service:
  name: "test"
  http_port: [invalid
`)

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestLoad_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_ALLOC_DB_HOST", "pg.internal")
	defer os.Unsetenv("TEST_ALLOC_DB_HOST")

	configPath := writeConfigFile(t, `
postgres:
  host: "${TEST_ALLOC_DB_HOST}"
  port: ${TEST_ALLOC_DB_PORT:5433}
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "pg.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
}

func TestValidate_WeightSum(t *testing.T) {
	configPath := writeConfigFile(t, `
allocation:
  weights:
    funding_gap: "0.50"
    urgency: "0.20"
    performance: "0.20"
    donor_alignment: "0.15"
    cost_efficiency: "0.10"
    seasonality: "0.10"
`)

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocation weights must sum to 1")
}

func TestValidate_InvalidWeight(t *testing.T) {
	configPath := writeConfigFile(t, `
compliance:
  weights:
    governance: "not-a-number"
`)

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid compliance weight")
}

func TestValidate_ThresholdRange(t *testing.T) {
	configPath := writeConfigFile(t, `
allocation:
  approval_threshold: "140"
`)

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approval_threshold")
}

func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	require.NoError(t, cfg.Validate())
}
