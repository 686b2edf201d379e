package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("YVM_POOL_ID", "7")
	t.Setenv("YVM_ADMIN_IDENTITY", "admin")
	t.Setenv("YVM_TREASURY_IDENTITY", "treasury")
	t.Setenv("YVM_REBALANCE_THRESHOLD", "15")
	t.Setenv("YVM_LOOP_INTERVAL_SECONDS", "600")
}

func TestLoadConfig(t *testing.T) {
	setValidEnv(t)

	require.NoError(t, LoadConfig())
	assert.Equal(t, uint64(7), PoolID)
	assert.Equal(t, "admin", AdminIdentity)
	assert.Equal(t, "treasury", TreasuryIdentity)
	assert.Equal(t, uint64(15), RebalanceThreshold)
	assert.Equal(t, uint64(600), LoopIntervalSeconds)
}

func TestLoadConfigRejectsBadPoolID(t *testing.T) {
	setValidEnv(t)

	t.Setenv("YVM_POOL_ID", "not-a-number")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	setValidEnv(t)

	t.Setenv("YVM_REBALANCE_THRESHOLD", "101")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigRejectsZeroInterval(t *testing.T) {
	setValidEnv(t)

	t.Setenv("YVM_LOOP_INTERVAL_SECONDS", "0")
	assert.Error(t, LoadConfig())
}
