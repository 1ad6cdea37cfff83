package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokeshec23/GC-AI/internal/app"
	"github.com/lokeshec23/GC-AI/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()

	// Suite already migrated; Bootstrap must tolerate ErrNoChange.
	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, deps)
	defer deps.Close()

	for _, table := range []string{"settings", "failed_jobs"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var temperature float32
	require.NoError(t, deps.DB.QueryRow("SELECT temperature FROM settings WHERE id = 1").Scan(&temperature))
	assert.InDelta(t, 0.5, temperature, 0.001)

	// Verify NSQ
	require.NotNil(t, deps.NSQProducer)
	assert.NoError(t, deps.NSQProducer.Ping())
}
