package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lokeshec23/GC-AI/internal/app"
	"github.com/lokeshec23/GC-AI/internal/config"
)

type statefulPinger struct {
	callCount int
	failUntil int
}

func (p *statefulPinger) PingContext(ctx context.Context) error {
	p.callCount++
	if p.callCount <= p.failUntil {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry_Success(t *testing.T) {
	p := &statefulPinger{}
	err := app.PingWithRetry(context.Background(), p, 1, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, p.callCount)
}

func TestPingWithRetry_Retries(t *testing.T) {
	p := &statefulPinger{failUntil: 2}
	err := app.PingWithRetry(context.Background(), p, 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, p.callCount)
}

func TestPingWithRetry_Fail(t *testing.T) {
	p := &statefulPinger{failUntil: 10}
	err := app.PingWithRetry(context.Background(), p, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, p.callCount)
}

func TestPingWithRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &statefulPinger{failUntil: 10}
	err := app.PingWithRetry(ctx, p, 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.callCount)
}

func TestBootstrap_ConfigurationError(t *testing.T) {
	cfg := &config.Config{
		DBHost:                 "invalid-host",
		BootstrapRetryAttempts: 1,
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}
