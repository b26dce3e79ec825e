package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadGatewayDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.POS.GatewayTimeout)
	assert.Equal(t, 2*time.Second, cfg.POS.GatewayLatency)
}

func TestLoadGatewayLatencyFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_LATENCY", "250ms")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	cfg := Load()

	assert.Equal(t, 250*time.Millisecond, cfg.POS.GatewayLatency)
	assert.Equal(t, 3*time.Second, cfg.POS.GatewayTimeout)
}
