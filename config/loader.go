package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the SER2TCP_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it before flag parsing
// so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// Serial
	if v := os.Getenv("SER2TCP_DEVICE"); v != "" {
		cfg.Device = v
	}
	if v := envInt("SER2TCP_BAUD"); v > 0 {
		cfg.Baud = v
	}
	if v := envInt("SER2TCP_DATA_BITS"); v > 0 {
		cfg.DataBits = v
	}
	if v := os.Getenv("SER2TCP_PARITY"); v != "" {
		cfg.Parity = v
	}
	if v := os.Getenv("SER2TCP_STOP_BITS"); v != "" {
		cfg.StopBits = v
	}

	// Network
	if v := os.Getenv("SER2TCP_LISTEN"); v != "" {
		cfg.ListenAddress = v
	}
	if v := envInt("SER2TCP_TCP_PORT"); v > 0 {
		cfg.ListenPort = v
	}
	if v := envInt("SER2TCP_KEEPALIVE"); v > 0 {
		cfg.KeepAlive = secondsDuration(v)
	}
	if envBool("SER2TCP_EXIT_ON_DEVICE_LOSS") {
		cfg.ExitOnDeviceLoss = true
	}

	// SSH exposure
	if v := os.Getenv("SER2TCP_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("SER2TCP_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SER2TCP_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SER2TCP_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("SER2TCP_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("SER2TCP_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("SER2TCP_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
