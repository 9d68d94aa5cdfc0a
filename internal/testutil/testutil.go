// Package testutil provides shared test fixtures and utilities for lifeboat tests.
// It reduces duplication across test files by providing common patterns for:
// - Deterministic random data with a logged, reproducible seed
// - Project trees with the files backup and recovery care about
// - Archive fixtures that can be truncated or corrupted on demand
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	mrand "math/rand"
	"os"
	"testing"
)

// FixtureOption configures fixture creation behavior
type FixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	seed   int64
	seeded bool
}

// WithSeed provides a deterministic seed for reproducible tests.
// When a test fails, the seed is logged so the failure can be reproduced.
func WithSeed(seed int64) FixtureOption {
	return func(c *fixtureConfig) {
		c.seed = seed
		c.seeded = true
	}
}

// GetTestSeed returns a seed for deterministic testing.
// It checks LIFEBOAT_TEST_SEED first, otherwise generates a random seed.
func GetTestSeed(t *testing.T) int64 {
	t.Helper()

	if seedStr := os.Getenv("LIFEBOAT_TEST_SEED"); seedStr != "" {
		var seed int64
		if _, err := fmt.Sscanf(seedStr, "%d", &seed); err == nil {
			t.Logf("Using seed from LIFEBOAT_TEST_SEED: %d", seed)
			return seed
		}
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("Failed to generate random seed: %v", err)
	}
	seed := n.Int64()
	t.Logf("Generated test seed: %d (set LIFEBOAT_TEST_SEED=%d to reproduce)", seed, seed)
	return seed
}

func newRand(opts ...FixtureOption) *mrand.Rand {
	cfg := &fixtureConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.seeded {
		return mrand.New(mrand.NewSource(cfg.seed))
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	return mrand.New(mrand.NewSource(n.Int64()))
}

// RandomBytes returns n pseudo-random bytes.
func RandomBytes(n int, opts ...FixtureOption) []byte {
	b := make([]byte, n)
	_, _ = newRand(opts...).Read(b)
	return b
}

// HashHex returns hex-encoded SHA256 hash of the data
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashFile returns the hex SHA256 of a file, failing the test on error.
func HashFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return HashHex(data)
}
