package support

import (
	"crypto/sha1"
	"encoding/binary"
	"os"
	"strconv"
	"time"
)

func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetEnvDuration parses values such as "90s" or "5m". Invalid or
// non-positive values yield the fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func HashString(input string) uint64 {
	sum := sha1.Sum([]byte(input))
	// First 8 bytes of the digest
	return binary.BigEndian.Uint64(sum[:8])
}
