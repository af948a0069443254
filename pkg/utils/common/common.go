package common

import (
	"context"
	"os"
	"time"
)

// Getenv fetches the env variable and returns the fallback
// if the variable is not set
func Getenv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	return value
}

// WaitForDurationOrInterrupt waits for the given time duration (in seconds),
// returning early with the context error if the context is cancelled.
// A nil return means the full duration elapsed.
func WaitForDurationOrInterrupt(ctx context.Context, duration int) error {
	timer := time.NewTimer(time.Duration(duration) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
