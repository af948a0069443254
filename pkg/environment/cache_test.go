package environment

import "testing"

func TestCacheResolveOnce(t *testing.T) {
	cache := NewCache()
	calls := 0
	detect := func() (string, Details) {
		calls++
		return "staging", Details{Hostname: "staging-web-01"}
	}

	for i := 0; i < 3; i++ {
		envType, details := cache.Resolve(detect)
		if envType != "staging" {
			t.Fatalf("Resolve() = %v, want staging", envType)
		}
		if details.Hostname != "staging-web-01" {
			t.Fatalf("details hostname = %v", details.Hostname)
		}
	}
	if calls != 1 {
		t.Errorf("detect ran %v times, want 1", calls)
	}
}

func TestCacheSeed(t *testing.T) {
	cache := NewCache()
	cache.Seed("production", Details{Hostname: "prod-web-01"})

	envType, _ := cache.Resolve(func() (string, Details) {
		t.Fatal("detect must not run on a seeded cache")
		return "", Details{}
	})
	if envType != "production" {
		t.Errorf("Resolve() = %v, want production", envType)
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewCache()
	cache.Seed("production", Details{})
	cache.Invalidate()

	calls := 0
	envType, _ := cache.Resolve(func() (string, Details) {
		calls++
		return "development", Details{}
	})
	if envType != "development" || calls != 1 {
		t.Errorf("Resolve() after Invalidate = %v with %v detect calls", envType, calls)
	}
}
