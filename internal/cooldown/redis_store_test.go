package cooldown

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("integration tests disabled")
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		t.Skip("docker not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcredis.RunContainer(ctx, testcontainers.WithImage("redis:7"))
	if err != nil {
		t.Skipf("redis container failed to start: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client := startRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	if _, found, err := store.LastPlayed(ctx, "spin"); err != nil || found {
		t.Fatalf("LastPlayed() on empty store = (found=%v, err=%v), want not found", found, err)
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	if err := store.SetLastPlayed(ctx, "spin", at); err != nil {
		t.Fatalf("SetLastPlayed() error = %v", err)
	}

	got, found, err := store.LastPlayed(ctx, "spin")
	if err != nil || !found {
		t.Fatalf("LastPlayed() = (found=%v, err=%v), want found", found, err)
	}
	if !got.Equal(at) {
		t.Errorf("LastPlayed() = %v, want %v (nanosecond precision)", got, at)
	}
}

func TestRedisStore_SurvivesTrackerRestart(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	t0 := time.Now().Add(-time.Hour)
	first := NewTracker(NewRedisStore(client), map[string]time.Duration{"spin": 24 * time.Hour})
	if err := first.RecordPlay(ctx, "spin", t0); err != nil {
		t.Fatalf("RecordPlay() error = %v", err)
	}

	// A fresh tracker over the same store sees the persisted play.
	second := NewTracker(NewRedisStore(client), map[string]time.Duration{"spin": 24 * time.Hour})
	allowed, remaining, err := second.IsAllowed(ctx, "spin")
	if err != nil {
		t.Fatalf("IsAllowed() error = %v", err)
	}
	if allowed {
		t.Error("IsAllowed() = true, want cooldown to survive a restart")
	}
	if remaining < 22*time.Hour || remaining > 23*time.Hour {
		t.Errorf("remaining = %v, want about 23h", remaining)
	}
}
