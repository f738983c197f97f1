package authsession

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authsession/credstore"
)

func newBenchmarkManager(b *testing.B) (*Manager, func()) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	key := make([]byte, credstore.KeySize)
	sealer, err := credstore.NewSealer(key)
	if err != nil {
		b.Fatalf("NewSealer failed: %v", err)
	}
	store, err := credstore.NewStore(credstore.NewRedisBackend(rdb, "bench"), sealer, credstore.Options{})
	if err != nil {
		b.Fatalf("NewStore failed: %v", err)
	}

	fake := newFakeIdentity()
	fake.users["alice@example.com"] = "correct-password-123"

	m, err := New().
		WithCredentialStore(store).
		WithIdentityClient(fake).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	if err := m.Restore(context.Background()); err != nil {
		b.Fatalf("Restore failed: %v", err)
	}

	return m, func() {
		m.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func BenchmarkSessionRead(b *testing.B) {
	m, cleanup := newBenchmarkManager(b)
	defer cleanup()

	if _, err := m.Login(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = m.Session()
		}
	})
}

func BenchmarkLoginLogout(b *testing.B) {
	m, cleanup := newBenchmarkManager(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Login(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
			b.Fatalf("login failed: %v", err)
		}
		m.Logout(context.Background())
	}
}
