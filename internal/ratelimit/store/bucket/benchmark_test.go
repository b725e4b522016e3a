package bucket

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkAllow measures single-threaded throughput
func BenchmarkAllow(b *testing.B) {
	store := NewInMemoryBucketStore()
	ctx := context.Background()

	for b.Loop() {
		_, _ = store.Allow(ctx, "bench-key", 1000, time.Minute)
	}
}

// BenchmarkAllow_Parallel measures concurrent throughput
func BenchmarkAllow_Parallel(b *testing.B) {
	store := NewInMemoryBucketStore()
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.Allow(ctx, "bench-key", 1000, time.Minute)
		}
	})
}

// BenchmarkAllow_HighCardinality measures performance with many client IPs
func BenchmarkAllow_HighCardinality(b *testing.B) {
	store := NewInMemoryBucketStore()
	ctx := context.Background()

	for i := 0; b.Loop(); i++ {
		key := fmt.Sprintf("rl:export:10.0.%d.%d", (i/256)%256, i%256)
		_, _ = store.Allow(ctx, key, 100, time.Minute)
	}
}
