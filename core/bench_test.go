package core

import (
	"fmt"
	"testing"
)

func BenchmarkSet(b *testing.B) {
	db, _, _ := SetupTempDB(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.Set(fmt.Sprintf("key-%d", i%1000), "benchmark-value"); err != nil {
			b.Fatalf("Set: %v", err)
		}
	}
}

func BenchmarkGet(b *testing.B) {
	db, _, _ := SetupTempDB(b)
	for i := 0; i < 1000; i++ {
		_ = db.Set(fmt.Sprintf("key-%d", i), "benchmark-value")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := db.Get(fmt.Sprintf("key-%d", i%1000)); err != nil {
			b.Fatalf("Get: %v", err)
		}
	}
}
