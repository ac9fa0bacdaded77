package shardb

import (
	"path/filepath"
	"strings"
	"testing"
)

func benchDB(b *testing.B, capacity int) *DB {
	b.Helper()
	db, err := Create(filepath.Join(b.TempDir(), "bench"), Config{FileCapacity: capacity})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { db.Close() })
	return db
}

func BenchmarkWriteSingle(b *testing.B) {
	db := benchDB(b, 1000)
	line := strings.Repeat("x", 128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.Write(line)
	}
}

func BenchmarkWriteBatch(b *testing.B) {
	db := benchDB(b, 1000)
	batch := make([]string, 100)
	for i := range batch {
		batch[i] = strings.Repeat("x", 128)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.Write(batch...)
	}
}

func BenchmarkQueryShard(b *testing.B) {
	db := benchDB(b, 1000)
	batch := make([]string, 10000)
	for i := range batch {
		batch[i] = strings.Repeat("x", 64)
	}
	db.Write(batch...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.Query().Shard(5).Run()
	}
}

func BenchmarkQuerySkipLimit(b *testing.B) {
	db := benchDB(b, 100)
	batch := make([]string, 10000)
	for i := range batch {
		batch[i] = strings.Repeat("x", 64)
	}
	db.Write(batch...)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.Query().Skip(4950).Limit(100).Run()
	}
}
