package environment

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentWritersAndReaders(t *testing.T) {
	for _, flags := range []Flags{0, EnableTransactions} {
		t.Run(flags.String(), func(t *testing.T) {
			env, _ := createEnv(t, flags)
			defer env.Close()
			db, err := env.CreateDatabase(1, 0)
			require.NoError(t, err)

			var writers errgroup.Group
			writers.SetLimit(20)
			for i := 9000; i < 11000; i++ {
				writers.Go(func() error {
					_, err := db.Insert(nil, key(i), rec(i), 0)
					return err
				})
			}
			require.NoError(t, writers.Wait())

			var readers errgroup.Group
			readers.SetLimit(10)
			for i := 9000; i < 11000; i++ {
				readers.Go(func() error {
					got, err := db.Find(nil, key(i))
					if err != nil {
						return err
					}
					if !bytes.Equal(rec(i), got) {
						return fmt.Errorf("key %d: got %q", i, got)
					}
					return nil
				})
			}
			require.NoError(t, readers.Wait())

			n, err := db.Count(nil, false)
			require.NoError(t, err)
			require.Equal(t, uint64(2000), n)
			require.NoError(t, env.Check())
		})
	}
}

func TestConcurrentCursorsDuringWrites(t *testing.T) {
	env, _ := createEnv(t, 0)
	defer env.Close()
	db, err := env.CreateDatabase(1, 0)
	require.NoError(t, err)
	fill(t, db, 0, 300)

	var g errgroup.Group
	g.Go(func() error {
		for i := 300; i < 600; i++ {
			if _, err := db.Insert(nil, key(i), rec(i), 0); err != nil {
				return err
			}
		}
		return nil
	})
	for range 4 {
		g.Go(func() error {
			c, err := db.NewCursor(nil)
			if err != nil {
				return err
			}
			defer c.Close()
			// the first 300 keys are stable while the writer appends
			for i := 0; i < 300; i += 7 {
				if err := c.Find(key(i), FindExact); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	requireRange(t, db, 0, 600)
}

func benchmarkDatabase(b *testing.B, flags Flags) *Database {
	b.Helper()
	env, err := Create(filepath.Join(b.TempDir(), "bench.db"), testConfig(flags))
	require.NoError(b, err)
	b.Cleanup(func() { env.Close() })
	db, err := env.CreateDatabase(1, 0)
	require.NoError(b, err)
	return db
}

func BenchmarkInsert(b *testing.B) {
	db := benchmarkDatabase(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.Insert(nil, key(i), rec(i), 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindParallel(b *testing.B) {
	db := benchmarkDatabase(b, 0)
	const n = 10000
	for i := 0; i < n; i++ {
		_, err := db.Insert(nil, key(i), rec(i), 0)
		require.NoError(b, err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := db.Find(nil, key(i%n)); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
