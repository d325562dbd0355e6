package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "offsetcron/pkg/logx"
)

func firing(name string, i int, ok bool) Firing {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := Firing{
		JobID:     "id-" + name,
		Name:      name,
		Scheduled: base.Add(time.Duration(i) * time.Minute),
		Fired:     base.Add(time.Duration(i)*time.Minute + 3*time.Millisecond),
		TookMS:    int64(i),
		OK:        ok,
		Next:      base.Add(time.Duration(i+1) * time.Minute),
	}
	if !ok {
		f.Error = "boom"
	}
	return f
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("unknown driver error = %v", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
}

func TestStores(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "history."+driver)
			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			ctx := context.Background()
			for i := 0; i < 6; i++ {
				name := "a"
				if i%2 == 1 {
					name = "b"
				}
				if err := st.AppendFiring(ctx, firing(name, i, i != 4)); err != nil {
					t.Fatalf("AppendFiring: %v", err)
				}
			}

			all, err := st.RecentFirings(ctx, Query{})
			if err != nil {
				t.Fatalf("RecentFirings: %v", err)
			}
			if len(all) != 6 {
				t.Fatalf("got %d firings, want 6", len(all))
			}
			if all[0].TookMS != 5 || all[5].TookMS != 0 {
				t.Fatalf("want newest first, got took %d..%d", all[0].TookMS, all[5].TookMS)
			}
			if !all[0].Scheduled.Equal(firing("b", 5, true).Scheduled) {
				t.Fatalf("scheduled = %v", all[0].Scheduled)
			}
			if !all[0].Next.Equal(firing("b", 5, true).Next) {
				t.Fatalf("next = %v", all[0].Next)
			}

			onlyA, _ := st.RecentFirings(ctx, Query{Name: "a", Limit: 2})
			if len(onlyA) != 2 || onlyA[0].TookMS != 4 || onlyA[1].TookMS != 2 {
				t.Fatalf("name filter = %+v", onlyA)
			}

			failed, _ := st.RecentFirings(ctx, Query{FailedOnly: true})
			if len(failed) != 1 || failed[0].Error != "boom" || failed[0].OK {
				t.Fatalf("failed filter = %+v", failed)
			}
		})
	}
}

func TestFileStoreReopenAndCompact(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.jsonl")
	cfg := Config{Driver: "file", Path: path, Retain: 3}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := st.AppendFiring(ctx, firing("a", i, true)); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Compaction ran at 6 records (down to 3), then one more was appended.
	if lines := strings.Count(string(b), "\n"); lines != 4 {
		t.Fatalf("file has %d lines, want 4", lines)
	}

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, _ := st.RecentFirings(ctx, Query{})
	if len(got) != 3 || got[0].TookMS != 6 || got[2].TookMS != 4 {
		t.Fatalf("after reopen = %+v", got)
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if err := st.AppendFiring(context.Background(), firing("a", 0, true)); err == nil {
		t.Fatal("append after close should fail")
	}
}
