package shardb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// legacyDB lays out a database directory without a manifest, as left by
// an older layout or another tool, and returns its path.
func legacyDB(t *testing.T, capacity int, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "legacy")
	if err := os.MkdirAll(filepath.Join(dir, storeDir), 0755); err != nil {
		t.Fatal(err)
	}
	cfg := fmt.Sprintf(`{"fileCapacity":%d,"fileExtension":"txt"}`, capacity)
	if err := os.WriteFile(filepath.Join(dir, configFile), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, storeDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func connectTest(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAdoptNumbered(t *testing.T) {
	path := legacyDB(t, 2, map[string]string{
		"0.txt": "a\nb\n",
		"1.txt": "c\nd\n",
		"2.txt": "e",
	})
	db := connectTest(t, path)

	if s := db.Stats(); s.Lines != 5 || s.Shards != 3 {
		t.Fatalf("Stats = %+v, want 5 lines in 3 shards", s)
	}
	if got := readShard(t, db, "2.txt"); got != "e\n" {
		t.Errorf("2.txt = %q, want terminator appended", got)
	}
	if _, err := os.Stat(filepath.Join(path, manifestFile)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	res := mustWrite(t, db, "f")
	if res.TotalLines != 6 || res.TotalShards != 3 {
		t.Errorf("Write = %+v", res)
	}
	expectItems(t, run(t, db.Query().Shard(2)).Items, Item{4, "e"}, Item{5, "f"})
}

// TestAdoptNumericOrder checks that "10.txt" sorts after "9.txt".
func TestAdoptNumericOrder(t *testing.T) {
	files := map[string]string{}
	for i := 0; i <= 10; i++ {
		files[strconv.Itoa(i)+".txt"] = strconv.Itoa(i) + "\n"
	}
	db := connectTest(t, legacyDB(t, 1, files))

	res := run(t, db.Query())
	if len(res.Items) != 11 {
		t.Fatalf("got %d items, want 11", len(res.Items))
	}
	for i, it := range res.Items {
		if it.Line != strconv.Itoa(i) {
			t.Errorf("address %d = %q, want %q", i, it.Line, strconv.Itoa(i))
		}
	}
}

// TestAdoptModTimeOrder covers names without an index: files are ordered
// oldest first by modification time and renamed to index names.
func TestAdoptModTimeOrder(t *testing.T) {
	path := legacyDB(t, 1, map[string]string{
		"alpha.txt": "second\n",
		"beta.txt":  "first\n",
		"0.txt":     "third\n",
	})
	base := time.Now().Add(-time.Hour)
	store := filepath.Join(path, storeDir)
	os.Chtimes(filepath.Join(store, "beta.txt"), base, base)
	os.Chtimes(filepath.Join(store, "alpha.txt"), base.Add(time.Minute), base.Add(time.Minute))
	os.Chtimes(filepath.Join(store, "0.txt"), base.Add(2*time.Minute), base.Add(2*time.Minute))

	db := connectTest(t, path)

	expectItems(t, run(t, db.Query()).Items, Item{0, "first"}, Item{1, "second"}, Item{2, "third"})
	for i, want := range []string{"first\n", "second\n", "third\n"} {
		if got := readShard(t, db, shardName(i, "txt")); got != want {
			t.Errorf("%d.txt = %q, want %q", i, got, want)
		}
	}
	for _, name := range []string{"alpha.txt", "beta.txt"} {
		if _, err := os.Stat(filepath.Join(store, name)); !os.IsNotExist(err) {
			t.Errorf("%s still present after adoption", name)
		}
	}
}

func TestAdoptDropsEmptyTail(t *testing.T) {
	path := legacyDB(t, 3, map[string]string{
		"0.txt": "a\nb\nc\n",
		"1.txt": "",
	})
	db := connectTest(t, path)

	if s := db.Stats(); s.Lines != 3 || s.Shards != 1 {
		t.Errorf("Stats = %+v, want 3 lines in 1 shard", s)
	}
	if _, err := os.Stat(filepath.Join(path, storeDir, "1.txt")); !os.IsNotExist(err) {
		t.Error("empty tail shard not removed")
	}
}

func TestAdoptEmptyStore(t *testing.T) {
	db := connectTest(t, legacyDB(t, 3, nil))
	if s := db.Stats(); s.Lines != 0 || s.Shards != 0 {
		t.Errorf("Stats = %+v, want empty", s)
	}
}

func TestAdoptOverfullTail(t *testing.T) {
	path := legacyDB(t, 2, map[string]string{"0.txt": "a\nb\nc\n"})
	if _, err := Connect(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Connect = %v, want ErrInvalidConfig", err)
	}
}

func TestAdoptIgnoresOtherExtensions(t *testing.T) {
	path := legacyDB(t, 2, map[string]string{
		"0.txt":  "a\n",
		"0.json": "{}",
	})
	db := connectTest(t, path)
	if s := db.Stats(); s.Lines != 1 || s.Shards != 1 {
		t.Errorf("Stats = %+v, want 1 line", s)
	}
}

// writeAdoptJournal leaves adopt.json as an adoption interrupted in the
// given phase would.
func writeAdoptJournal(t *testing.T, path string, phase int, names ...string) {
	t.Helper()
	data, err := json.Marshal(adoptJournal{Phase: phase, Names: names})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, adoptFile), data, 0644); err != nil {
		t.Fatal(err)
	}
}

// expectAdopted checks the store holds exactly want as 0.txt, 1.txt, ...
// with no journal or temporary names left behind.
func expectAdopted(t *testing.T, path string, db *DB, want ...string) {
	t.Helper()
	items := make([]Item, len(want))
	for i, ln := range want {
		items[i] = Item{Address: i, Line: ln}
	}
	expectItems(t, run(t, db.Query()).Items, items...)

	entries, err := os.ReadDir(filepath.Join(path, storeDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(want) {
		t.Errorf("store holds %d entries, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".adopt") {
			t.Errorf("%s left behind", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(path, adoptFile)); !os.IsNotExist(err) {
		t.Errorf("journal not removed: %v", err)
	}
}

// TestAdoptResumesFirstPhase reopens a store where adoption stopped after
// moving only the first file to its temporary name. The remaining names
// no longer order the same way, so the journal must be used.
func TestAdoptResumesFirstPhase(t *testing.T) {
	path := legacyDB(t, 1, map[string]string{
		"0.txt.adopt": "first\n",
		"alpha.txt":   "second\n",
		"0.txt":       "third\n",
	})
	writeAdoptJournal(t, path, 1, "beta.txt", "alpha.txt", "0.txt")

	db := connectTest(t, path)
	expectAdopted(t, path, db, "first", "second", "third")
}

// TestAdoptResumesSecondPhase reopens a store where every file reached its
// temporary name and one was already moved to its final name.
func TestAdoptResumesSecondPhase(t *testing.T) {
	path := legacyDB(t, 1, map[string]string{
		"0.txt":       "first\n",
		"1.txt.adopt": "second\n",
		"2.txt.adopt": "third\n",
	})
	writeAdoptJournal(t, path, 2, "beta.txt", "alpha.txt", "0.txt")

	db := connectTest(t, path)
	expectAdopted(t, path, db, "first", "second", "third")

	res := mustWrite(t, db, "fourth")
	if res.TotalLines != 4 || res.TotalShards != 4 {
		t.Errorf("Write = %+v", res)
	}
}

func TestAdoptRemovesJournal(t *testing.T) {
	path := legacyDB(t, 1, map[string]string{
		"b.txt": "x\n",
	})
	db := connectTest(t, path)
	expectAdopted(t, path, db, "x")
}

func TestAdoptBadJournal(t *testing.T) {
	path := legacyDB(t, 1, map[string]string{"0.txt": "a\n"})
	writeAdoptJournal(t, path, 3, "0.txt")
	if _, err := Connect(path); err == nil {
		t.Error("Connect accepted a journal with an unknown phase")
	}
}
