package shardb

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// testRoot returns a root over a temporary directory with a store
// directory holding the given shard files.
func testRoot(t *testing.T, files map[string]string) *os.Root {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, storeDir), 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, storeDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { root.Close() })
	return root
}

func collect(t *testing.T, root *os.Root, name string, from, to, stride int) []string {
	t.Helper()
	var out []string
	for ln, err := range lines(root, name, from, to, stride, 16) {
		if err != nil {
			t.Fatalf("lines: %v", err)
		}
		out = append(out, ln)
	}
	return out
}

func TestLines(t *testing.T) {
	root := testRoot(t, map[string]string{"0.txt": "a\nb\nc\nd\ne\n"})

	cases := []struct {
		name             string
		from, to, stride int
		want             []string
	}{
		{"all", 0, -1, 1, []string{"a", "b", "c", "d", "e"}},
		{"range", 1, 3, 1, []string{"b", "c", "d"}},
		{"past end", 3, 99, 1, []string{"d", "e"}},
		{"stride", 0, -1, 2, []string{"a", "c", "e"}},
		{"stride zero", 3, -1, 0, []string{"d", "e"}},
		{"to before from", 2, 1, 1, []string{"c"}},
		{"negative from", -4, 0, 1, []string{"a"}},
		{"from past end", 9, -1, 1, nil},
	}
	for _, c := range cases {
		got := collect(t, root, "0.txt", c.from, c.to, c.stride)
		if !slices.Equal(got, c.want) {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestLinesMissingShard(t *testing.T) {
	root := testRoot(t, nil)
	if got := collect(t, root, "7.txt", 0, -1, 1); got != nil {
		t.Errorf("missing shard yielded %q", got)
	}
}

func TestLinesUnterminated(t *testing.T) {
	root := testRoot(t, map[string]string{"0.txt": "a\n\nlast"})
	want := []string{"a", "", "last"}
	if got := collect(t, root, "0.txt", 0, -1, 1); !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLinesLongerThanBuffer(t *testing.T) {
	long := "0123456789abcdefghijklmnopqrstuvwxyz"
	root := testRoot(t, map[string]string{"0.txt": long + "\nx\n"})
	want := []string{long, "x"}
	if got := collect(t, root, "0.txt", 0, -1, 1); !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLinesEarlyBreak(t *testing.T) {
	root := testRoot(t, map[string]string{"0.txt": "a\nb\nc\n"})
	n := 0
	for range lines(root, "0.txt", 0, -1, 1, 16) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d times after break", n)
	}
}

func TestCountLines(t *testing.T) {
	root := testRoot(t, map[string]string{
		"0.txt": "a\nb\n",
		"1.txt": "a\nb",
		"2.txt": "",
		"3.txt": "\n\n\n",
	})
	cases := []struct {
		name       string
		n          int
		terminated bool
	}{
		{"0.txt", 2, true},
		{"1.txt", 2, false},
		{"2.txt", 0, true},
		{"3.txt", 3, true},
		{"9.txt", 0, true},
	}
	for _, c := range cases {
		n, term, err := countLines(root, c.name, 4)
		if err != nil {
			t.Fatalf("countLines(%s): %v", c.name, err)
		}
		if n != c.n || term != c.terminated {
			t.Errorf("countLines(%s) = %d, %v; want %d, %v", c.name, n, term, c.n, c.terminated)
		}
	}
}

func TestShardName(t *testing.T) {
	if got := shardName(12, "log"); got != "12.log" {
		t.Errorf("shardName = %q", got)
	}
	if got := shardPath("3.txt"); got != "store/3.txt" {
		t.Errorf("shardPath = %q", got)
	}
}
