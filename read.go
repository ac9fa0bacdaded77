// Read primitives for shard files.
//
// A shard is plain text, one line per row, each row terminated by '\n'.
// Files written by other tools may lack the final terminator, so a
// trailing fragment is still treated as a line. Readers stream through a
// bufio.Reader and never hold more than one line in memory.
package shardb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"strconv"
	"strings"
)

// shardName returns the canonical file name of shard i.
func shardName(i int, ext string) string {
	return strconv.Itoa(i) + "." + ext
}

// shardPath returns the path of a shard file relative to the database root.
func shardPath(name string) string {
	return path.Join(storeDir, name)
}

// lines yields every stride-th line of a shard starting at line from and
// ending at line to (inclusive). Negative from is treated as 0, negative to
// as end of file, to < from as from, and stride < 1 as 1. A shard that does
// not exist yields nothing; other I/O errors are yielded once and end the
// sequence.
func lines(root *os.Root, name string, from, to, stride, bufSize int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		from = max(from, 0)
		if to >= 0 && to < from {
			to = from
		}
		stride = max(stride, 1)

		f, err := root.Open(shardPath(name))
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("read: open %s: %w", name, err))
			return
		}
		defer f.Close()

		reader := bufio.NewReaderSize(f, bufSize)
		next := from
		for i := 0; to < 0 || i <= to; i++ {
			ln, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				yield("", fmt.Errorf("read: %s line %d: %w", name, i, err))
				return
			}
			if err == io.EOF && ln == "" {
				return
			}
			if i == next {
				if !yield(strings.TrimSuffix(ln, "\n"), nil) {
					return
				}
				next += stride
			}
			if err == io.EOF {
				return
			}
		}
	}
}

// readRange collects lines [from, to] of a shard.
func readRange(root *os.Root, name string, from, to, bufSize int) ([]string, error) {
	out := make([]string, 0, max(to-from+1, 0))
	for ln, err := range lines(root, name, from, to, 1, bufSize) {
		if err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, nil
}

// countLines counts the lines of a shard and reports whether the file ends
// with '\n'. An empty or missing file has zero lines and counts as
// terminated.
func countLines(root *os.Root, name string, bufSize int) (n int, terminated bool, err error) {
	f, err := root.Open(shardPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	buf := make([]byte, bufSize)
	terminated = true
	for {
		k, err := f.Read(buf)
		for _, b := range buf[:k] {
			if b == '\n' {
				n++
			}
		}
		if k > 0 {
			terminated = buf[k-1] == '\n'
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, false, err
		}
	}
	if !terminated {
		n++
	}
	return n, terminated, nil
}

// size returns the byte size of a shard file.
func size(root *os.Root, name string) (int64, error) {
	info, err := root.Stat(shardPath(name))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
