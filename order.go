// Shard order reconstruction for stores without a manifest.
//
// Databases written by this package always have a manifest and shard
// files named by their index. A store directory without a manifest (an
// older layout, or one filled by another tool) has to be adopted: its
// files are ordered, renamed to canonical index names and recorded in a
// fresh manifest.
//
// Ordering prefers the index embedded in the file name. Only when some
// name carries no index does it fall back to modification time, oldest
// first. The fallback is a heuristic: copied or touched files and clock
// changes reorder shards silently, so it is logged when used.
//
// Renaming is journaled in adopt.json at the database root. A crash between
// renames leaves the journal behind, and the next open finishes the
// renames it records instead of ordering the store again.
package shardb

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// shardFile is a store entry considered during ordering.
type shardFile struct {
	name     string
	index    int // parsed from the name when numbered is true
	numbered bool
	mod      time.Time
}

// orderShards lists shard files with the given extension and returns them
// oldest first.
func orderShards(root *os.Root, ext string, log *zap.Logger) ([]string, error) {
	entries, err := readStore(root)
	if err != nil {
		return nil, err
	}

	suffix := "." + ext
	var files []shardFile
	allNumbered := true
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, suffix) {
			continue
		}
		f := shardFile{name: name}
		if n, err := strconv.Atoi(strings.TrimSuffix(name, suffix)); err == nil && n >= 0 {
			f.index, f.numbered = n, true
		} else {
			allNumbered = false
		}
		files = append(files, f)
	}

	if allNumbered {
		slices.SortFunc(files, byIndex)
	} else {
		for i := range files {
			info, err := root.Stat(shardPath(files[i].name))
			if err != nil {
				return nil, fmt.Errorf("order: stat %s: %w", files[i].name, err)
			}
			files[i].mod = info.ModTime()
		}
		slices.SortFunc(files, byModTime)
		log.Warn("ordering shards by modification time", zap.Int("shards", len(files)))
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

func byIndex(a, b shardFile) int {
	return cmp.Compare(a.index, b.index)
}

func byModTime(a, b shardFile) int {
	if c := a.mod.Compare(b.mod); c != 0 {
		return c
	}
	return cmp.Compare(a.name, b.name)
}

// adoptJournal records an adoption in progress. Names is the ordered list
// of original file names. Phase 1 moves them to temporary names, phase 2
// moves the temporary names to their final index names.
type adoptJournal struct {
	Phase int      `json:"phase"`
	Names []string `json:"names"`
}

// readJournal loads adopt.json. It returns (nil, nil) when there is none.
func readJournal(root *os.Root) (*adoptJournal, error) {
	data, err := root.ReadFile(adoptFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("order: read journal: %w", err)
	}
	var j adoptJournal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("order: decode journal: %w", err)
	}
	if j.Phase != 1 && j.Phase != 2 {
		return nil, fmt.Errorf("order: journal phase %d", j.Phase)
	}
	return &j, nil
}

func writeJournal(root *os.Root, j *adoptJournal) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("order: encode journal: %w", err)
	}
	if err := writeAtomic(root, adoptFile, data, true); err != nil {
		return fmt.Errorf("order: journal: %w", err)
	}
	return nil
}

// exists reports whether a store entry is present.
func exists(root *os.Root, name string) (bool, error) {
	_, err := root.Stat(shardPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// canonicalize renames journaled shard files so that position i is named
// shardName(i, ext). Files are first moved to temporary names so that no
// rename overwrites a shard that has not been moved yet. Each step skips
// renames that already happened, so a journal left by a crash can be
// replayed from its recorded phase.
func canonicalize(root *os.Root, j *adoptJournal, ext string) ([]string, error) {
	out := make([]string, len(j.Names))
	var moved []int
	for i, name := range j.Names {
		out[i] = shardName(i, ext)
		if name != out[i] {
			moved = append(moved, i)
		}
	}
	if len(moved) == 0 {
		if err := root.Remove(adoptFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("order: remove journal: %w", err)
		}
		return out, nil
	}

	if j.Phase == 1 {
		if err := writeJournal(root, j); err != nil {
			return nil, err
		}
		for _, i := range moved {
			done, err := exists(root, out[i]+".adopt")
			if err != nil {
				return nil, fmt.Errorf("order: stat %s: %w", out[i], err)
			}
			if done {
				continue
			}
			if err := root.Rename(shardPath(j.Names[i]), shardPath(out[i]+".adopt")); err != nil {
				return nil, fmt.Errorf("order: rename %s: %w", j.Names[i], err)
			}
		}
		syncDir(root, storeDir)
		j.Phase = 2
		if err := writeJournal(root, j); err != nil {
			return nil, err
		}
	}

	for _, i := range moved {
		pending, err := exists(root, out[i]+".adopt")
		if err != nil {
			return nil, fmt.Errorf("order: stat %s: %w", out[i], err)
		}
		if !pending {
			continue
		}
		if err := root.Rename(shardPath(out[i]+".adopt"), shardPath(out[i])); err != nil {
			return nil, fmt.Errorf("order: rename %s: %w", out[i], err)
		}
	}
	syncDir(root, storeDir)
	if err := root.Remove(adoptFile); err != nil {
		return nil, fmt.Errorf("order: remove journal: %w", err)
	}
	return out, nil
}

// adopt builds the initial state of a store without a manifest. The last
// shard is counted once; every other shard is assumed full. Empty trailing
// files are removed and a missing final newline is added so later appends
// start on a fresh row.
func adopt(root *os.Root, cfg Config, bufSize int, log *zap.Logger) (*state, error) {
	j, err := readJournal(root)
	if err != nil {
		return nil, err
	}
	if j != nil {
		log.Warn("resuming interrupted adoption",
			zap.Int("phase", j.Phase), zap.Int("shards", len(j.Names)))
	} else {
		names, err := orderShards(root, cfg.FileExtension, log)
		if err != nil {
			return nil, err
		}
		j = &adoptJournal{Phase: 1, Names: names}
	}
	names, err := canonicalize(root, j, cfg.FileExtension)
	if err != nil {
		return nil, err
	}

	// An empty tail file would add a shard without lines.
	var last string
	var n int
	var terminated bool
	for len(names) > 0 {
		last = names[len(names)-1]
		if n, terminated, err = countLines(root, last, bufSize); err != nil {
			return nil, fmt.Errorf("order: count %s: %w", last, err)
		}
		if n > 0 {
			break
		}
		if err := root.Remove(shardPath(last)); err != nil {
			return nil, fmt.Errorf("order: remove empty %s: %w", last, err)
		}
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return &state{}, nil
	}
	if n > cfg.FileCapacity {
		return nil, fmt.Errorf("%w: shard %s holds %d lines, capacity is %d",
			ErrInvalidConfig, last, n, cfg.FileCapacity)
	}
	if !terminated {
		f, err := root.OpenFile(shardPath(last), os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("order: open %s: %w", last, err)
		}
		_, err = f.Write([]byte{'\n'})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("order: terminate %s: %w", last, err)
		}
	}
	tail, err := size(root, last)
	if err != nil {
		return nil, fmt.Errorf("order: stat %s: %w", last, err)
	}

	log.Info("adopted store without manifest",
		zap.Int("shards", len(names)), zap.Int("tail_lines", n))
	return &state{
		shards: names,
		lines:  (len(names)-1)*cfg.FileCapacity + n,
		tail:   tail,
	}, nil
}
