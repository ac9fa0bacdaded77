// Durable commit record.
//
// manifest.json records the committed shard list, line count and tail size.
// A write is committed when the new manifest has been renamed into place;
// the in-memory state is published only afterwards. On open the manifest
// is authoritative: bytes appended to the tail shard after the last commit
// are truncated, and shard files it does not list are removed. This keeps
// the directory, the manifest and the in-memory state equal after any
// failed or interrupted write.
//
// The manifest is rewritten through a temporary file, synced, then renamed
// so a crash leaves either the old or the new manifest, never a mix. The
// embedded checksum catches anything else (truncation, manual edits).
package shardb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const manifestVersion = 1

// manifest is the on-disk form of a committed state.
type manifest struct {
	Version   int      `json:"_v"`
	Algorithm int      `json:"_alg"`
	Lines     int      `json:"lines"`
	Tail      int64    `json:"tail"`
	Shards    []string `json:"shards"`
	Sum       string   `json:"_sum"`
}

// encode serialises m with its checksum filled in.
func (m manifest) encode() ([]byte, error) {
	m.Sum = ""
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	m.Sum = checksum(body, m.Algorithm)
	if m.Sum == "" {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrCorruptManifest, m.Algorithm)
	}
	return json.Marshal(m)
}

// decodeManifest parses and verifies a manifest.
func decodeManifest(data []byte) (*manifest, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptManifest, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptManifest, m.Version)
	}
	want := m.Sum
	m.Sum = ""
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptManifest, err)
	}
	if got := checksum(body, m.Algorithm); got == "" || got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptManifest)
	}
	m.Sum = want
	return &m, nil
}

// state converts a verified manifest into a state value.
func (m *manifest) state() *state {
	return &state{shards: m.Shards, lines: m.Lines, tail: m.Tail}
}

// readManifest loads manifest.json. It returns (nil, nil) when the file
// does not exist.
func readManifest(root *os.Root) (*manifest, error) {
	data, err := root.ReadFile(manifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeManifest(data)
}

// writeManifest atomically replaces manifest.json with st.
func writeManifest(root *os.Root, st *state, alg int, sync bool) error {
	shards := st.shards
	if shards == nil {
		shards = []string{}
	}
	data, err := manifest{
		Version:   manifestVersion,
		Algorithm: alg,
		Lines:     st.lines,
		Tail:      st.tail,
		Shards:    shards,
	}.encode()
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}

	if err := writeAtomic(root, manifestFile, data, sync); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// writeAtomic replaces name in the database root through a temporary file
// and a rename, so readers see either the old or the new content.
func writeAtomic(root *os.Root, name string, data []byte, sync bool) error {
	tmpName := name + ".tmp"
	tmp, err := root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		root.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			root.Remove(tmpName)
			return fmt.Errorf("sync: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		root.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := root.Rename(tmpName, name); err != nil {
		root.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	if sync {
		syncDir(root, ".")
	}
	return nil
}

// reconcile brings the store directory in line with a verified manifest:
// the tail shard is truncated to the recorded size and unlisted shard or
// temporary files are removed.
func reconcile(root *os.Root, m *manifest, ext string, log *zap.Logger) error {
	for i, name := range m.Shards {
		if _, err := root.Stat(shardPath(name)); err != nil {
			return fmt.Errorf("%w: shard %d (%s): %w", ErrCorruptManifest, i, name, err)
		}
	}

	if tail := m.state().last(); tail != "" {
		sz, err := size(root, tail)
		if err != nil {
			return fmt.Errorf("manifest: stat tail: %w", err)
		}
		switch {
		case sz < m.Tail:
			return fmt.Errorf("%w: tail shard %s is %d bytes, manifest records %d", ErrCorruptManifest, tail, sz, m.Tail)
		case sz > m.Tail:
			log.Warn("truncating uncommitted tail bytes",
				zap.String("shard", tail), zap.Int64("size", sz), zap.Int64("committed", m.Tail))
			if err := truncate(root, tail, m.Tail); err != nil {
				return fmt.Errorf("manifest: truncate tail: %w", err)
			}
		}
	}

	listed := make(map[string]bool, len(m.Shards))
	for _, name := range m.Shards {
		listed[name] = true
	}
	entries, err := readStore(root)
	if err != nil {
		return fmt.Errorf("manifest: list store: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || listed[name] {
			continue
		}
		if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, "."+ext) {
			log.Warn("removing uncommitted shard file", zap.String("file", name))
			if err := root.Remove(shardPath(name)); err != nil {
				return fmt.Errorf("manifest: remove %s: %w", name, err)
			}
		}
	}
	return nil
}

// truncate cuts a shard file back to n bytes.
func truncate(root *os.Root, name string, n int64) error {
	f, err := root.OpenFile(shardPath(name), os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	if err := f.Truncate(n); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readStore lists the store directory.
func readStore(root *os.Root) ([]os.DirEntry, error) {
	dir, err := root.Open(storeDir)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	return dir.ReadDir(-1)
}

// syncDir fsyncs a directory so a rename inside it is durable. Errors are
// ignored: not every platform supports syncing directories.
func syncDir(root *os.Root, name string) {
	d, err := root.Open(name)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
