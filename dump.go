// Compressed export and import.
//
// Dump streams a snapshot as Zstd-compressed '\n' terminated rows, the
// same row format the shards use. Restore reads such a stream and appends
// it through the normal write pipeline in batches, so a restored database
// goes through the same queue, rollback and manifest commit as any other
// write.
package shardb

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Dump writes every line of the current snapshot to w as a Zstd stream and
// returns the number of lines written.
func (db *DB) Dump(w io.Writer) (int, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("dump: %w", err)
	}
	bw := bufio.NewWriterSize(enc, db.opts.readBuffer)

	n := 0
	for item, err := range db.All() {
		if err != nil {
			enc.Close()
			return n, fmt.Errorf("dump: %w", err)
		}
		if _, err := bw.WriteString(item.Line); err != nil {
			enc.Close()
			return n, fmt.Errorf("dump: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			enc.Close()
			return n, fmt.Errorf("dump: %w", err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return n, fmt.Errorf("dump: flush: %w", err)
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("dump: close: %w", err)
	}
	return n, nil
}

// Restore appends every row of a Zstd stream produced by Dump. Rows are
// written in batches of batch lines; batch <= 0 uses the file capacity.
// It returns the number of lines appended. A failed batch stops the
// restore; earlier batches stay committed.
func (db *DB) Restore(r io.Reader, batch int) (int, error) {
	if batch <= 0 {
		batch = db.config.FileCapacity
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	defer dec.Close()

	reader := bufio.NewReaderSize(dec, db.opts.readBuffer)
	n := 0
	pending := make([]string, 0, batch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		res, err := db.Write(pending...)
		if err != nil {
			return err
		}
		n += res.InsertedLines
		pending = pending[:0]
		return nil
	}

	for {
		ln, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return n, fmt.Errorf("restore: read: %w", err)
		}
		if ln != "" {
			pending = append(pending, strings.TrimSuffix(ln, "\n"))
			if len(pending) == batch {
				if err := flush(); err != nil {
					return n, fmt.Errorf("restore: %w", err)
				}
			}
		}
		if err == io.EOF {
			break
		}
	}
	if err := flush(); err != nil {
		return n, fmt.Errorf("restore: %w", err)
	}
	return n, nil
}
