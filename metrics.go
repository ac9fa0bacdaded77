// Per-database metrics.
//
// Each handle owns a metrics.Set so that counters of different databases
// (and of a database reopened after Close) never share state. The set is
// not registered globally; callers export it with DB.WriteMetrics.
package shardb

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

type dbMetrics struct {
	set *metrics.Set

	writes        *metrics.Counter
	writeErrors   *metrics.Counter
	linesWritten  *metrics.Counter
	shardsCreated *metrics.Counter
	writeDuration *metrics.Histogram

	queries       *metrics.Counter
	queryErrors   *metrics.Counter
	linesReturned *metrics.Counter
	queryDuration *metrics.Histogram
}

// newMetrics creates the metric set for the database at path. The gauges
// read the current snapshot when the set is exported.
func newMetrics(db *DB, path string) *dbMetrics {
	s := metrics.NewSet()
	label := func(name string) string {
		return fmt.Sprintf(`%s{db=%s}`, name, strconv.Quote(path))
	}

	s.NewGauge(label("shardb_lines"), func() float64 {
		return float64(db.snapshot().lines)
	})
	s.NewGauge(label("shardb_shards"), func() float64 {
		return float64(len(db.snapshot().shards))
	})
	s.NewGauge(label("shardb_write_queue_pending"), func() float64 {
		return float64(db.queue.pending())
	})

	return &dbMetrics{
		set:           s,
		writes:        s.NewCounter(label("shardb_writes_total")),
		writeErrors:   s.NewCounter(label("shardb_write_errors_total")),
		linesWritten:  s.NewCounter(label("shardb_lines_written_total")),
		shardsCreated: s.NewCounter(label("shardb_shards_created_total")),
		writeDuration: s.NewHistogram(label("shardb_write_duration_seconds")),
		queries:       s.NewCounter(label("shardb_queries_total")),
		queryErrors:   s.NewCounter(label("shardb_query_errors_total")),
		linesReturned: s.NewCounter(label("shardb_lines_returned_total")),
		queryDuration: s.NewHistogram(label("shardb_query_duration_seconds")),
	}
}

func (m *dbMetrics) observeWrite(res WriteResult, err error, start time.Time) {
	m.writes.Inc()
	m.writeDuration.UpdateDuration(start)
	if err != nil {
		m.writeErrors.Inc()
		return
	}
	m.linesWritten.Add(res.InsertedLines)
	m.shardsCreated.Add(res.InsertedShards)
}

func (m *dbMetrics) observeQuery(res QueryResult, err error, start time.Time) {
	m.queries.Inc()
	m.queryDuration.UpdateDuration(start)
	if err != nil {
		m.queryErrors.Inc()
		return
	}
	m.linesReturned.Add(len(res.Items))
}

// WriteMetrics writes the database's metrics in Prometheus text format.
func (db *DB) WriteMetrics(w io.Writer) {
	db.metrics.set.WritePrometheus(w)
}
