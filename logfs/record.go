package logfs

import (
	"log/slog"
	"time"

	"github.com/dendrascience/logfs/internal/metrics"
	"github.com/dendrascience/logfs/journal"
)

// outcomeNegative marks a lookup that completed without finding the name.
const outcomeNegative = "negative"

// recorder fans one completed operation out to the journal, the logger
// and the metrics. Any of the three may be absent.
type recorder struct {
	log     *slog.Logger
	journal *journal.Journal
	metrics metrics.FSMetrics
	now     func() time.Time
}

func (r *recorder) clock() time.Time {
	if r == nil || r.now == nil {
		return time.Now()
	}
	return r.now()
}

func (r *recorder) observe(op, device string, ino uint64, name string, start time.Time, err error) {
	r.observeOutcome(op, device, ino, name, start, outcome(err))
}

func (r *recorder) observeOutcome(op, device string, ino uint64, name string, start time.Time, result string) {
	if r == nil {
		return
	}
	d := r.clock().Sub(start)
	if r.journal != nil {
		r.journal.Append(journal.Record{
			Time:     start,
			Op:       op,
			Device:   device,
			Ino:      ino,
			Name:     name,
			Outcome:  result,
			Duration: d,
		})
	}
	if r.metrics != nil {
		r.metrics.RecordOperation(op, result, d)
	}
	if r.log != nil {
		r.log.Debug("operation",
			"op", op,
			"device", device,
			"ino", ino,
			"name", name,
			"outcome", result,
			"duration", d,
		)
	}
}

func (r *recorder) logger() *slog.Logger {
	if r == nil || r.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.log
}
