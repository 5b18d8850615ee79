// Package progress prints throttled rate and ETA lines for a single transfer.
//
// A Meter never influences the transfer it observes; dropping it changes
// nothing but the output.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultInterval is the minimum time between two progress lines.
const DefaultInterval = 3 * time.Second

// Meter accumulates byte counts for one transfer of a known total size.
type Meter struct {
	label    string
	total    int64
	interval time.Duration
	out      io.Writer
	now      func() time.Time

	mu        sync.Mutex
	count     int64
	first     time.Time
	lastTime  time.Time
	lastCount int64
	finished  bool
}

// New returns a meter writing to out. A nil out discards output.
func New(label string, total int64, out io.Writer) *Meter {
	if out == nil {
		out = io.Discard
	}
	return &Meter{label: label, total: total, interval: DefaultInterval, out: out, now: time.Now}
}

// WithInterval overrides the throttle interval.
func (m *Meter) WithInterval(d time.Duration) *Meter {
	m.interval = d
	return m
}

// Read counts len(p) bytes. It lets a Meter serve as minio's PutObjectOptions.Progress,
// which is fed a slice of every chunk sent.
func (m *Meter) Read(p []byte) (int, error) {
	m.Add(int64(len(p)))
	return len(p), nil
}

// Count returns the bytes observed so far.
func (m *Meter) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Add records n more bytes.
func (m *Meter) Add(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.first.IsZero() {
		m.first = now
		m.lastTime = now
	}
	m.count += n
	observed := now.Sub(m.first)

	if m.count >= m.total {
		if !m.finished {
			m.finished = true
			fmt.Fprintf(m.out, "%s %s in ~%s\n", m.label, humanize.IBytes(uint64(m.total)), Duration(observed))
		}
		return
	}

	sinceUpdate := now.Sub(m.lastTime)
	if sinceUpdate < m.interval || observed <= 0 {
		return
	}
	inst := float64(m.count-m.lastCount) / sinceUpdate.Seconds()
	avg := float64(m.count) / observed.Seconds()
	var eta time.Duration
	if avg > 0 {
		eta = time.Duration(float64(m.total-m.count) / avg * float64(time.Second))
	}
	fmt.Fprintf(m.out, "%-20s %s  %10s / %s %3.0f%%  inst=%s/s avg=%s/s  ETA: %s\n",
		m.label, Duration(observed),
		humanize.IBytes(uint64(m.count)), humanize.IBytes(uint64(m.total)),
		float64(m.count)/float64(m.total)*100,
		humanize.IBytes(uint64(inst)), humanize.IBytes(uint64(avg)),
		Duration(eta))
	m.lastTime = now
	m.lastCount = m.count
}

// Reader counts bytes read through it.
type Reader struct {
	r io.Reader
	m *Meter
}

// NewReader wraps r so every successful read is reported to m.
func NewReader(r io.Reader, m *Meter) *Reader {
	return &Reader{r: r, m: m}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.m.Add(int64(n))
	}
	return n, err
}

// Duration renders d rounded to seconds as "1h 2m 3s", "2m 3s" or "3s".
func Duration(d time.Duration) string {
	s := int64(d.Round(time.Second) / time.Second)
	h, m, sec := s/3600, s/60%60, s%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
