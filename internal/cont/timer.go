package cont

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"
)

// SectionStats accumulates the wall time spent in one named section
type SectionStats struct {
	Name  string
	Calls int
	Total time.Duration
}

// Timer records wall time per named section. Sections nest; Exit closes the
// most recently entered one.
type Timer struct {
	mu       sync.Mutex
	now      func() time.Time
	start    time.Time
	stack    []openSection
	sections map[string]*SectionStats
}

type openSection struct {
	name  string
	start time.Time
}

// NewTimer creates a timer that starts counting immediately
func NewTimer() *Timer {
	return newTimerWithClock(time.Now)
}

func newTimerWithClock(now func() time.Time) *Timer {
	return &Timer{
		now:      now,
		start:    now(),
		sections: make(map[string]*SectionStats),
	}
}

// Enter opens a section
func (t *Timer) Enter(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stack = append(t.stack, openSection{name: name, start: t.now()})
}

// Exit closes the innermost open section. It is a no-op when none is open.
func (t *Timer) Exit() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.stack) == 0 {
		return
	}
	top := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]

	s, ok := t.sections[top.name]
	if !ok {
		s = &SectionStats{Name: top.name}
		t.sections[top.name] = s
	}
	s.Calls++
	s.Total += t.now().Sub(top.start)
}

// Sections returns the accumulated statistics sorted by name
func (t *Timer) Sections() []SectionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SectionStats, 0, len(t.sections))
	for _, s := range t.sections {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WriteSummary writes a table of all sections to w
func (t *Timer) WriteSummary(w io.Writer) error {
	sections := t.Sections()

	t.mu.Lock()
	elapsed := t.now().Sub(t.start)
	t.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total wallclock time elapsed since start\t%s\n\n", elapsed.Round(time.Millisecond))
	fmt.Fprintln(tw, "SECTION\tCALLS\tWALL TIME\t% OF TOTAL")
	for _, s := range sections {
		pct := 0.0
		if elapsed > 0 {
			pct = 100 * float64(s.Total) / float64(elapsed)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f%%\n", s.Name, s.Calls, s.Total.Round(time.Microsecond), pct)
	}
	return tw.Flush()
}
