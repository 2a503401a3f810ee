package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/domain"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/feed"
	"gitlab.michelsen.id/phillmichelsen/loadcell/services/loadcell/internal/supervisor"
)

type cobStats struct {
	TotalFrames int64
	TotalBytes  int64
	TickFrames  int64
	TickBytes   int64
	LastPayload []byte
	LastSeen    time.Time
}

// collector counts every frame the supervisor sees, per cob id.
type collector struct {
	mu    sync.Mutex
	byCob map[uint32]*cobStats
	total int64
}

func newCollector() *collector {
	return &collector{byCob: make(map[uint32]*cobStats)}
}

// tap is installed as the supervisor's frame hook.
func (c *collector) tap(f domain.RawFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.byCob[f.ID]
	if s == nil {
		s = &cobStats{}
		c.byCob[f.ID] = s
	}
	n := int64(len(f.Payload))
	s.TotalFrames++
	s.TotalBytes += n
	s.TickFrames++
	s.TickBytes += n
	s.LastPayload = f.Payload
	s.LastSeen = f.Received
	c.total++
}

type row struct {
	CobID       uint32
	FramesPS    float64
	BytesPS     float64
	TotalFrames int64
	LastPayload []byte
}

// window turns the counts since the last call into per-second rates and
// resets them. Rows are ordered by cob id.
func (c *collector) window(elapsed time.Duration) ([]row, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	rows := make([]row, 0, len(c.byCob))
	for id, s := range c.byCob {
		rows = append(rows, row{
			CobID:       id,
			FramesPS:    float64(s.TickFrames) / secs,
			BytesPS:     float64(s.TickBytes) / secs,
			TotalFrames: s.TotalFrames,
			LastPayload: s.LastPayload,
		})
		s.TickFrames, s.TickBytes = 0, 0
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CobID < rows[j].CobID })
	return rows, c.total
}

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	target  string
	refresh time.Duration
	sup     *supervisor.Supervisor
	feed    *feed.Feed
	stats   *collector
	matched map[uint32]string

	rows     []row
	total    int64
	snap     feed.Snapshot
	lastTick time.Time
}

func newModel(target string, refresh time.Duration, sup *supervisor.Supervisor, fd *feed.Feed, stats *collector, matched map[uint32]string) model {
	return model{
		target:   target,
		refresh:  refresh,
		sup:      sup,
		feed:     fd,
		stats:    stats,
		matched:  matched,
		lastTick: time.Now(),
	}
}

func (m model) Init() tea.Cmd { return tick(m.refresh) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		now := time.Time(msg)
		m.rows, m.total = m.stats.window(now.Sub(m.lastTick))
		m.lastTick = now
		m.snap = m.feed.Snapshot()
		return m, tick(m.refresh)
	}
	return m, nil
}

const rule = "------------------------------------------------------------------------------"

func (m model) View() string {
	var b strings.Builder

	st := m.sup.Stats()
	fmt.Fprintf(&b, "relay: %s   phase: %s   now: %s\n", m.target, m.sup.Phase(), time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "opens: %d   faults: %d   matched: %d   malformed: %d   published: %d\n",
		st.Opens, st.Faults, st.Matched, st.Malformed, st.Published)
	b.WriteString(rule + "\n")

	if m.snap.Force != nil {
		state := "FRESH"
		if !m.snap.Fresh {
			state = "STALE"
		}
		fmt.Fprintf(&b, "%-16s 0x%03x  force %12.3f  age %7.0fms  %s\n", m.snap.Type, m.snap.CobID, *m.snap.Force, m.snap.AgeMs, state)
	} else if m.snap.Type != "" {
		fmt.Fprintf(&b, "%-16s 0x%03x  force %12s  age %7.0fms\n", m.snap.Type, m.snap.CobID, "n/a", m.snap.AgeMs)
	} else {
		b.WriteString("no reading yet\n")
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-8s %-18s %10s %12s %12s  %s\n", "cob_id", "type", "frames/s", "bytes/s", "total", "last payload")
	b.WriteString(rule + "\n")

	var totFPS, totBPS float64
	for _, r := range m.rows {
		totFPS += r.FramesPS
		totBPS += r.BytesPS
		fmt.Fprintf(&b, "0x%03x    %-18s %10d %12d %12d  % x\n",
			r.CobID,
			m.matched[r.CobID],
			int64(math.Round(r.FramesPS)),
			int64(math.Round(r.BytesPS)),
			r.TotalFrames,
			r.LastPayload,
		)
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-8s %-18s %10d %12d %12d\n", "TOTAL", "", int64(math.Round(totFPS)), int64(math.Round(totBPS)), m.total)
	b.WriteString("\nq to quit\n")
	return b.String()
}
