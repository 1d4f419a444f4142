package ui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/debug"
	"github.com/vanderheijden86/canopy/pkg/forest"
)

const syncChanCapacity = 64

// PaneSync runs the one background loop that keeps the side panes in step
// with the cursor. The foreground publishes the cursor offset and a row-map
// snapshot after every move or structural edit; the loop polls those, and
// when the observed row changes it fetches metadata and attribute text and
// posts a paneTextMsg back through the message channel. It never touches
// the tree itself, so the foreground stays the only structural writer.
//
// The channel doubles as the general background-to-UI conduit: value
// fetches, reductions, and plot renders post their results through Send.
type PaneSync struct {
	reader   store.Reader
	interval time.Duration

	offset atomic.Int64
	rows   atomic.Pointer[forest.RowMap]
	dirty  atomic.Bool

	msgCh  chan tea.Msg
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started  atomic.Bool
	stopOnce sync.Once
}

// NewPaneSync builds the sync loop around a reader. interval is the poll
// cadence; the loop sleeps that long between unchanged-row checks.
func NewPaneSync(r store.Reader, interval time.Duration) *PaneSync {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaneSync{
		reader:   r,
		interval: interval,
		msgCh:    make(chan tea.Msg, syncChanCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the poll goroutine. Calling Start twice is a no-op.
func (s *PaneSync) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop ends the loop and waits for it. Idempotent.
func (s *PaneSync) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// Msgs returns the channel the UI drains via waitSyncMsg.
func (s *PaneSync) Msgs() <-chan tea.Msg { return s.msgCh }

// SetOffset records the cursor's absolute rune offset. Foreground only.
func (s *PaneSync) SetOffset(off int) { s.offset.Store(int64(off)) }

// Publish swaps in a fresh row-map snapshot after a structural edit.
// Foreground only.
func (s *PaneSync) Publish(rm *forest.RowMap) { s.rows.Store(rm) }

// Invalidate forces the next poll to refetch pane text even if the row did
// not move, e.g. after the store changed on disk.
func (s *PaneSync) Invalidate() { s.dirty.Store(true) }

// Send posts a background result to the UI without ever blocking the
// sender. When the channel is full the oldest pending message is dropped;
// a stale progress update loses to a fresh one.
func (s *PaneSync) Send(msg tea.Msg) {
	for {
		select {
		case s.msgCh <- msg:
			return
		default:
		}
		select {
		case old := <-s.msgCh:
			debug.Log("pane sync: channel full, dropped %T", old)
		default:
		}
	}
}

func (s *PaneSync) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastRow := -1
	var lastGen uint64
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		rm := s.rows.Load()
		if rm == nil || rm.RowCount() == 0 {
			continue
		}
		off := int(s.offset.Load())
		row, ok := forest.RowOf(rm, off)
		if !ok {
			// The cursor fell off the end, usually after a collapse.
			// Repark it on the last row rather than reporting anything.
			s.Send(cursorHealMsg{Row: rm.RowCount() - 1})
			continue
		}
		if row == lastRow && rm.Gen == lastGen && !s.dirty.Swap(false) {
			continue
		}
		node := rm.NodeAt(row)
		if node == nil {
			continue
		}
		s.Send(paneTextMsg{
			Row:        row,
			Path:       node.Path,
			Metadata:   s.fetch(node.MetadataText),
			Attributes: s.fetch(node.AttributeText),
			Gen:        rm.Gen,
		})
		lastRow, lastGen = row, rm.Gen
	}
}

// fetch renders a side-pane read, folding a reader failure into the pane
// text so the loop itself never errors out.
func (s *PaneSync) fetch(get func(store.Reader) (string, error)) string {
	text, err := get(s.reader)
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return text
}
