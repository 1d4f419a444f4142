package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/canopy/pkg/forest"
)

func recvMsg(t *testing.T, s *PaneSync) tea.Msg {
	t.Helper()
	select {
	case msg := <-s.Msgs():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("pane sync sent nothing")
		return nil
	}
}

func TestPaneSyncFetchesOnRowChange(t *testing.T) {
	r := newFakeReader()
	tree := forest.New(r, "root")
	if err := tree.ExpandRow(0); err != nil {
		t.Fatalf("expand: %v", err)
	}

	s := NewPaneSync(r, 5*time.Millisecond)
	s.Publish(tree.RowMap())
	s.SetOffset(0)
	s.Start()
	defer s.Stop()

	msg, ok := recvMsg(t, s).(paneTextMsg)
	if !ok {
		t.Fatalf("first message is %T, want paneTextMsg", msg)
	}
	if msg.Row != 0 || msg.Path != "/" {
		t.Fatalf("initial pane msg = %+v", msg)
	}
	if msg.Metadata != "metadata for /" || msg.Attributes != "attributes for /" {
		t.Fatalf("pane text = %+v", msg)
	}

	// Move the cursor to row 2 (beta) and expect exactly that node.
	s.SetOffset(forest.OffsetOfRowStart(tree, 2))
	deadline := time.After(2 * time.Second)
	for {
		var msg2 paneTextMsg
		select {
		case raw := <-s.Msgs():
			var ok bool
			msg2, ok = raw.(paneTextMsg)
			if !ok {
				continue
			}
		case <-deadline:
			t.Fatalf("no pane update for the moved cursor")
		}
		if msg2.Row == 0 {
			continue // stale refetch of the old row
		}
		if msg2.Row != 2 || msg2.Path != "/beta" {
			t.Fatalf("pane msg after move = %+v", msg2)
		}
		return
	}
}

func TestPaneSyncIdlesOnUnchangedRow(t *testing.T) {
	r := newFakeReader()
	tree := forest.New(r, "root")

	s := NewPaneSync(r, 5*time.Millisecond)
	s.Publish(tree.RowMap())
	s.SetOffset(0)
	s.Start()
	defer s.Stop()

	if _, ok := recvMsg(t, s).(paneTextMsg); !ok {
		t.Fatalf("expected the initial pane fetch")
	}
	// With the row unchanged the loop stays quiet.
	select {
	case msg := <-s.Msgs():
		t.Fatalf("unexpected message on idle cursor: %#v", msg)
	case <-time.After(60 * time.Millisecond):
	}

	// Invalidate forces one refetch of the same row.
	s.Invalidate()
	if _, ok := recvMsg(t, s).(paneTextMsg); !ok {
		t.Fatalf("invalidate did not refetch")
	}
}

func TestPaneSyncHealsStrandedCursor(t *testing.T) {
	r := newFakeReader()
	tree := forest.New(r, "root")
	if err := tree.ExpandRow(0); err != nil {
		t.Fatalf("expand: %v", err)
	}

	s := NewPaneSync(r, 5*time.Millisecond)
	s.Publish(tree.RowMap())
	// An offset far beyond the text, as after a huge collapse.
	s.SetOffset(tree.TotalLength() + 100)
	s.Start()
	defer s.Stop()

	msg, ok := recvMsg(t, s).(cursorHealMsg)
	if !ok {
		t.Fatalf("stranded cursor produced %T, want cursorHealMsg", msg)
	}
	if want := tree.RowCount() - 1; msg.Row != want {
		t.Fatalf("heal row = %d, want %d", msg.Row, want)
	}
}

func TestPaneSyncStopIsIdempotent(t *testing.T) {
	s := NewPaneSync(newFakeReader(), time.Millisecond)
	s.Start()
	s.Stop()
	s.Stop()
}

func TestPaneSyncSendNeverBlocks(t *testing.T) {
	s := NewPaneSync(newFakeReader(), time.Hour) // loop effectively idle
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < syncChanCapacity*3; i++ {
			s.Send(reductionProgressMsg{Done: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Send blocked on a full channel")
	}
	// The newest message survived the drops.
	var last reductionProgressMsg
	for {
		select {
		case raw := <-s.Msgs():
			if msg, ok := raw.(reductionProgressMsg); ok {
				last = msg
			}
			continue
		default:
		}
		break
	}
	if last.Done != syncChanCapacity*3-1 {
		t.Fatalf("newest message lost; last seen %d", last.Done)
	}
}
