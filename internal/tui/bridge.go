package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/tuispeak/internal/speech"
)

type transcriptMsg struct{ text string }

type tickMsg struct {
	remaining int
	active    bool
}

type resultMsg struct{ result speech.Result }

type fatalMsg struct{ kind speech.ErrorKind }

type stateMsg struct{ state speech.State }

// Bridge turns controller callbacks into Bubble Tea messages. Callbacks run
// on the controller goroutine, so lossy updates (transcript, ticks) are
// dropped when the UI falls behind and the rest wait for room.
type Bridge struct {
	ch   chan tea.Msg
	done chan struct{}
}

// NewBridge returns a bridge with a bounded queue.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan tea.Msg, 128), done: make(chan struct{})}
}

// Callbacks returns the controller callbacks feeding this bridge.
func (b *Bridge) Callbacks() speech.Callbacks {
	return speech.Callbacks{
		OnResult:     func(r speech.Result) { b.send(resultMsg{result: r}) },
		OnTimerTick:  func(remaining int, active bool) { b.offer(tickMsg{remaining: remaining, active: active}) },
		OnFatalError: func(kind speech.ErrorKind) { b.send(fatalMsg{kind: kind}) },
		OnTranscript: func(text string) { b.offer(transcriptMsg{text: text}) },
		OnState:      func(s speech.State) { b.send(stateMsg{state: s}) },
	}
}

// Close releases senders blocked on a full queue.
func (b *Bridge) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

func (b *Bridge) offer(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
	}
}

// wait returns a command that delivers the next bridged message.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-b.done:
			return nil
		}
	}
}
