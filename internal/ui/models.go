// internal/ui/models.go

package ui

import (
	"sync"
	"sync/atomic"

	"commandForge/internal/manager"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap lists the workspace key bindings.
type KeyMap struct {
	Send        key.Binding
	HistoryPrev key.Binding
	HistoryNext key.Binding
	Interrupt   key.Binding
	NewSession  key.Binding
	CloseTab    key.Binding
	NextTab     key.Binding
	PrevTab     key.Binding
	Clear       key.Binding
	SaveLog     key.Binding
	UploadLog   key.Binding
	SaveProfile key.Binding
	Back        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		HistoryPrev: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "previous command"),
		),
		HistoryNext: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next command"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "interrupt"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new session"),
		),
		CloseTab: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("ctrl+w", "close tab"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous tab"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear output"),
		),
		SaveLog: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save log"),
		),
		UploadLog: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "upload log"),
		),
		SaveProfile: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "save connection"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Interrupt, k.NewSession, k.CloseTab, k.NextTab, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.HistoryPrev, k.HistoryNext, k.Interrupt},
		{k.NewSession, k.CloseTab, k.NextTab, k.PrevTab},
		{k.Clear, k.SaveLog, k.UploadLog, k.SaveProfile},
		{k.Back, k.Quit},
	}
}

// Status is the message shown in the footer.
type Status struct {
	Message string
	IsError bool
}

// TranscriptSink buffers a tab's chunks until the UI takes them. notify is
// called at most once per batch, so a burst of output costs one redraw.
type TranscriptSink struct {
	mu      sync.Mutex
	chunks  []manager.Chunk
	scroll  bool
	pending atomic.Bool
	notify  func()
}

// NewTranscriptSink returns a sink that calls notify when new chunks wait.
// notify must not block.
func NewTranscriptSink(notify func()) *TranscriptSink {
	return &TranscriptSink{notify: notify}
}

func (s *TranscriptSink) Append(c manager.Chunk) {
	s.mu.Lock()
	s.chunks = append(s.chunks, c)
	s.mu.Unlock()
	s.wake()
}

func (s *TranscriptSink) ScrollToEnd() {
	s.mu.Lock()
	s.scroll = true
	s.mu.Unlock()
	s.wake()
}

// Take returns the buffered chunks and whether the view should scroll.
func (s *TranscriptSink) Take() ([]manager.Chunk, bool) {
	s.pending.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	chunks, scroll := s.chunks, s.scroll
	s.chunks, s.scroll = nil, false
	return chunks, scroll
}

func (s *TranscriptSink) wake() {
	if s.notify == nil || !s.pending.CompareAndSwap(false, true) {
		return
	}
	s.notify()
}
