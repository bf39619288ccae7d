package views

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"commandForge/internal/config"
	"commandForge/internal/manager"
	"commandForge/internal/models"
	"commandForge/internal/ssh"
	"commandForge/internal/ui"
	"commandForge/internal/ui/components"
	"commandForge/internal/ui/messages"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// DefaultUploadDir is offered as the remote directory for log uploads.
const DefaultUploadDir = "/tmp"

// Rows taken by everything except the transcript: tab bar, bordered input,
// status line and help.
const chromeHeight = 7

type tabState int

const (
	tabConnecting tabState = iota
	tabOpen
	tabFailed
)

type tab struct {
	id       int
	profile  models.ConnectionProfile
	handle   manager.Handle
	state    tabState
	sink     *ui.TranscriptSink
	viewport viewport.Model
	content  strings.Builder
	draft    string
}

// Workspace is the root bubbletea model: one tab per session plus the
// connection picker.
type Workspace struct {
	ctx          context.Context
	registry     *manager.Registry
	store        *config.Manager
	storeChanged <-chan struct{}
	log          zerolog.Logger

	keys  ui.KeyMap
	help  help.Model
	input textinput.Model

	tabs   []*tab
	active int
	nextID int

	picker     *picker
	showPicker bool

	popup     *components.Popup
	onConfirm func(value string) tea.Cmd

	status ui.Status
	width  int
	height int

	send func(tea.Msg)
}

func NewWorkspace(ctx context.Context, registry *manager.Registry, store *config.Manager, logger zerolog.Logger) *Workspace {
	input := textinput.New()
	input.Placeholder = "command"
	input.Prompt = "> "
	input.Focus()

	width, height := 80, 24
	w := &Workspace{
		ctx:        ctx,
		registry:   registry,
		store:      store,
		log:        logger.With().Str("component", "ui").Logger(),
		keys:       ui.DefaultKeyMap(),
		help:       help.New(),
		input:      input,
		width:      width,
		height:     height,
		showPicker: true,
	}
	w.picker = newPicker(store.Profiles(), width, height-2)
	return w
}

// Attach routes asynchronous notifications into the running program. It must
// be called before the program and the dispatcher start.
func (w *Workspace) Attach(send func(tea.Msg)) {
	w.send = send
	w.registry.OnSinkError(func(handle manager.Handle, err error) {
		w.post(messages.SinkErrorMsg{Handle: handle, Err: err})
	})
}

// WatchStore makes the picker follow external edits of the connection store.
func (w *Workspace) WatchStore(changed <-chan struct{}) {
	w.storeChanged = changed
}

// post never blocks: sinks call it from the dispatcher goroutine and
// bubbletea's Send waits for the event loop.
func (w *Workspace) post(msg tea.Msg) {
	if w.send != nil {
		go w.send(msg)
	}
}

func (w *Workspace) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, w.waitForStore())
}

func (w *Workspace) waitForStore() tea.Cmd {
	if w.storeChanged == nil {
		return nil
	}
	changed := w.storeChanged
	return func() tea.Msg {
		if _, ok := <-changed; !ok {
			return nil
		}
		return messages.StoreChangedMsg{}
	}
}

func (w *Workspace) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.resize(msg.Width, msg.Height)
		return w, nil

	case messages.RefreshMsg:
		w.refresh(msg.Tab)
		return w, nil

	case messages.SessionOpenedMsg:
		return w, w.sessionOpened(msg)

	case messages.SessionFailedMsg:
		return w, w.sessionFailed(msg)

	case messages.SessionClosedMsg:
		if msg.Err != nil {
			w.setError("Close failed: %v", msg.Err)
		}
		return w, nil

	case messages.UploadFinishedMsg:
		if msg.Err != nil {
			w.setError("Upload failed: %v", msg.Err)
		} else {
			w.setStatus("Log uploaded to %s", msg.Remote)
		}
		return w, nil

	case messages.SinkErrorMsg:
		w.setError("Output delivery failed for %s: %v", w.titleOf(msg.Handle), msg.Err)
		return w, nil

	case messages.StatusMsg:
		w.status = ui.Status{Message: msg.Text, IsError: msg.IsError}
		return w, nil

	case messages.StoreChangedMsg:
		return w, tea.Batch(w.picker.setProfiles(w.store.Profiles()), w.waitForStore())

	case tea.KeyMsg:
		if w.popup != nil {
			return w, w.updatePopup(msg)
		}
		if key.Matches(msg, w.keys.Quit) {
			return w, tea.Quit
		}
		if w.showPicker {
			return w, w.updatePicker(msg)
		}
		return w, w.updateTabs(msg)

	case tea.MouseMsg:
		if t := w.current(); t != nil && !w.showPicker {
			var cmd tea.Cmd
			t.viewport, cmd = t.viewport.Update(msg)
			return w, cmd
		}
		return w, nil
	}

	if w.popup != nil {
		return w, w.popup.Update(msg)
	}
	if w.showPicker {
		return w, w.picker.update(msg)
	}
	var cmd tea.Cmd
	w.input, cmd = w.input.Update(msg)
	return w, cmd
}

func (w *Workspace) updatePopup(msg tea.KeyMsg) tea.Cmd {
	p, confirm := w.popup, w.onConfirm
	closePopup := func() {
		w.popup, w.onConfirm = nil, nil
	}

	switch p.Type {
	case components.PopupConfirm:
		switch msg.String() {
		case "y", "Y":
			closePopup()
			return confirm("")
		case "n", "N", "esc":
			closePopup()
		}
		return nil

	case components.PopupMessage:
		if msg.Type == tea.KeyEsc || msg.Type == tea.KeyEnter {
			closePopup()
		}
		return nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		closePopup()
		return nil
	case tea.KeyEnter:
		value := p.Value()
		if p.Type == components.PopupPassword {
			value = p.Input.Value()
		}
		closePopup()
		if confirm == nil {
			return nil
		}
		return confirm(value)
	}
	return p.Update(msg)
}

func (w *Workspace) updatePicker(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, w.keys.Back) && !w.picker.filtered():
		if len(w.tabs) > 0 {
			w.showPicker = false
			return w.input.Focus()
		}
		return nil

	case key.Matches(msg, w.keys.Send) && !w.picker.filtering():
		item, ok := w.picker.selected()
		if !ok {
			return nil
		}
		if item.isNew {
			w.promptTarget()
			return nil
		}
		return w.connect(item.profile)
	}
	return w.picker.update(msg)
}

func (w *Workspace) updateTabs(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, w.keys.NewSession) {
		w.openPicker()
		return nil
	}
	t := w.current()
	if t == nil {
		w.openPicker()
		return nil
	}

	switch {
	case key.Matches(msg, w.keys.CloseTab):
		return w.closeTab(w.active)
	case key.Matches(msg, w.keys.NextTab):
		w.switchTo((w.active + 1) % len(w.tabs))
	case key.Matches(msg, w.keys.PrevTab):
		w.switchTo((w.active - 1 + len(w.tabs)) % len(w.tabs))
	case key.Matches(msg, w.keys.Send):
		return w.sendInput(t)
	case key.Matches(msg, w.keys.HistoryPrev):
		w.recall(t, w.registry.RecallPrevious)
	case key.Matches(msg, w.keys.HistoryNext):
		w.recall(t, w.registry.RecallNext)
	case key.Matches(msg, w.keys.Interrupt):
		if t.state == tabOpen {
			if err := w.registry.Interrupt(t.handle); err != nil {
				w.setError("Interrupt failed: %v", err)
			}
		}
	case key.Matches(msg, w.keys.Clear):
		t.content.Reset()
		t.viewport.SetContent("")
	case key.Matches(msg, w.keys.SaveLog):
		w.promptSaveTranscript(t)
	case key.Matches(msg, w.keys.UploadLog):
		w.promptUpload(t)
	case key.Matches(msg, w.keys.SaveProfile):
		w.saveProfile(t)
	case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return cmd
	default:
		var cmd tea.Cmd
		w.input, cmd = w.input.Update(msg)
		return cmd
	}
	return nil
}

// connect asks for a password first when the profile carries no credential.
func (w *Workspace) connect(profile models.ConnectionProfile) tea.Cmd {
	if profile.Password != "" || profile.KeyPath != "" {
		return w.openTab(profile)
	}
	w.prompt(components.PopupPassword, "Password", fmt.Sprintf("Password for %s", profile.Title()),
		func(password string) tea.Cmd {
			profile.Password = password
			return w.openTab(profile)
		})
	return nil
}

func (w *Workspace) promptTarget() {
	w.prompt(components.PopupInput, "New connection", "Target (user@host[:port])",
		func(target string) tea.Cmd {
			profile, err := models.ParseTarget(target)
			if err != nil {
				w.setError("Invalid target: %v", err)
				return nil
			}
			return w.connect(profile)
		})
}

func (w *Workspace) openTab(profile models.ConnectionProfile) tea.Cmd {
	w.nextID++
	vw, vh := w.viewportSize()
	t := &tab{id: w.nextID, profile: profile, viewport: viewport.New(vw, vh)}
	id := t.id
	t.sink = ui.NewTranscriptSink(func() {
		w.post(messages.RefreshMsg{Tab: id})
	})

	w.tabs = append(w.tabs, t)
	w.switchTo(len(w.tabs) - 1)
	w.showPicker = false
	w.appendText(t, fmt.Sprintf("Connecting to %s…\n", profile.Title()))
	return tea.Batch(w.input.Focus(), w.dial(t))
}

func (w *Workspace) dial(t *tab) tea.Cmd {
	t.state = tabConnecting
	ctx, registry, profile, sink, id := w.ctx, w.registry, t.profile, t.sink, t.id
	return func() tea.Msg {
		handle, err := registry.Create(ctx, profile, sink)
		if err != nil {
			return messages.SessionFailedMsg{Tab: id, Err: err}
		}
		return messages.SessionOpenedMsg{Tab: id, Handle: handle}
	}
}

func (w *Workspace) sessionOpened(msg messages.SessionOpenedMsg) tea.Cmd {
	t := w.tabByID(msg.Tab)
	if t == nil {
		// The tab was closed while dialing.
		return w.destroy(msg.Tab, msg.Handle)
	}
	t.handle = msg.Handle
	t.state = tabOpen
	if t.draft != "" {
		_ = w.registry.SetInput(t.handle, t.draft)
		t.draft = ""
	}
	w.appendText(t, "Connected.\n")
	w.setStatus("Connected to %s", t.profile.Title())
	return nil
}

func (w *Workspace) sessionFailed(msg messages.SessionFailedMsg) tea.Cmd {
	t := w.tabByID(msg.Tab)
	if t == nil {
		return nil
	}
	t.state = tabFailed
	w.appendText(t, fmt.Sprintf("Connection failed: %v\n", msg.Err))
	w.setError("Connection to %s failed", t.profile.Title())

	var verify *ssh.HostKeyVerificationRequired
	if errors.As(msg.Err, &verify) {
		w.prompt(components.PopupConfirm, "Host Key Verification",
			fmt.Sprintf("New host key for %s\n\nKey fingerprint:\n%s\n\nTrust it and connect?", verify.Host, verify.Fingerprint),
			func(string) tea.Cmd {
				if err := verify.Trust(); err != nil {
					w.setError("Failed to save host key: %v", err)
					return nil
				}
				w.appendText(t, "Host key saved.\n")
				return w.dial(t)
			})
	}
	return nil
}

func (w *Workspace) sendInput(t *tab) tea.Cmd {
	switch t.state {
	case tabConnecting:
		w.setError("Still connecting to %s", t.profile.Title())
		return nil
	case tabFailed:
		w.appendText(t, fmt.Sprintf("Connecting to %s…\n", t.profile.Title()))
		return w.dial(t)
	}

	text := w.input.Value()
	w.input.Reset()

	session, err := w.registry.Session(t.handle)
	if err != nil {
		w.setError("%v", err)
		return nil
	}
	if session.Connected() {
		if err := w.registry.SendCommand(t.handle, text); err != nil {
			w.setError("%v", err)
		}
		return nil
	}

	// A reconnect dials, so it runs off the event loop.
	registry, handle := w.registry, t.handle
	return func() tea.Msg {
		if err := registry.SendCommand(handle, text); err != nil {
			return messages.StatusMsg{Text: err.Error(), IsError: true}
		}
		return nil
	}
}

func (w *Workspace) recall(t *tab, step func(manager.Handle) (string, error)) {
	if t.state != tabOpen {
		return
	}
	text, err := step(t.handle)
	if err != nil {
		w.setError("%v", err)
		return
	}
	w.input.SetValue(text)
	w.input.CursorEnd()
}

func (w *Workspace) closeTab(index int) tea.Cmd {
	t := w.tabs[index]
	w.tabs = append(w.tabs[:index], w.tabs[index+1:]...)
	if len(w.tabs) == 0 {
		w.active = 0
		w.input.Reset()
		w.openPicker()
	} else {
		w.active = min(w.active, len(w.tabs)-1)
		w.loadInput()
	}
	if t.handle == "" {
		return nil
	}
	return w.destroy(t.id, t.handle)
}

func (w *Workspace) destroy(id int, handle manager.Handle) tea.Cmd {
	registry := w.registry
	return func() tea.Msg {
		return messages.SessionClosedMsg{Tab: id, Err: registry.Destroy(handle)}
	}
}

func (w *Workspace) promptSaveTranscript(t *tab) {
	name := fmt.Sprintf("%s_%s.txt", safeName(t.profile.Title()), time.Now().Format("20060102_150405"))
	w.prompt(components.PopupInput, "Save transcript", "File name", func(path string) tea.Cmd {
		if path == "" {
			return nil
		}
		if err := os.WriteFile(path, []byte(t.content.String()), 0644); err != nil {
			w.setError("Failed to save transcript: %v", err)
			return nil
		}
		w.setStatus("Transcript saved to %s", path)
		return nil
	})
	w.popup.Input.SetValue(name)
}

func (w *Workspace) promptUpload(t *tab) {
	if t.state != tabOpen {
		w.setError("%s is not connected", t.profile.Title())
		return
	}
	w.prompt(components.PopupInput, "Upload log", "Remote directory", func(dir string) tea.Cmd {
		session, err := w.registry.Session(t.handle)
		if err != nil {
			w.setError("%v", err)
			return nil
		}
		w.setStatus("Uploading log…")
		id := t.id
		return func() tea.Msg {
			remote, err := session.UploadLog(dir, nil)
			return messages.UploadFinishedMsg{Tab: id, Remote: remote, Err: err}
		}
	})
	w.popup.Input.SetValue(DefaultUploadDir)
}

func (w *Workspace) saveProfile(t *tab) {
	added, err := w.store.Add(t.profile)
	switch {
	case err != nil:
		w.setError("Failed to save connection: %v", err)
	case added:
		w.setStatus("Connection saved.")
		w.picker.setProfiles(w.store.Profiles())
	default:
		w.setStatus("Connection already saved.")
	}
}

func (w *Workspace) prompt(kind components.PopupType, title, message string, confirm func(string) tea.Cmd) {
	height := 9
	if kind == components.PopupConfirm {
		height = 12
	}
	w.popup = components.NewPopup(kind, title, message, 60, height, w.width, w.height)
	w.onConfirm = confirm
}

func (w *Workspace) openPicker() {
	w.saveInput()
	w.showPicker = true
	w.input.Blur()
}

func (w *Workspace) switchTo(index int) {
	w.saveInput()
	w.active = index
	w.loadInput()
}

func (w *Workspace) saveInput() {
	t := w.current()
	if t == nil {
		return
	}
	if t.state == tabOpen {
		_ = w.registry.SetInput(t.handle, w.input.Value())
	} else {
		t.draft = w.input.Value()
	}
}

func (w *Workspace) loadInput() {
	t := w.current()
	if t == nil {
		return
	}
	text := t.draft
	if t.state == tabOpen {
		text, _ = w.registry.Input(t.handle)
	}
	w.input.SetValue(text)
	w.input.CursorEnd()
}

// refresh moves chunks buffered by the tab's sink into its viewport.
func (w *Workspace) refresh(id int) {
	t := w.tabByID(id)
	if t == nil {
		return
	}
	chunks, scroll := t.sink.Take()
	for _, c := range chunks {
		t.content.WriteString(c.Format())
	}
	t.viewport.SetContent(t.content.String())
	if scroll {
		t.viewport.GotoBottom()
	}
}

func (w *Workspace) appendText(t *tab, text string) {
	t.content.WriteString(text)
	t.viewport.SetContent(t.content.String())
	t.viewport.GotoBottom()
}

func (w *Workspace) resize(width, height int) {
	w.width, w.height = width, height
	w.help.Width = width
	w.input.Width = max(width-6, 10)
	w.picker.setSize(width, height-2)
	vw, vh := w.viewportSize()
	for _, t := range w.tabs {
		t.viewport.Width, t.viewport.Height = vw, vh
	}
	if w.popup != nil {
		w.popup.ScreenWidth, w.popup.ScreenHeight = width, height
	}
}

func (w *Workspace) viewportSize() (int, int) {
	return max(w.width, 1), max(w.height-chromeHeight, 1)
}

func (w *Workspace) current() *tab {
	if w.active < 0 || w.active >= len(w.tabs) {
		return nil
	}
	return w.tabs[w.active]
}

func (w *Workspace) tabByID(id int) *tab {
	for _, t := range w.tabs {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (w *Workspace) titleOf(handle manager.Handle) string {
	for _, t := range w.tabs {
		if t.handle == handle {
			return t.profile.Title()
		}
	}
	return string(handle)
}

func (w *Workspace) setStatus(format string, args ...any) {
	w.status = ui.Status{Message: fmt.Sprintf(format, args...)}
}

func (w *Workspace) setError(format string, args ...any) {
	w.status = ui.Status{Message: fmt.Sprintf(format, args...), IsError: true}
	w.log.Debug().Str("status", w.status.Message).Msg("ui error")
}

func (w *Workspace) View() string {
	if w.popup != nil {
		return w.popup.Render()
	}
	if w.showPicker {
		return lipgloss.JoinVertical(lipgloss.Left, w.picker.view(), w.statusView())
	}

	t := w.current()
	if t == nil {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		w.tabsView(),
		t.viewport.View(),
		ui.InputStyle.Width(max(w.width-2, 1)).Render(w.input.View()),
		w.statusView(),
		w.help.View(w.keys),
	)
}

func (w *Workspace) tabsView() string {
	labels := make([]string, 0, len(w.tabs))
	for i, t := range w.tabs {
		title := ui.TabTitle(t.profile.Title())
		switch {
		case t.state == tabConnecting:
			title += " …"
		case t.state == tabFailed:
			title += " ✕"
		case !w.connected(t):
			title += " ○"
		}
		style := ui.TabStyle
		if i == w.active {
			style = ui.ActiveTabStyle
		}
		labels = append(labels, style.Render(title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, labels...)
}

func (w *Workspace) connected(t *tab) bool {
	session, err := w.registry.Session(t.handle)
	return err == nil && session.Connected()
}

func (w *Workspace) statusView() string {
	if w.status.Message == "" {
		return ""
	}
	if w.status.IsError {
		return ui.ErrorStyle.Render(w.status.Message)
	}
	return ui.SuccessStyle.Render(w.status.Message)
}

func safeName(title string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '@', ' ':
			return '_'
		}
		return r
	}, title)
}
