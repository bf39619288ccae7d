package components

import (
	"strings"

	"commandForge/internal/ui"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type PopupType int

const (
	PopupNone PopupType = iota
	PopupInput
	PopupPassword
	PopupConfirm
	PopupMessage
)

type Popup struct {
	Type         PopupType
	Title        string
	Message      string
	Input        textinput.Model
	Width        int
	Height       int
	ScreenWidth  int
	ScreenHeight int
}

func NewPopup(popupType PopupType, title, message string, width, height, screenWidth, screenHeight int) *Popup {
	input := textinput.New()
	input.Placeholder = "Enter value..."
	input.Width = max(width-8, 10)
	if popupType == PopupPassword {
		input.EchoMode = textinput.EchoPassword
		input.EchoCharacter = '•'
		input.Placeholder = ""
	}
	input.Focus()

	return &Popup{
		Type:         popupType,
		Title:        title,
		Message:      message,
		Input:        input,
		Width:        width,
		Height:       height,
		ScreenWidth:  screenWidth,
		ScreenHeight: screenHeight,
	}
}

// HasInput reports whether the popup collects text.
func (p *Popup) HasInput() bool {
	return p.Type == PopupInput || p.Type == PopupPassword
}

// Update forwards key input to the text field.
func (p *Popup) Update(msg tea.Msg) tea.Cmd {
	if !p.HasInput() {
		return nil
	}
	var cmd tea.Cmd
	p.Input, cmd = p.Input.Update(msg)
	return cmd
}

func (p *Popup) Value() string {
	return strings.TrimSpace(p.Input.Value())
}

func (p *Popup) Render() string {
	popupStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ui.Border).
		Padding(1, 2).
		Width(p.Width).
		Height(p.Height)

	titleStyle := ui.TitleStyle.
		Align(lipgloss.Center).
		Width(p.Width - 4)

	var content strings.Builder
	content.WriteString(titleStyle.Render(p.Title) + "\n\n")
	content.WriteString(p.Message + "\n")

	if p.HasInput() {
		content.WriteString("\n" + p.Input.View())
	}

	var keys string
	switch p.Type {
	case PopupConfirm:
		keys = "y - Yes, n - No"
	case PopupMessage:
		keys = "ESC/ENTER - Close"
	default:
		keys = "ENTER - Confirm, ESC - Cancel"
	}
	content.WriteString("\n" + ui.DescriptionStyle.Render(keys))

	return lipgloss.Place(
		p.ScreenWidth,
		p.ScreenHeight,
		lipgloss.Center,
		lipgloss.Center,
		popupStyle.Render(content.String()),
		lipgloss.WithWhitespaceForeground(lipgloss.Color("0")),
	)
}
