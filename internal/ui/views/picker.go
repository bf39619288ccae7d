package views

import (
	"fmt"

	"commandForge/internal/models"
	"commandForge/internal/ui"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

const newConnectionTitle = "New connection…"

type profileItem struct {
	profile models.ConnectionProfile
	index   int
	isNew   bool
}

func (i profileItem) Title() string {
	if i.isNew {
		return newConnectionTitle
	}
	return fmt.Sprintf("%d. %s", i.index+1, i.profile.Title())
}

func (i profileItem) Description() string {
	if i.isNew {
		return "user@host[:port]"
	}
	p := i.profile.WithDefaults()
	return fmt.Sprintf("%s@%s", p.User, p.Address())
}

func (i profileItem) FilterValue() string {
	if i.isNew {
		return newConnectionTitle
	}
	return i.profile.Title() + " " + i.profile.Host
}

// picker lists saved connections plus an entry for an ad-hoc target.
type picker struct {
	list list.Model
}

func newPicker(profiles []models.ConnectionProfile, width, height int) *picker {
	l := list.New(pickerItems(profiles), list.NewDefaultDelegate(), width, height)
	l.Title = "Connections"
	l.Styles.Title = ui.TitleStyle
	l.SetShowHelp(true)
	l.DisableQuitKeybindings()
	return &picker{list: l}
}

func pickerItems(profiles []models.ConnectionProfile) []list.Item {
	items := make([]list.Item, 0, len(profiles)+1)
	for i, p := range profiles {
		items = append(items, profileItem{profile: p, index: i})
	}
	return append(items, profileItem{isNew: true})
}

func (p *picker) setProfiles(profiles []models.ConnectionProfile) tea.Cmd {
	return p.list.SetItems(pickerItems(profiles))
}

func (p *picker) setSize(width, height int) {
	p.list.SetSize(width, height)
}

// filtering reports whether key input belongs to the filter prompt.
func (p *picker) filtering() bool {
	return p.list.FilterState() == list.Filtering
}

// filtered reports whether a filter is being typed or applied.
func (p *picker) filtered() bool {
	return p.list.FilterState() != list.Unfiltered
}

func (p *picker) selected() (profileItem, bool) {
	item, ok := p.list.SelectedItem().(profileItem)
	return item, ok
}

func (p *picker) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return cmd
}

func (p *picker) view() string {
	return p.list.View()
}
