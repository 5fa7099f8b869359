package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// listSelectedMsg is sent when the user opens a mailing list via Enter.
type listSelectedMsg struct {
	list string
}

// bookmarksSelectedMsg is sent when the user opens the bookmarks entry.
type bookmarksSelectedMsg struct{}

// bookmarksEntry is the name of the pseudo-list heading the sidebar.
const bookmarksEntry = "Bookmarks"

// sidebarModel displays the bookmarks entry followed by the mailing lists
// of the archive.
type sidebarModel struct {
	lists      []domain.MailingList
	cursor     int
	activeList string
	archive    string
	loading    bool
	width      int
	height     int
	offset     int
	focused    bool
}

func newSidebar(archive, defaultList string) sidebarModel {
	return sidebarModel{
		archive:    archive,
		activeList: defaultList,
		loading:    true,
	}
}

// SetLists updates the mailing lists displayed in the sidebar.
func (s *sidebarModel) SetLists(lists []domain.MailingList) {
	s.lists = lists
	s.loading = false
	if s.cursor >= s.totalItems() {
		s.cursor = s.totalItems() - 1
	}
	s.adjustScroll()
}

func (s *sidebarModel) SetSize(w, h int) {
	s.width = w
	s.height = h
	s.adjustScroll()
}

// Update handles key events for sidebar navigation.
func (s sidebarModel) Update(msg tea.Msg) (sidebarModel, tea.Cmd) {
	if !s.focused {
		return s, nil
	}

	total := s.totalItems()
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			s.cursor--
			if s.cursor < 0 {
				s.cursor = total - 1
			}
			s.adjustScroll()
		case key.Matches(msg, keys.Down):
			s.cursor++
			if s.cursor >= total {
				s.cursor = 0
			}
			s.adjustScroll()
		case key.Matches(msg, keys.Enter):
			if s.cursor == 0 {
				s.activeList = bookmarksEntry
				return s, func() tea.Msg { return bookmarksSelectedMsg{} }
			}
			name := s.lists[s.cursor-1].ID.String()
			s.activeList = name
			return s, func() tea.Msg { return listSelectedMsg{list: name} }
		}
	}

	return s, nil
}

// View renders the sidebar.
func (s sidebarModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("loreterm"))
	b.WriteString("\n")
	b.WriteString(mutedTextStyle.Render(truncate(s.archive, max(s.width, 10))))
	b.WriteString("\n\n")

	rows := s.visibleRows()
	end := min(s.offset+rows, s.totalItems())
	for i := s.offset; i < end; i++ {
		b.WriteString(s.renderLine(i))
		b.WriteString("\n")
	}

	switch {
	case s.loading:
		b.WriteString(mutedTextStyle.Render("Loading lists..."))
	case len(s.lists) == 0:
		b.WriteString(mutedTextStyle.Render("No lists"))
	}
	return b.String()
}

func (s sidebarModel) renderLine(idx int) string {
	name := bookmarksEntry
	if idx > 0 {
		name = s.lists[idx-1].ID.String()
	}

	prefix := "  "
	if name == s.activeList {
		prefix = "▶ "
	}
	line := fmt.Sprintf("%s%s", prefix, name)
	if idx == 0 {
		line = bookmarkStyle.Render(line)
	}

	// Pad to width so highlight covers the full line.
	padded := lipgloss.NewStyle().Width(max(s.width, 10)).Render(line)
	if s.focused && idx == s.cursor {
		return selectedStyle.Render(padded)
	}
	return padded
}

func (s sidebarModel) totalItems() int {
	return len(s.lists) + 1
}

// visibleRows leaves room for the three header lines.
func (s sidebarModel) visibleRows() int {
	return max(s.height-3, 1)
}

func (s *sidebarModel) adjustScroll() {
	if s.cursor < 0 {
		s.cursor = 0
	}
	rows := s.visibleRows()
	if s.cursor < s.offset {
		s.offset = s.cursor
	}
	if s.cursor >= s.offset+rows {
		s.offset = s.cursor - rows + 1
	}
}
