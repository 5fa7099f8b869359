package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// Messages emitted by searchModel.

type searchQueryMsg struct {
	prefix string
}

type closeSearchMsg struct{}

// searchModel finds mailing lists by name prefix.
type searchModel struct {
	input     textinput.Model
	results   []domain.MailingList
	cursor    int
	searching bool
	inputMode bool
	pending   bool
	width     int
	height    int
}

func newSearch() searchModel {
	ti := textinput.New()
	ti.Placeholder = "List name prefix..."
	ti.Prompt = "/ "
	ti.CharLimit = 128
	return searchModel{
		input:     ti,
		inputMode: true,
	}
}

func (s searchModel) Update(msg tea.Msg) (searchModel, tea.Cmd) {
	if !s.searching {
		return s, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Back):
			return s, func() tea.Msg { return closeSearchMsg{} }

		case key.Matches(msg, keys.Enter):
			if s.inputMode {
				prefix := strings.TrimSpace(s.input.Value())
				s.inputMode = false
				s.pending = true
				s.input.Blur()
				s.cursor = 0
				return s, func() tea.Msg { return searchQueryMsg{prefix: prefix} }
			}
			if s.cursor < len(s.results) {
				name := s.results[s.cursor].ID.String()
				return s, func() tea.Msg { return listSelectedMsg{list: name} }
			}
			return s, nil

		case key.Matches(msg, keys.Up) && !s.inputMode:
			if s.cursor > 0 {
				s.cursor--
			}
			return s, nil

		case key.Matches(msg, keys.Down) && !s.inputMode:
			if s.cursor < len(s.results)-1 {
				s.cursor++
			}
			return s, nil

		case key.Matches(msg, keys.Search) && !s.inputMode:
			s.inputMode = true
			s.input.Focus()
			return s, nil
		}
	}

	if s.inputMode {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s searchModel) View() string {
	if !s.searching || s.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(s.input.View())
	b.WriteByte('\n')

	switch {
	case s.pending:
		b.WriteByte('\n')
		b.WriteString(mutedTextStyle.Render("Searching..."))
		return b.String()
	case len(s.results) == 0:
		if !s.inputMode {
			b.WriteByte('\n')
			b.WriteString(mutedTextStyle.Render("No lists"))
		}
		return b.String()
	}

	b.WriteByte('\n')
	b.WriteString(titleStyle.Render(fmt.Sprintf("Lists (%d):", len(s.results))))
	b.WriteByte('\n')

	maxRows := max(s.height-4, 1) // input(1) + blank(1) + header(1) + padding(1)
	offset := max(s.cursor-maxRows+1, 0)
	end := min(offset+maxRows, len(s.results))
	for i := offset; i < end; i++ {
		if i > offset {
			b.WriteByte('\n')
		}
		l := s.results[i]
		nameCol := lipgloss.NewStyle().Width(24).Render(truncate(l.ID.String(), 24))
		line := nameCol + "  " + mutedTextStyle.Render(truncate(l.Description, max(s.width-28, 10)))
		if !s.inputMode && i == s.cursor {
			line = selectedStyle.Width(s.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// Open activates the overlay and focuses the text input.
func (s *searchModel) Open() {
	s.searching = true
	s.inputMode = true
	s.input.Focus()
}

// Close deactivates the overlay, clearing input and results.
func (s *searchModel) Close() {
	s.searching = false
	s.inputMode = true
	s.pending = false
	s.input.SetValue("")
	s.input.Blur()
	s.results = nil
	s.cursor = 0
}

func (s *searchModel) SetResults(results []domain.MailingList) {
	s.results = results
	s.pending = false
	s.cursor = 0
}

func (s *searchModel) SetSize(w, h int) {
	s.width = w
	s.height = h
	s.input.Width = w - 4 // account for prompt and padding
}

func (s searchModel) IsActive() bool {
	return s.searching
}

// Prefix returns the submitted prefix.
func (s searchModel) Prefix() string {
	return strings.TrimSpace(s.input.Value())
}
