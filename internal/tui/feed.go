package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/loreterm/internal/domain"
	"github.com/lu-zhengda/loreterm/internal/store"
)

// Messages emitted by feedModel.

type patchsetSelectedMsg struct {
	messageID string
}

type bookmarkToggleMsg struct {
	summary domain.PatchsetSummary
}

type pageMsg struct {
	delta int
}

type refreshMsg struct{}

// feedModel lists the patchsets of one feed page, or the bookmarks.
type feedModel struct {
	summaries  []domain.PatchsetSummary
	bookmarked func(string) bool
	list       string
	page       int
	bookmarks  bool
	cursor     int
	offset     int
	width      int
	height     int
	focused    bool
}

func newFeed(bookmarked func(string) bool) feedModel {
	return feedModel{bookmarked: bookmarked}
}

func (m feedModel) Update(msg tea.Msg) (feedModel, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustScroll()
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.summaries)-1 {
				m.cursor++
				m.adjustScroll()
			}
		case key.Matches(msg, keys.Enter):
			if sum, ok := m.Selected(); ok {
				return m, func() tea.Msg { return patchsetSelectedMsg{messageID: sum.MessageID} }
			}
		case key.Matches(msg, keys.Bookmark):
			if sum, ok := m.Selected(); ok {
				return m, func() tea.Msg { return bookmarkToggleMsg{summary: sum} }
			}
		case key.Matches(msg, keys.NextPage):
			if !m.bookmarks && m.list != "" {
				return m, func() tea.Msg { return pageMsg{delta: 1} }
			}
		case key.Matches(msg, keys.PrevPage):
			if !m.bookmarks && m.page > 0 {
				return m, func() tea.Msg { return pageMsg{delta: -1} }
			}
		case key.Matches(msg, keys.Refresh):
			if !m.bookmarks && m.list != "" {
				return m, func() tea.Msg { return refreshMsg{} }
			}
		}
	}

	return m, nil
}

func (m feedModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.heading()))
	b.WriteByte('\n')

	if len(m.summaries) == 0 {
		switch {
		case m.bookmarks:
			b.WriteString(mutedTextStyle.Render("No bookmarks"))
		case m.list == "":
			b.WriteString(mutedTextStyle.Render("Select a mailing list"))
		default:
			b.WriteString(mutedTextStyle.Render("No patchsets"))
		}
		return b.String()
	}

	end := min(m.offset+m.visibleRows(), len(m.summaries))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteByte('\n')
		}
		line := m.renderRow(i)
		if i == m.cursor && m.focused {
			line = selectedStyle.Width(m.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// SetFeed shows page of list. A new list resets the cursor.
func (m *feedModel) SetFeed(list string, page int, sums []domain.PatchsetSummary) {
	if list != m.list || page != m.page || m.bookmarks {
		m.cursor = 0
		m.offset = 0
	}
	m.list = list
	m.page = page
	m.bookmarks = false
	m.summaries = sums
	m.clampCursor()
}

// SetBookmarks shows the bookmarked patchsets, newest first.
func (m *feedModel) SetBookmarks(bookmarks []store.Bookmark) {
	if !m.bookmarks {
		m.cursor = 0
		m.offset = 0
	}
	m.bookmarks = true
	sorted := slices.Clone(bookmarks)
	slices.SortStableFunc(sorted, func(a, b store.Bookmark) int { return b.AddedAt.Compare(a.AddedAt) })
	m.summaries = make([]domain.PatchsetSummary, 0, len(sorted))
	for _, bm := range sorted {
		m.summaries = append(m.summaries, domain.PatchsetSummary{
			MessageID: bm.MessageID,
			Title:     bm.Title,
			List:      bm.List,
			Updated:   bm.AddedAt,
		})
	}
	m.clampCursor()
}

func (m *feedModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.adjustScroll()
}

// Selected returns the highlighted summary.
func (m feedModel) Selected() (domain.PatchsetSummary, bool) {
	if m.cursor < 0 || m.cursor >= len(m.summaries) {
		return domain.PatchsetSummary{}, false
	}
	return m.summaries[m.cursor], true
}

// --- internal helpers ---

func (m feedModel) heading() string {
	switch {
	case m.bookmarks:
		return fmt.Sprintf("Bookmarks (%d)", len(m.summaries))
	case m.list == "":
		return "Patchsets"
	default:
		return fmt.Sprintf("%s · page %d", m.list, m.page+1)
	}
}

// visibleRows leaves room for the heading line.
func (m feedModel) visibleRows() int {
	return max(m.height-1, 1)
}

func (m *feedModel) adjustScroll() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m *feedModel) clampCursor() {
	if len(m.summaries) == 0 {
		m.cursor = 0
		m.offset = 0
		return
	}
	if m.cursor >= len(m.summaries) {
		m.cursor = len(m.summaries) - 1
	}
	m.adjustScroll()
}

func (m feedModel) renderRow(idx int) string {
	s := m.summaries[idx]

	mark := "  "
	if m.bookmarks || (m.bookmarked != nil && m.bookmarked(s.MessageID)) {
		mark = bookmarkStyle.Render("★ ")
	}

	var series string
	switch {
	case m.bookmarks:
		series = s.List.String()
	case s.Total > 0:
		series = fmt.Sprintf("v%d %d/%d", s.Version, s.Number, s.Total)
	default:
		series = fmt.Sprintf("v%d", s.Version)
	}
	from := addressDisplayName(s.Author)
	date := relativeDate(s.Updated)

	seriesWidth := 10
	fromWidth := 18
	dateWidth := len(date)
	titleWidth := m.width - seriesWidth - fromWidth - dateWidth - 8 // mark(2) + three "  " gaps(6)
	if titleWidth < 10 {
		titleWidth = 10
	}

	seriesCol := mutedTextStyle.Width(seriesWidth).Render(truncate(series, seriesWidth))
	fromCol := lipgloss.NewStyle().Width(fromWidth).Render(truncate(from, fromWidth))
	titleCol := lipgloss.NewStyle().Width(titleWidth).Render(truncate(s.Title, titleWidth))
	dateCol := mutedTextStyle.Width(dateWidth).Render(date)

	line := mark + seriesCol + "  " + fromCol + "  " + titleCol + "  " + dateCol
	if s.IsCover() && !m.bookmarks {
		line = coverStyle.Render(line)
	}
	return line
}

// --- utility functions ---

func addressDisplayName(addr domain.Address) string {
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Email
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func relativeDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
