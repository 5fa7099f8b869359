package tui

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// Messages emitted by readerModel.

type applyRequestMsg struct {
	patchset *domain.Patchset
}

type replyRequestMsg struct {
	patchset *domain.Patchset
}

type refreshPatchsetMsg struct {
	messageID string
}

type closeReaderMsg struct{}

// readerModel displays a patchset, its review tags and the outcomes of
// the last action run on it in a scrollable viewport.
type readerModel struct {
	patchset     *domain.Patchset
	outcomes     []domain.ActionOutcome
	outcomeLabel string
	content      string
	scrollOffset int
	maxScroll    int
	width        int
	height       int
	focused      bool
	visible      bool
}

func newReader() readerModel {
	return readerModel{}
}

func (r readerModel) Update(msg tea.Msg) (readerModel, tea.Cmd) {
	if !r.focused || !r.visible {
		return r, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if r.scrollOffset > 0 {
				r.scrollOffset--
			}
		case key.Matches(msg, keys.Down):
			if r.scrollOffset < r.maxScroll {
				r.scrollOffset++
			}
		case key.Matches(msg, keys.NextPage):
			r.scrollOffset = min(r.scrollOffset+max(r.height-1, 1), r.maxScroll)
		case key.Matches(msg, keys.PrevPage):
			r.scrollOffset = max(r.scrollOffset-max(r.height-1, 1), 0)
		case key.Matches(msg, keys.Back):
			return r, func() tea.Msg { return closeReaderMsg{} }
		}

		ps := r.patchset
		if ps == nil {
			return r, nil
		}
		switch {
		case key.Matches(msg, keys.Reply):
			return r, func() tea.Msg { return replyRequestMsg{patchset: ps} }
		case key.Matches(msg, keys.Apply):
			return r, func() tea.Msg { return applyRequestMsg{patchset: ps} }
		case key.Matches(msg, keys.Bookmark):
			return r, func() tea.Msg { return bookmarkToggleMsg{summary: ps.Summary()} }
		case key.Matches(msg, keys.Refresh):
			return r, func() tea.Msg { return refreshPatchsetMsg{messageID: ps.MessageID} }
		}
	}

	return r, nil
}

func (r readerModel) View() string {
	if !r.visible || r.width == 0 || r.height == 0 {
		return ""
	}
	if r.content == "" {
		return mutedTextStyle.Render("Loading patchset...")
	}

	lines := strings.Split(r.content, "\n")
	visibleHeight := max(r.height, 1)
	start := min(r.scrollOffset, len(lines))
	end := min(start+visibleHeight, len(lines))
	return strings.Join(lines[start:end], "\n")
}

// Open shows the reader while a patchset is loading.
func (r *readerModel) Open() {
	r.visible = true
}

// ShowPatchset displays ps. Outcomes of an earlier action are dropped
// when a different patchset is shown.
func (r *readerModel) ShowPatchset(ps *domain.Patchset) {
	if r.patchset == nil || r.patchset.MessageID != ps.MessageID {
		r.outcomes = nil
		r.outcomeLabel = ""
		r.scrollOffset = 0
	}
	r.patchset = ps
	r.visible = true
	r.render()
}

// ShowOutcomes puts the outcomes of an action above the patchset.
func (r *readerModel) ShowOutcomes(label string, outcomes []domain.ActionOutcome) {
	r.outcomeLabel = label
	r.outcomes = outcomes
	r.scrollOffset = 0
	r.render()
}

// Close hides the reader and clears its content.
func (r *readerModel) Close() {
	*r = readerModel{width: r.width, height: r.height}
}

// SetSize updates the reader dimensions and re-renders for the new width.
func (r *readerModel) SetSize(w, h int) {
	r.width = w
	r.height = h
	r.render()
}

func (r readerModel) IsVisible() bool {
	return r.visible
}

// Patchset returns the displayed patchset, if any.
func (r readerModel) Patchset() *domain.Patchset {
	return r.patchset
}

// --- internal helpers ---

func (r *readerModel) render() {
	r.content = ""
	if r.patchset != nil {
		var b strings.Builder
		if len(r.outcomes) > 0 {
			b.WriteString(renderOutcomes(r.outcomeLabel, r.outcomes))
			b.WriteString("\n\n")
		}
		b.WriteString(renderPatchset(r.patchset, r.width))
		r.content = b.String()
	}
	r.recalcMaxScroll()
}

func (r *readerModel) recalcMaxScroll() {
	if r.content == "" {
		r.maxScroll = 0
		r.scrollOffset = 0
		return
	}
	lines := strings.Count(r.content, "\n") + 1
	r.maxScroll = max(lines-max(r.height, 1), 0)
	if r.scrollOffset > r.maxScroll {
		r.scrollOffset = r.maxScroll
	}
}

// renderPatchset formats the series header, the tag summary and every
// series message with its tags. Diffs are syntax highlighted.
func renderPatchset(ps *domain.Patchset, width int) string {
	var b strings.Builder
	ledger := domain.NewTagLedger(ps)
	sep := mutedTextStyle.Render(strings.Repeat("─", max(width, 20)))

	b.WriteString(titleStyle.Render(ps.Title))
	b.WriteByte('\n')
	header := func(name, value string) {
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("%-9s", name+":")))
		b.WriteString(value)
		b.WriteByte('\n')
	}
	header("From", ps.Author.String())
	header("Series", fmt.Sprintf("v%d, %d patches, %d replies", ps.Version, ps.Total, len(ps.Replies)))
	header("List", ps.List.String())
	header("Id", ps.MessageID)
	for _, kind := range domain.TagKinds {
		if ids := ledger.Identities(kind); len(ids) > 0 {
			header(shortTag(kind), tagStyle.Render(fmt.Sprintf("%d: %s", len(ids), strings.Join(ids, ", "))))
		}
	}

	for _, m := range ps.Messages {
		b.WriteString(sep)
		b.WriteByte('\n')
		b.WriteString(coverStyle.Render(fmt.Sprintf("[%d/%d] %s", m.Number, ps.Total, m.Subject)))
		b.WriteByte('\n')
		header("From", m.From.String())
		header("Date", m.Date.Format("Jan 2, 2006 3:04 PM"))
		for _, t := range ledger.Tags(m.MessageID) {
			b.WriteString(tagStyle.Render("  " + t.String()))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
		if m.IsPatch() {
			b.WriteString(highlightPatch(m.Body))
		} else {
			b.WriteString(m.Body)
		}
		b.WriteByte('\n')
	}

	if len(ps.Replies) > 0 {
		b.WriteString(sep)
		b.WriteByte('\n')
		b.WriteString(titleStyle.Render(fmt.Sprintf("Replies (%d)", len(ps.Replies))))
		b.WriteByte('\n')
		for _, m := range ps.Replies {
			fmt.Fprintf(&b, "  %s  %s\n", mutedTextStyle.Render(addressDisplayName(m.From)), m.Subject)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderOutcomes lists one line per target or message.
func renderOutcomes(label string, outcomes []domain.ActionOutcome) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(label))
	for _, o := range outcomes {
		b.WriteByte('\n')
		line := fmt.Sprintf("  %-10s %s", o.Kind, o.Subject)
		switch {
		case o.Err != nil:
			line += ": " + o.Err.Error()
		case o.Detail != "":
			line += ": " + o.Detail
		}
		switch o.Kind {
		case domain.OutcomeFailed:
			b.WriteString(failedStyle.Render(line))
		case domain.OutcomeSkipped:
			b.WriteString(mutedTextStyle.Render(line))
		default:
			b.WriteString(tagStyle.Render(line))
		}
	}
	return b.String()
}

func highlightPatch(body string) string {
	var buf strings.Builder
	if err := quick.Highlight(&buf, body, "diff", "terminal256", "monokai"); err != nil {
		return body
	}
	return buf.String()
}

func shortTag(kind domain.TagKind) string {
	return strings.TrimSuffix(string(kind), "-by")
}
