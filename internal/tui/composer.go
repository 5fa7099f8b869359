package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/loreterm/internal/action"
	"github.com/lu-zhengda/loreterm/internal/app"
	"github.com/lu-zhengda/loreterm/internal/domain"
)

// composerMode describes the action being prepared.
type composerMode int

const (
	modeApply composerMode = iota
	modeReply
)

// Messages emitted by composerModel.

type applySubmitMsg struct {
	patchset *domain.Patchset
	targets  []string
}

type replySubmitMsg struct {
	params app.ReplyParams
}

type cancelComposeMsg struct{}

// Field indices within the reply form.
const (
	fieldPatches = 0
	fieldTag     = 1
	fieldCount   = 2
)

// composerModel prepares an apply or reply action on a patchset. Apply
// asks for target names; reply asks for patch numbers and the tag kind
// and previews the first composed mail.
type composerModel struct {
	targetsInput textinput.Model
	patchesInput textinput.Model

	activeField int
	mode        composerMode
	patchset    *domain.Patchset
	tag         int
	dryRun      bool
	identity    string
	err         string

	width   int
	height  int
	visible bool
}

func newComposer() composerModel {
	targets := textinput.New()
	targets.Placeholder = "all configured targets"
	targets.CharLimit = 500
	targets.Prompt = ""

	patches := textinput.New()
	patches.Placeholder = "all patches (0 is the cover letter)"
	patches.CharLimit = 200
	patches.Prompt = ""

	return composerModel{
		targetsInput: targets,
		patchesInput: patches,
	}
}

// Update handles key events for the form.
func (c composerModel) Update(msg tea.Msg) (composerModel, tea.Cmd) {
	if !c.visible {
		return c, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Back):
			return c, func() tea.Msg { return cancelComposeMsg{} }

		case key.Matches(msg, keys.Submit):
			return c.submit()

		case key.Matches(msg, keys.DryRun) && c.mode == modeReply:
			c.dryRun = !c.dryRun
			return c, nil

		case key.Matches(msg, keys.Tab) && c.mode == modeReply:
			c.activeField = (c.activeField + 1) % fieldCount
			c.updateFocus()
			return c, nil
		}

		if c.mode == modeReply && c.activeField == fieldTag {
			switch msg.String() {
			case "left", "h":
				c.tag = (c.tag + len(domain.TagKinds) - 1) % len(domain.TagKinds)
			case "right", "l", " ":
				c.tag = (c.tag + 1) % len(domain.TagKinds)
			}
			return c, nil
		}
	}

	var cmd tea.Cmd
	switch c.mode {
	case modeApply:
		c.targetsInput, cmd = c.targetsInput.Update(msg)
	case modeReply:
		c.patchesInput, cmd = c.patchesInput.Update(msg)
		c.err = ""
	}
	return c, cmd
}

// View renders the form inside a bordered box.
func (c composerModel) View() string {
	if !c.visible || c.patchset == nil {
		return ""
	}

	innerWidth := max(c.width-4, 20)
	inputWidth := max(innerWidth-10, 10)
	c.targetsInput.Width = inputWidth
	c.patchesInput.Width = inputWidth

	label := func(s string) string { return mutedTextStyle.Render(fmt.Sprintf("%-9s", s)) }
	separator := mutedTextStyle.Render(strings.Repeat("─", innerWidth))

	var rows []string
	rows = append(rows, coverStyle.Render(truncate(c.patchset.Title, innerWidth)))
	var help string
	switch c.mode {
	case modeApply:
		rows = append(rows, label("Targets:")+c.targetsInput.View())
		rows = append(rows, mutedTextStyle.Render(fmt.Sprintf("%d patches, applied in series order with git am", c.patchset.Total)))
		help = "Ctrl+S:apply  Esc:cancel"

	case modeReply:
		rows = append(rows, label("Patches:")+c.patchesInput.View())
		tag := string(domain.TagKinds[c.tag])
		if c.activeField == fieldTag {
			tag = selectedStyle.Render("◀ " + tag + " ▶")
		}
		rows = append(rows, label("Tag:")+tag)
		mode := "send"
		if c.dryRun {
			mode = "dry run"
		}
		rows = append(rows, label("Mode:")+mode)
		rows = append(rows, separator)
		rows = append(rows, c.preview(max(c.height-12, 3)))
		help = "Tab:fields  ←/→:tag  Ctrl+D:dry run  Ctrl+S:reply  Esc:cancel"
	}
	if c.err != "" {
		rows = append(rows, failedStyle.Render(c.err))
	}
	rows = append(rows, "", mutedTextStyle.Render(help))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1).
		Width(c.width - 2)

	header := titleStyle.Render(" " + c.modeTitle() + " ")
	return header + "\n" + boxStyle.Render(strings.Join(rows, "\n"))
}

// Apply opens the form for applying ps. The targets field starts with the
// configured default targets.
func (c *composerModel) Apply(ps *domain.Patchset, defaults []string) {
	c.open(modeApply, ps)
	c.targetsInput.SetValue(strings.Join(defaults, ", "))
	c.targetsInput.Focus()
}

// Reply opens the form for replying to ps as identity.
func (c *composerModel) Reply(ps *domain.Patchset, identity string, dryRun bool) {
	c.open(modeReply, ps)
	c.identity = identity
	c.dryRun = dryRun
	c.activeField = fieldPatches
	c.updateFocus()
}

func (c *composerModel) Close() {
	c.visible = false
	c.patchset = nil
	c.err = ""
	c.targetsInput.Blur()
	c.patchesInput.Blur()
}

func (c *composerModel) SetSize(w, h int) {
	c.width = w
	c.height = h
}

func (c composerModel) IsVisible() bool {
	return c.visible
}

// --- internal helpers ---

func (c *composerModel) open(mode composerMode, ps *domain.Patchset) {
	c.mode = mode
	c.patchset = ps
	c.visible = true
	c.err = ""
	c.targetsInput.SetValue("")
	c.patchesInput.SetValue("")
}

func (c composerModel) submit() (composerModel, tea.Cmd) {
	ps := c.patchset
	switch c.mode {
	case modeApply:
		targets := splitList(c.targetsInput.Value())
		return c, func() tea.Msg { return applySubmitMsg{patchset: ps, targets: targets} }

	default:
		numbers, err := parseNumbers(c.patchesInput.Value())
		if err != nil {
			c.err = err.Error()
			return c, nil
		}
		params := app.ReplyParams{
			Patchset: ps,
			Numbers:  numbers,
			Tag:      domain.TagKinds[c.tag],
			DryRun:   c.dryRun,
		}
		return c, func() tea.Msg { return replySubmitMsg{params: params} }
	}
}

// preview renders the reply to the first selected message, cut to lines.
func (c composerModel) preview(lines int) string {
	if c.identity == "" {
		return failedStyle.Render("No replier identity: set reply.identity or git user.email")
	}
	numbers, err := parseNumbers(c.patchesInput.Value())
	if err != nil {
		return failedStyle.Render(err.Error())
	}
	ids, err := app.SelectMessages(c.patchset, numbers)
	if err != nil {
		return failedStyle.Render(err.Error())
	}
	if len(ids) == 0 {
		return mutedTextStyle.Render("Nothing to reply to")
	}
	msg, _ := c.patchset.Message(ids[0])
	mail, err := action.ComposeReply(msg, domain.TagKinds[c.tag], c.identity)
	if err != nil {
		return failedStyle.Render(err.Error())
	}

	out := strings.Split(strings.ReplaceAll(string(mail), "\r\n", "\n"), "\n")
	if len(out) > lines {
		out = append(out[:lines-1], mutedTextStyle.Render(fmt.Sprintf("... %d more lines", len(out)-lines+1)))
	}
	if len(ids) > 1 {
		out = append(out, mutedTextStyle.Render(fmt.Sprintf("and %d more replies", len(ids)-1)))
	}
	return strings.Join(out, "\n")
}

func (c *composerModel) updateFocus() {
	c.patchesInput.Blur()
	if c.activeField == fieldPatches {
		c.patchesInput.Focus()
	}
}

func (c composerModel) modeTitle() string {
	if c.mode == modeApply {
		return "Apply"
	}
	return "Reply"
}

// splitList splits a comma or space separated list of names.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// parseNumbers parses patch numbers such as "1, 3 4". Empty means nil.
func parseNumbers(s string) ([]int, error) {
	var out []int
	for _, f := range splitList(s) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid patch number %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}
