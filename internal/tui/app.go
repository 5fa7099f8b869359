package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/loreterm/internal/app"
	"github.com/lu-zhengda/loreterm/internal/config"
	"github.com/lu-zhengda/loreterm/internal/domain"
	"github.com/lu-zhengda/loreterm/internal/store"
)

type pane int

const (
	paneSidebar pane = iota
	paneList
	paneReader
)

// Request scopes. A newer request in a scope makes older results stale.
const (
	scopeLists  = "lists"
	scopeSearch = "search"
	scopeFeed   = "feed"
	scopeDetail = "detail"
	scopeAction = "action"
)

// backend is the part of app.Service the interface drives.
type backend interface {
	Config() *config.Config
	Lists(ctx context.Context, prefix string) ([]domain.MailingList, error)
	Feed(ctx context.Context, list string, page int, refresh bool) ([]domain.PatchsetSummary, error)
	Patchset(ctx context.Context, messageID string, refresh bool) (*domain.Patchset, error)
	ToggleBookmark(sum domain.PatchsetSummary) (bool, error)
	IsBookmarked(messageID string) bool
	Bookmarks() []store.Bookmark
	Apply(ctx context.Context, ps *domain.Patchset, names []string) []domain.ActionOutcome
	Reply(ctx context.Context, params app.ReplyParams) ([]domain.ActionOutcome, error)
	Identity(ctx context.Context) (string, error)
}

// --- async result messages ---

type listsLoadedMsg struct {
	ticket app.Ticket
	lists  []domain.MailingList
}

type searchResultsMsg struct {
	ticket app.Ticket
	lists  []domain.MailingList
}

type feedLoadedMsg struct {
	ticket    app.Ticket
	list      string
	page      int
	summaries []domain.PatchsetSummary
}

type patchsetLoadedMsg struct {
	ticket   app.Ticket
	patchset *domain.Patchset
}

type outcomesMsg struct {
	ticket    app.Ticket
	label     string
	messageID string
	outcomes  []domain.ActionOutcome
}

type bookmarkedMsg struct {
	summary domain.PatchsetSummary
	on      bool
}

type identityMsg struct {
	identity string
}

type errMsg struct {
	ticket app.Ticket
	err    error
}

// --- root model ---

type model struct {
	svc      backend
	tracker  *app.Tracker
	logger   *slog.Logger
	identity string

	sidebar  sidebarModel
	feed     feedModel
	reader   readerModel
	composer composerModel
	search   searchModel

	activePane pane
	statusBar  statusBar

	width  int
	height int
}

func newModel(svc backend, logger *slog.Logger) model {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := svc.Config()

	feed := newFeed(svc.IsBookmarked)
	feed.focused = true

	return model{
		svc:        svc,
		tracker:    app.NewTracker(),
		logger:     logger.With("component", "tui"),
		sidebar:    newSidebar(cfg.Archive.BaseURL, cfg.UI.DefaultList),
		feed:       feed,
		reader:     newReader(),
		composer:   newComposer(),
		search:     newSearch(),
		activePane: paneList,
		statusBar:  newStatusBar(),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadListsCmd(), m.identityCmd()}
	if list := m.svc.Config().UI.DefaultList; list != "" {
		cmds = append(cmds, m.loadFeedCmd(list, 0, false))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	// --- window resize ---
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.width = msg.Width
		m.resizeSubModels()
		return m, nil

	// --- async result messages ---
	case listsLoadedMsg:
		if !m.current(msg.ticket) {
			return m, nil
		}
		m.sidebar.SetLists(msg.lists)
		m.statusBar.setMessage(fmt.Sprintf("Loaded %d lists", len(msg.lists)))
		return m, nil

	case searchResultsMsg:
		if !m.current(msg.ticket) || !m.search.IsActive() {
			return m, nil
		}
		m.search.SetResults(msg.lists)
		m.statusBar.setMessage(fmt.Sprintf("Found %d lists", len(msg.lists)))
		return m, nil

	case feedLoadedMsg:
		if !m.current(msg.ticket) {
			return m, nil
		}
		m.feed.SetFeed(msg.list, msg.page, msg.summaries)
		m.statusBar.setMessage(fmt.Sprintf("Loaded %d patchsets from %s", len(msg.summaries), msg.list))
		return m, nil

	case patchsetLoadedMsg:
		if !m.current(msg.ticket) || !m.reader.IsVisible() {
			return m, nil
		}
		m.reader.ShowPatchset(msg.patchset)
		m.statusBar.setMessage(fmt.Sprintf("%d messages, %d replies", len(msg.patchset.Messages), len(msg.patchset.Replies)))
		return m, nil

	case outcomesMsg:
		if !m.current(msg.ticket) {
			return m, nil
		}
		if ps := m.reader.Patchset(); ps != nil && ps.MessageID == msg.messageID {
			m.reader.ShowOutcomes(msg.label, msg.outcomes)
		}
		m.statusBar.setMessage(summarizeOutcomes(msg.label, msg.outcomes))
		return m, nil

	case bookmarkedMsg:
		state := "Removed bookmark"
		if msg.on {
			state = "Bookmarked"
		}
		m.statusBar.setMessage(fmt.Sprintf("%s: %s", state, msg.summary.Title))
		if m.feed.bookmarks {
			m.feed.SetBookmarks(m.svc.Bookmarks())
		}
		return m, nil

	case identityMsg:
		m.identity = msg.identity
		return m, nil

	case errMsg:
		if msg.ticket != (app.Ticket{}) && !m.current(msg.ticket) {
			return m, nil
		}
		m.search.pending = false
		m.statusBar.setError(fmt.Sprintf("Error: %v", msg.err))
		return m, nil

	// --- sub-model emitted messages ---
	case listSelectedMsg:
		m.search.Close()
		m.sidebar.activeList = msg.list
		m.closeReader()
		m.setFocus(paneList)
		m.statusBar.setMessage(fmt.Sprintf("Loading %s...", msg.list))
		return m, m.loadFeedCmd(msg.list, 0, false)

	case bookmarksSelectedMsg:
		m.tracker.Abandon(scopeFeed)
		m.closeReader()
		m.feed.SetBookmarks(m.svc.Bookmarks())
		m.setFocus(paneList)
		return m, nil

	case pageMsg:
		page := max(m.feed.page+msg.delta, 0)
		m.statusBar.setMessage(fmt.Sprintf("Loading %s page %d...", m.feed.list, page+1))
		return m, m.loadFeedCmd(m.feed.list, page, false)

	case refreshMsg:
		m.statusBar.setMessage(fmt.Sprintf("Refreshing %s...", m.feed.list))
		return m, m.loadFeedCmd(m.feed.list, m.feed.page, true)

	case patchsetSelectedMsg:
		m.reader.Open()
		m.statusBar.readerVisible = true
		m.setFocus(paneReader)
		m.resizeSubModels()
		m.statusBar.setMessage("Loading patchset...")
		return m, m.loadPatchsetCmd(msg.messageID, false)

	case refreshPatchsetMsg:
		m.statusBar.setMessage("Refreshing patchset...")
		return m, m.loadPatchsetCmd(msg.messageID, true)

	case bookmarkToggleMsg:
		return m, m.toggleBookmarkCmd(msg.summary)

	case closeReaderMsg:
		m.closeReader()
		m.setFocus(paneList)
		return m, nil

	case applyRequestMsg:
		m.composer.Apply(msg.patchset, m.svc.Config().DefaultTargets)
		m.statusBar.formVisible = true
		m.resizeComposer()
		return m, nil

	case replyRequestMsg:
		m.composer.Reply(msg.patchset, m.identity, m.svc.Config().Reply.DryRun)
		m.statusBar.formVisible = true
		m.resizeComposer()
		return m, nil

	case applySubmitMsg:
		m.closeComposer()
		m.statusBar.setMessage("Applying...")
		return m, m.applyCmd(msg.patchset, msg.targets)

	case replySubmitMsg:
		m.closeComposer()
		if msg.params.DryRun {
			m.statusBar.setMessage("Composing replies (dry run)...")
		} else {
			m.statusBar.setMessage("Sending replies...")
		}
		return m, m.replyCmd(msg.params)

	case cancelComposeMsg:
		m.closeComposer()
		return m, nil

	case searchQueryMsg:
		m.statusBar.setMessage(fmt.Sprintf("Finding lists: %s", msg.prefix))
		return m, m.searchCmd(msg.prefix)

	case closeSearchMsg:
		m.search.Close()
		m.tracker.Abandon(scopeSearch)
		m.setFocus(paneList)
		return m, nil

	// --- key events ---
	case tea.KeyMsg:
		// Overlays get all key events when visible.
		if m.composer.IsVisible() {
			var cmd tea.Cmd
			m.composer, cmd = m.composer.Update(msg)
			return m, cmd
		}
		if m.search.IsActive() {
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, keys.Search):
			m.search.Open()
			m.resizeSearch()
			return m, nil

		case key.Matches(msg, keys.Bookmarks):
			return m, func() tea.Msg { return bookmarksSelectedMsg{} }

		case key.Matches(msg, keys.Tab):
			if m.reader.IsVisible() {
				if m.activePane == paneList {
					m.setFocus(paneReader)
				} else {
					m.setFocus(paneList)
				}
			} else {
				if m.activePane == paneSidebar {
					m.setFocus(paneList)
				} else {
					m.setFocus(paneSidebar)
				}
			}
			return m, nil
		}

		// Delegate to focused sub-model.
		var cmd tea.Cmd
		switch m.activePane {
		case paneSidebar:
			m.sidebar, cmd = m.sidebar.Update(msg)
		case paneList:
			m.feed, cmd = m.feed.Update(msg)
		case paneReader:
			m.reader, cmd = m.reader.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3 // reserve space for status bar

	sidebarView := sidebarStyle.
		Width(sidebarWidth).
		Height(contentHeight).
		Render(m.sidebar.View())

	var contentView string
	switch {
	case m.composer.IsVisible():
		contentView = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			Render(m.composer.View())

	case m.search.IsActive():
		contentView = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			Render(m.search.View())

	case m.reader.IsVisible():
		// Split view: feed (top third) + reader.
		listHeight := contentHeight / 3
		readerHeight := contentHeight - listHeight

		listView := listStyle.
			Width(contentWidth).
			Height(listHeight).
			Render(m.feed.View())
		readerView := readerStyle.
			Width(contentWidth).
			Height(readerHeight).
			Render(m.reader.View())
		contentView = lipgloss.JoinVertical(lipgloss.Left, listView, readerView)

	default:
		contentView = listStyle.
			Width(contentWidth).
			Height(contentHeight).
			Render(m.feed.View())
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebarView, contentView)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.statusBar.View())
}

// --- focus management ---

func (m *model) setFocus(p pane) {
	m.activePane = p
	m.sidebar.focused = p == paneSidebar
	m.feed.focused = p == paneList
	m.reader.focused = p == paneReader
}

// closeReader hides the reader; a patchset still loading for it is
// dropped when it arrives.
func (m *model) closeReader() {
	m.tracker.Abandon(scopeDetail)
	m.reader.Close()
	m.statusBar.readerVisible = false
	m.resizeSubModels()
}

func (m *model) closeComposer() {
	m.composer.Close()
	m.statusBar.formVisible = false
}

// current reports whether a result still belongs to the newest request of
// its scope.
func (m model) current(tk app.Ticket) bool {
	if m.tracker.Current(tk) {
		return true
	}
	m.logger.Debug("dropped stale result", "scope", tk.Scope, "seq", tk.Seq)
	return false
}

// --- layout helpers ---

func (m model) layoutWidths() (sidebarWidth, contentWidth int) {
	sidebarWidth = max(m.width/5, 20)
	contentWidth = m.width - sidebarWidth - 2
	return
}

func (m *model) resizeSubModels() {
	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	// sidebarStyle: Border(2h + 2v) + Padding(2h + 2v) = 4h, 4v
	m.sidebar.SetSize(sidebarWidth-4, contentHeight-4)

	// listStyle: Border(2h + 2v) + Padding(2h + 0v) = 4h, 2v
	if m.reader.IsVisible() {
		listHeight := contentHeight / 3
		readerHeight := contentHeight - listHeight
		m.feed.SetSize(contentWidth-4, listHeight-2)
		// readerStyle: Border(2h + 2v) + Padding(4h + 2v) = 6h, 4v
		m.reader.SetSize(contentWidth-6, readerHeight-4)
	} else {
		m.feed.SetSize(contentWidth-4, contentHeight-2)
	}

	m.resizeComposer()
	m.resizeSearch()
}

func (m *model) resizeComposer() {
	_, contentWidth := m.layoutWidths()
	m.composer.SetSize(contentWidth, m.height-3)
}

func (m *model) resizeSearch() {
	_, contentWidth := m.layoutWidths()
	m.search.SetSize(contentWidth, m.height-3)
}

// --- async commands ---

func (m model) loadListsCmd() tea.Cmd {
	tk := m.tracker.Issue(scopeLists)
	return func() tea.Msg {
		lists, err := m.svc.Lists(context.Background(), "")
		if err != nil {
			return errMsg{ticket: tk, err: fmt.Errorf("failed to load lists: %w", err)}
		}
		return listsLoadedMsg{ticket: tk, lists: lists}
	}
}

func (m model) searchCmd(prefix string) tea.Cmd {
	tk := m.tracker.Issue(scopeSearch)
	return func() tea.Msg {
		lists, err := m.svc.Lists(context.Background(), prefix)
		if err != nil {
			return errMsg{ticket: tk, err: fmt.Errorf("failed to find lists: %w", err)}
		}
		return searchResultsMsg{ticket: tk, lists: lists}
	}
}

func (m model) loadFeedCmd(list string, page int, refresh bool) tea.Cmd {
	tk := m.tracker.Issue(scopeFeed)
	return func() tea.Msg {
		sums, err := m.svc.Feed(context.Background(), list, page, refresh)
		if err != nil {
			return errMsg{ticket: tk, err: fmt.Errorf("failed to load %s: %w", list, err)}
		}
		return feedLoadedMsg{ticket: tk, list: list, page: page, summaries: sums}
	}
}

func (m model) loadPatchsetCmd(messageID string, refresh bool) tea.Cmd {
	tk := m.tracker.Issue(scopeDetail)
	return func() tea.Msg {
		ps, err := m.svc.Patchset(context.Background(), messageID, refresh)
		if err != nil {
			return errMsg{ticket: tk, err: fmt.Errorf("failed to load patchset: %w", err)}
		}
		return patchsetLoadedMsg{ticket: tk, patchset: ps}
	}
}

func (m model) toggleBookmarkCmd(sum domain.PatchsetSummary) tea.Cmd {
	return func() tea.Msg {
		on, err := m.svc.ToggleBookmark(sum)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to update bookmarks: %w", err)}
		}
		return bookmarkedMsg{summary: sum, on: on}
	}
}

func (m model) applyCmd(ps *domain.Patchset, targets []string) tea.Cmd {
	tk := m.tracker.Issue(scopeAction)
	return func() tea.Msg {
		outcomes := m.svc.Apply(context.Background(), ps, targets)
		return outcomesMsg{ticket: tk, label: "Apply", messageID: ps.MessageID, outcomes: outcomes}
	}
}

func (m model) replyCmd(params app.ReplyParams) tea.Cmd {
	tk := m.tracker.Issue(scopeAction)
	label := "Reply"
	if params.DryRun {
		label = "Reply (dry run)"
	}
	return func() tea.Msg {
		outcomes, err := m.svc.Reply(context.Background(), params)
		if err != nil {
			return errMsg{ticket: tk, err: fmt.Errorf("failed to reply: %w", err)}
		}
		return outcomesMsg{ticket: tk, label: label, messageID: params.Patchset.MessageID, outcomes: outcomes}
	}
}

func (m model) identityCmd() tea.Cmd {
	return func() tea.Msg {
		id, err := m.svc.Identity(context.Background())
		if err != nil {
			m.logger.Warn("no replier identity", "error", err)
			return nil
		}
		return identityMsg{identity: id}
	}
}

// summarizeOutcomes counts outcomes per kind for the status bar.
func summarizeOutcomes(label string, outcomes []domain.ActionOutcome) string {
	var ok, skipped, failed int
	for _, o := range outcomes {
		switch o.Kind {
		case domain.OutcomeSkipped:
			skipped++
		case domain.OutcomeFailed:
			failed++
		default:
			ok++
		}
	}
	return fmt.Sprintf("%s: %d done, %d skipped, %d failed", label, ok, skipped, failed)
}

// Run starts the Bubble Tea interface on svc.
func Run(svc *app.Service, logger *slog.Logger) error {
	prog := tea.NewProgram(newModel(svc, logger), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
