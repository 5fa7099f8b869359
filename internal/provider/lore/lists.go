package lore

import (
	"errors"
	"html"
	"regexp"
	"slices"
	"strings"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

var (
	preBlockRE    = regexp.MustCompile(`(?s)<pre>(.*?)</pre>`)
	listNameRE    = regexp.MustCompile(`(?s)<a\s*href=".*?">(.*?)</a>`)
	listDescribRE = regexp.MustCompile(`(?s)</a>\s*(.*?)\s*\*`)
)

// listIndexBlock is the position of the <pre> block holding list rows on
// the archive's index page; the earlier blocks hold navigation.
const listIndexBlock = 2

// ParseListIndex extracts the mailing lists from one index page. A page
// past the end of the index has no list block and yields no lists.
func ParseListIndex(data []byte) ([]domain.MailingList, error) {
	blocks := preBlockRE.FindAllSubmatch(data, -1)
	if len(blocks) == 0 {
		return nil, &ProtocolError{Op: "list index", Err: errors.New("no <pre> block in index page")}
	}
	if len(blocks) <= listIndexBlock {
		return nil, nil
	}
	block := blocks[listIndexBlock][1]

	names := listNameRE.FindAllSubmatch(block, -1)
	descs := listDescribRE.FindAllSubmatch(block, -1)

	lists := make([]domain.MailingList, 0, len(names))
	for i, m := range names {
		name := strings.TrimSpace(html.UnescapeString(string(m[1])))
		if name == "" || name == "all" {
			continue
		}
		var desc string
		if i < len(descs) {
			desc = strings.TrimSpace(html.UnescapeString(string(descs[i][1])))
		}
		lists = append(lists, domain.MailingList{ID: domain.NewMailingListID(name), Description: desc})
	}
	return lists, nil
}

// FilterLists sorts lists by name and keeps those whose name starts with
// prefix, case-insensitively. An empty prefix keeps the first limit lists.
func FilterLists(lists []domain.MailingList, prefix string, limit int) []domain.MailingList {
	sorted := slices.Clone(lists)
	slices.SortFunc(sorted, func(a, b domain.MailingList) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	sorted = slices.CompactFunc(sorted, func(a, b domain.MailingList) bool { return a.ID == b.ID })

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		if limit > 0 && len(sorted) > limit {
			sorted = sorted[:limit]
		}
		return sorted
	}

	out := sorted[:0]
	for _, l := range sorted {
		if strings.HasPrefix(strings.ToLower(l.ID.String()), prefix) {
			out = append(out, l)
		}
	}
	return out
}
