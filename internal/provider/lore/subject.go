package lore

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bracketRE = regexp.MustCompile(`^\s*\[([^\]]*)\]\s*(.*)$`)
	versionRE = regexp.MustCompile(`^[vV](\d+)$`)
	numberRE  = regexp.MustCompile(`^(\d+)/(\d+)$`)
	replyRE   = regexp.MustCompile(`(?i)^\s*(re|aw|fwd?)\s*:`)
)

// subject is the series metadata carried in a patch mail subject such as
// "[PATCH net-next v3 02/10] net: fix foo".
type subject struct {
	Title   string
	Version int
	Number  int
	Total   int
	RFC     bool
	// Patch is false for replies and for subjects without a PATCH or RFC tag.
	Patch bool
}

func parseSubject(s string) subject {
	s = strings.TrimSpace(s)
	out := subject{Title: s, Version: 1, Number: 1, Total: 1}
	if replyRE.MatchString(s) {
		out.Number = -1
		return out
	}
	m := bracketRE.FindStringSubmatch(s)
	if m == nil {
		return out
	}
	for _, tok := range strings.Fields(m[1]) {
		upper := strings.ToUpper(tok)
		switch {
		case upper == "PATCH" || strings.HasSuffix(upper, "PATCH"):
			out.Patch = true
		case upper == "RFC":
			out.RFC = true
			out.Patch = true
		case versionRE.MatchString(tok):
			out.Version, _ = strconv.Atoi(versionRE.FindStringSubmatch(tok)[1])
		case numberRE.MatchString(tok):
			nm := numberRE.FindStringSubmatch(tok)
			out.Number, _ = strconv.Atoi(nm[1])
			out.Total, _ = strconv.Atoi(nm[2])
		}
	}
	if out.Version < 1 {
		out.Version = 1
	}
	if out.Patch {
		out.Title = strings.TrimSpace(m[2])
	}
	return out
}
