package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// TagKind is a recognized reviewer trailer keyword.
type TagKind string

const (
	TagReviewedBy TagKind = "Reviewed-by"
	TagAckedBy    TagKind = "Acked-by"
	TagTestedBy   TagKind = "Tested-by"
)

// TagKinds lists the recognized kinds in display order.
var TagKinds = []TagKind{TagReviewedBy, TagAckedBy, TagTestedBy}

// ParseTagKind matches s exactly against the recognized keywords.
func ParseTagKind(s string) (TagKind, error) {
	for _, k := range TagKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown tag kind %q (want Reviewed-by, Acked-by or Tested-by)", s)
}

// Trailer is a (kind, identity) pair found on a trailer line.
type Trailer struct {
	Kind     TagKind
	Identity string
}

func (t Trailer) String() string {
	return string(t.Kind) + ": " + t.Identity
}

var trailerRE = regexp.MustCompile(`^(Reviewed-by|Acked-by|Tested-by):\s*(.+)$`)

// ParseTrailers scans body line by line and returns every trailer in the
// order it appears. Quoted lines ("> Reviewed-by: ...") never match.
func ParseTrailers(body string) []Trailer {
	var out []Trailer
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		m := trailerRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		identity := strings.TrimSpace(m[2])
		if identity == "" {
			continue
		}
		out = append(out, Trailer{Kind: TagKind(m[1]), Identity: identity})
	}
	return out
}
