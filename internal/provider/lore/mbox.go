package lore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

var (
	mboxEscapedFromRE = regexp.MustCompile(`^>+From `)
	angleIDRE         = regexp.MustCompile(`<([^<>\s]+)>`)
	wordDecoder       = new(mime.WordDecoder)
)

// SplitMbox splits an mboxrd stream into raw messages. "From " lines
// separate messages and are dropped; ">From " quoting is undone.
func SplitMbox(data []byte) [][]byte {
	var (
		out [][]byte
		cur bytes.Buffer
		in  bool
	)
	flush := func() {
		if in && cur.Len() > 0 {
			out = append(out, bytes.Clone(cur.Bytes()))
		}
		cur.Reset()
	}
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("From ")) {
			flush()
			in = true
			continue
		}
		if !in {
			// Stream without separators holds a single message.
			in = true
		}
		if mboxEscapedFromRE.Match(line) {
			line = line[1:]
		}
		cur.Write(line)
	}
	flush()
	return out
}

// ParseMessage parses one raw mail into a domain message. Number is left
// at -1; series membership is decided by ParseThread.
func ParseMessage(raw []byte) (domain.Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to read message: %w", err)
	}
	h := msg.Header

	id := firstAngleID(h.Get("Message-Id"))
	if id == "" {
		return domain.Message{}, errors.New("message has no Message-Id")
	}

	body, err := readBody(h.Get("Content-Type"), h.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to read body of %s: %w", id, err)
	}

	m := domain.Message{
		MessageID:  id,
		InReplyTo:  firstAngleID(h.Get("In-Reply-To")),
		References: allAngleIDs(h.Get("References")),
		Subject:    decodeHeader(h.Get("Subject")),
		From:       parseAddress(decodeHeader(h.Get("From"))),
		To:         parseAddressList(decodeHeader(h.Get("To"))),
		CC:         parseAddressList(decodeHeader(h.Get("Cc"))),
		Date:       parseDate(h.Get("Date")),
		Number:     -1,
		Body:       body,
		Raw:        raw,
		Trailers:   domain.ParseTrailers(body),
	}
	if m.InReplyTo == "" && len(m.References) > 0 {
		m.InReplyTo = m.References[len(m.References)-1]
	}
	return m, nil
}

// ParseThread parses an mboxrd thread and assembles the patchset whose
// representative mail is rootID. Messages that cannot be parsed or lack a
// Message-Id are dropped.
func ParseThread(data []byte, rootID string) (*domain.Patchset, error) {
	rootID = trimMessageID(rootID)

	var (
		msgs   []domain.Message
		listID string
	)
	seen := make(map[string]bool)
	for _, raw := range SplitMbox(data) {
		m, err := ParseMessage(raw)
		if err != nil || seen[m.MessageID] {
			continue
		}
		seen[m.MessageID] = true
		if m.MessageID == rootID {
			listID = listFromHeader(raw)
		}
		msgs = append(msgs, m)
	}

	var root *domain.Message
	for i := range msgs {
		if msgs[i].MessageID == rootID {
			root = &msgs[i]
			break
		}
	}
	if root == nil {
		return nil, &ProtocolError{Op: "thread", Err: fmt.Errorf("message %s not found in thread", rootID)}
	}

	rs := parseSubject(root.Subject)
	ps := &domain.Patchset{
		MessageID: root.MessageID,
		Title:     rs.Title,
		Version:   rs.Version,
		Total:     rs.Total,
		Author:    root.From,
		List:      domain.NewMailingListID(listID),
	}

	rootNumber := rs.Number
	if rootNumber < 0 {
		rootNumber = 1
	}
	taken := map[int]bool{rootNumber: true}
	for _, m := range msgs {
		if m.Date.After(ps.Updated) {
			ps.Updated = m.Date
		}
		if m.MessageID == root.MessageID {
			m.Number = rootNumber
			ps.Messages = append(ps.Messages, m)
			continue
		}
		s := parseSubject(m.Subject)
		inSeries := rs.Patch && s.Patch && s.Version == rs.Version && s.Total == rs.Total &&
			s.Number >= 0 && s.Number <= rs.Total && !taken[s.Number] &&
			m.From.Email == root.From.Email
		if !inSeries {
			ps.Replies = append(ps.Replies, m)
			continue
		}
		m.Number = s.Number
		taken[m.Number] = true
		ps.Messages = append(ps.Messages, m)
	}
	ps.Messages = orderSeries(ps.Messages)
	return ps, nil
}

// orderSeries sorts the cover letter first and patches by number.
func orderSeries(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Number == 0 {
			out = append(out, m)
		}
	}
	ps := domain.Patchset{Messages: msgs}
	return append(out, ps.Patches()...)
}

func readBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		return readMultipart(multipart.NewReader(r, params["boundary"]))
	}
	b, err := io.ReadAll(decodeTransfer(encoding, r))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readMultipart returns the first text/plain part, recursing into nested
// multiparts.
func readMultipart(mr *multipart.Reader) (string, error) {
	for {
		part, err := mr.NextRawPart()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		ct := part.Header.Get("Content-Type")
		if ct == "" {
			ct = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(ct)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			if text, err := readMultipart(multipart.NewReader(part, params["boundary"])); err == nil && text != "" {
				return text, nil
			}
		case mediaType == "text/plain":
			b, err := io.ReadAll(decodeTransfer(part.Header.Get("Content-Transfer-Encoding"), part))
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	default:
		return r
	}
}

// newlineStripper drops CR and LF so base64 bodies wrapped at 76 columns
// decode with the standard decoder.
type newlineStripper struct{ r io.Reader }

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		w := 0
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' {
				p[w] = b
				w++
			}
		}
		if w > 0 || err != nil {
			return w, err
		}
	}
}

func decodeHeader(s string) string {
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}

func firstAngleID(s string) string {
	if m := angleIDRE.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return trimMessageID(f[0])
}

func allAngleIDs(s string) []string {
	var out []string
	for _, m := range angleIDRE.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

// listFromHeader maps a List-Id such as "<netdev.vger.kernel.org>" to the
// archive's list name.
func listFromHeader(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	id := firstAngleID(msg.Header.Get("List-Id"))
	name, _, _ := strings.Cut(id, ".")
	return name
}

// parseAddress parses an RFC 5322 address string into a domain Address.
// Falls back to treating the entire string as a bare email if parsing fails.
func parseAddress(s string) domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Address{}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return domain.Address{Email: s}
	}
	return domain.Address{Name: addr.Name, Email: addr.Address}
}

// parseAddressList parses a comma-separated list of RFC 5322 addresses.
func parseAddressList(s string) []domain.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(s)
	if err != nil {
		var addrs []domain.Address
		for _, p := range strings.Split(s, ",") {
			if a := parseAddress(p); a.Email != "" {
				addrs = append(addrs, a)
			}
		}
		return addrs
	}
	addrs := make([]domain.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, domain.Address{Name: a.Name, Email: a.Address})
	}
	return addrs
}

// parseDate tries net/mail first, then a few formats seen in the wild.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	formats := []string{
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
