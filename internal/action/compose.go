package action

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"github.com/lu-zhengda/loreterm/internal/domain"
)

// ComposeReply builds a reply to msg that quotes it and appends the
// trailer "<tag>: <identity>". The reply carries no Date or Message-Id
// header, so the same inputs always give the same bytes; the mail tool
// adds both when sending.
func ComposeReply(msg *domain.Message, tag domain.TagKind, identity string) ([]byte, error) {
	identity = strings.TrimSpace(identity)
	from, err := mail.ParseAddress(identity)
	if err != nil {
		return nil, fmt.Errorf("invalid replier identity %q: %w", identity, err)
	}
	if msg.MessageID == "" {
		return nil, fmt.Errorf("cannot reply to a message without message-id")
	}

	var b bytes.Buffer
	header := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, value)
		}
	}

	header("From", from.String())
	header("To", formatAddresses([]domain.Address{msg.From}, ""))
	header("Cc", formatAddresses(append(append([]domain.Address{}, msg.To...), msg.CC...), from.Address, msg.From.Email))
	header("Subject", encodeHeader(replySubject(msg.Subject)))
	header("In-Reply-To", "<"+msg.MessageID+">")
	header("References", references(msg))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\n")

	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "On %s, %s wrote:\n", msg.Date.Format("Mon, Jan 2, 2006 at 15:04:05 -0700"), msg.From)
	} else {
		fmt.Fprintf(&b, "%s wrote:\n", msg.From)
	}
	sc := bufio.NewScanner(strings.NewReader(msg.Body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> " + line + "\n")
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to quote %s: %w", msg.MessageID, err)
	}
	fmt.Fprintf(&b, "\n%s\n", domain.Trailer{Kind: tag, Identity: identity})

	out := b.Bytes()
	if err := validateReply(out, msg.MessageID); err != nil {
		return nil, err
	}
	return out, nil
}

// validateReply parses the composed reply back and checks the headers the
// mail tool depends on.
func validateReply(raw []byte, inReplyTo string) error {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("composed reply is not a valid mail: %w", err)
	}
	if _, err := mail.ParseAddress(m.Header.Get("From")); err != nil {
		return fmt.Errorf("composed reply has invalid From: %w", err)
	}
	if _, err := m.Header.AddressList("To"); err != nil {
		return fmt.Errorf("composed reply has invalid To: %w", err)
	}
	if cc := m.Header.Get("Cc"); cc != "" {
		if _, err := m.Header.AddressList("Cc"); err != nil {
			return fmt.Errorf("composed reply has invalid Cc: %w", err)
		}
	}
	if got := m.Header.Get("In-Reply-To"); got != "<"+inReplyTo+">" {
		return fmt.Errorf("composed reply has In-Reply-To %q, want <%s>", got, inReplyTo)
	}
	return nil
}

func replySubject(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.EqualFold(s[:3], "re:") {
		return s
	}
	return "Re: " + s
}

func encodeHeader(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}

// references is the parent's References followed by the parent itself.
func references(msg *domain.Message) string {
	ids := make([]string, 0, len(msg.References)+1)
	for _, r := range msg.References {
		if r != msg.MessageID {
			ids = append(ids, "<"+r+">")
		}
	}
	ids = append(ids, "<"+msg.MessageID+">")
	return strings.Join(ids, " ")
}

// formatAddresses renders addrs as a header value, dropping empty and
// excluded addresses and duplicates.
func formatAddresses(addrs []domain.Address, exclude ...string) string {
	seen := make(map[string]bool)
	for _, e := range exclude {
		if e != "" {
			seen[strings.ToLower(e)] = true
		}
	}
	var parts []string
	for _, a := range addrs {
		key := strings.ToLower(a.Email)
		if a.Email == "" || seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, (&mail.Address{Name: a.Name, Address: a.Email}).String())
	}
	return strings.Join(parts, ", ")
}
