package domain

import (
	"strings"
	"unique"
)

// MailingListID names an archived mailing list. IDs are interned: two IDs
// built from the same name compare equal with ==.
type MailingListID struct {
	h unique.Handle[string]
}

// NewMailingListID interns name. Surrounding whitespace and trailing
// slashes (as found in archive hrefs) are stripped.
func NewMailingListID(name string) MailingListID {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return MailingListID{}
	}
	return MailingListID{h: unique.Make(name)}
}

func (id MailingListID) IsZero() bool {
	return id.h == unique.Handle[string]{}
}

func (id MailingListID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.h.Value()
}

func (id MailingListID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *MailingListID) UnmarshalText(b []byte) error {
	*id = NewMailingListID(string(b))
	return nil
}

// MailingList is an entry of the archive's list index.
type MailingList struct {
	ID          MailingListID
	Description string
}
