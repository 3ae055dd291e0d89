package headhunter

import (
	"fmt"
	"strings"
)

// ResumePayload is the resume embedded in a negotiation item.
// Only the fields consumed by the pipeline are typed; the full item is kept raw.
type ResumePayload struct {
	ID         string         `json:"id" validate:"notblank"`
	Title      string         `json:"title" validate:"notblank"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	MiddleName string         `json:"middle_name"`
	Age        *int           `json:"age"`
	Area       *Named         `json:"area"`
	Contact    []ContactEntry `json:"contact"`
	Experience []Experience   `json:"experience"`
	SkillSet   []string       `json:"skill_set"`
}

type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Experience is a single work history entry. The API lists the most recent first.
type Experience struct {
	Company  string `json:"company"`
	Position string `json:"position"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// ContactKind is the resolved variant of a contact entry.
type ContactKind string

const (
	ContactEmail   ContactKind = "email"
	ContactPhone   ContactKind = "phone"
	ContactUnknown ContactKind = "unknown"
)

// ContactEntry is a raw contact as returned by the API. Value is either a
// string (email) or an object (phone); use Resolve to get the typed variant.
type ContactEntry struct {
	Type      Named `json:"type"`
	Preferred bool  `json:"preferred"`
	Value     any   `json:"value"`
}

// Contact is the typed form of ContactEntry.
type Contact struct {
	Kind      ContactKind
	Value     string
	Preferred bool
}

// Resolve converts the loosely typed entry into a Contact.
func (e ContactEntry) Resolve() (Contact, error) {
	contact := Contact{Preferred: e.Preferred}

	switch e.Type.ID {
	case "email":
		contact.Kind = ContactEmail
		value, ok := e.Value.(string)
		if !ok {
			return contact, fmt.Errorf("email contact has %T value", e.Value)
		}
		contact.Value = strings.TrimSpace(value)
	case "cell", "home", "work":
		contact.Kind = ContactPhone
		switch value := e.Value.(type) {
		case string:
			contact.Value = strings.TrimSpace(value)
		case map[string]any:
			contact.Value = formatPhone(value)
		default:
			return contact, fmt.Errorf("phone contact has %T value", e.Value)
		}
	default:
		contact.Kind = ContactUnknown
		if value, ok := e.Value.(string); ok {
			contact.Value = strings.TrimSpace(value)
		}
	}

	return contact, nil
}

func formatPhone(value map[string]any) string {
	if formatted, ok := value["formatted"].(string); ok && strings.TrimSpace(formatted) != "" {
		return strings.TrimSpace(formatted)
	}

	var b strings.Builder
	for _, key := range []string{"country", "city", "number"} {
		if part, ok := value[key].(string); ok {
			b.WriteString(strings.TrimSpace(part))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}

// Contacts resolves every contact entry, skipping the ones with unexpected shapes.
func (r *ResumePayload) Contacts() []Contact {
	contacts := make([]Contact, 0, len(r.Contact))
	for _, entry := range r.Contact {
		contact, err := entry.Resolve()
		if err != nil || contact.Value == "" {
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts
}

// PrimaryContact returns the preferred contact or, failing that, the first one.
func (r *ResumePayload) PrimaryContact() (Contact, bool) {
	contacts := r.Contacts()
	if len(contacts) == 0 {
		return Contact{}, false
	}
	for _, contact := range contacts {
		if contact.Preferred {
			return contact, true
		}
	}
	return contacts[0], true
}

// FirstOf returns the first contact of the given kind.
func (r *ResumePayload) FirstOf(kind ContactKind) string {
	for _, contact := range r.Contacts() {
		if contact.Kind == kind {
			return contact.Value
		}
	}
	return ""
}
