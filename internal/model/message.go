package model

import "time"

// DefaultMailbox is the only folder the engine synchronizes.
const DefaultMailbox = "INBOX"

// CachedMessage is the persisted mirror of one INBOX message for one user.
// At most one CachedMessage exists per (User, UID).
type CachedMessage struct {
	// ID is the internal row identifier.
	ID string `json:"id"`

	// User is the owning application user. Identity only.
	User string `json:"user"`

	// UID is the server-assigned identifier, unique within Mailbox.
	UID uint32 `json:"uid"`

	// Mailbox is the folder path the message was seen in during sync.
	Mailbox string `json:"mailbox"`

	Subject string `json:"subject"`

	// From is the sender display string, e.g. `Jane Doe <jane@example.com>`.
	From string `json:"from"`

	HTML string `json:"html"`
	Text string `json:"text"`

	// Date is the message date, falling back to the server receipt time.
	Date time.Time `json:"date"`

	// Seen is the locally tracked read state.
	Seen bool `json:"seen"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SameContent reports whether m and o carry the same synchronized fields.
// Bookkeeping fields (ID, timestamps) are ignored.
func (m CachedMessage) SameContent(o CachedMessage) bool {
	return m.User == o.User &&
		m.UID == o.UID &&
		m.Mailbox == o.Mailbox &&
		m.Subject == o.Subject &&
		m.From == o.From &&
		m.HTML == o.HTML &&
		m.Text == o.Text &&
		m.Date.Equal(o.Date) &&
		m.Seen == o.Seen
}

// MessageDetail is the body-on-demand view of a single server message.
type MessageDetail struct {
	UID     uint32    `json:"uid"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	HTML    string    `json:"html"`
	Text    string    `json:"text"`
	Date    time.Time `json:"date"`
	Seen    bool      `json:"seen"`
}
