// Package decode turns raw RFC 5322 message sources into the fields the
// mail cache stores. Decoding never fails: anomalies degrade individual
// fields to defaults so one malformed message cannot abort a bulk sync.
package decode

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Field defaults applied when a value is missing or unparseable.
const (
	DefaultSubject = "(No subject)"
	DefaultSender  = "Unknown"
)

// Message is the decoded form of a raw message.
type Message struct {
	Subject string
	From    string
	HTML    string
	Text    string

	// Date is the header date, the fallback time, or the decode time, in
	// that order of preference.
	Date time.Time

	// Degraded lists the anomalies hit while decoding. Empty for a clean
	// message.
	Degraded []string
}

// IsDegraded reports whether any field fell back to a default because of
// a parse anomaly.
func (m Message) IsDegraded() bool {
	return len(m.Degraded) > 0
}

// Decoder decodes raw message sources.
type Decoder struct {
	now func() time.Time
}

// New returns a Decoder using the wall clock.
func New() *Decoder {
	return &Decoder{now: time.Now}
}

// NewWithClock returns a Decoder whose default date comes from now.
func NewWithClock(now func() time.Time) *Decoder {
	return &Decoder{now: now}
}

// Decode parses raw. fallback is used as the date when the message has no
// usable Date header; pass the zero time to fall back to the current time.
func (d *Decoder) Decode(raw []byte, fallback time.Time) (msg Message) {
	defer func() {
		if r := recover(); r != nil {
			msg.Degraded = append(msg.Degraded, fmt.Sprintf("panic: %v", r))
		}
		d.applyDefaults(&msg, fallback)
	}()

	if len(bytes.TrimSpace(raw)) == 0 {
		msg.Degraded = append(msg.Degraded, "empty source")
		return msg
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		msg.Degraded = append(msg.Degraded, fmt.Sprintf("reading header: %v", err))
		return msg
	}
	defer mr.Close()
	if err != nil {
		// Unknown charsets still yield a usable reader.
		msg.Degraded = append(msg.Degraded, fmt.Sprintf("header: %v", err))
	}

	d.decodeHeader(&mr.Header, &msg)
	d.decodeBody(mr, &msg)
	return msg
}

func (d *Decoder) decodeHeader(h *mail.Header, msg *Message) {
	subject, err := h.Subject()
	if err != nil {
		msg.Degraded = append(msg.Degraded, fmt.Sprintf("subject: %v", err))
		subject = h.Get("Subject")
	}
	msg.Subject = strings.TrimSpace(subject)

	from, err := h.AddressList("From")
	if err != nil {
		msg.Degraded = append(msg.Degraded, fmt.Sprintf("from: %v", err))
		msg.From = strings.TrimSpace(h.Get("From"))
	} else {
		msg.From = FormatAddresses(from)
	}

	if h.Has("Date") {
		date, err := h.Date()
		if err != nil {
			msg.Degraded = append(msg.Degraded, fmt.Sprintf("date: %v", err))
		} else {
			msg.Date = date
		}
	}
}

// decodeBody keeps the first text/plain and first text/html inline parts.
// A part that fails mid-read is dropped and the walk stops.
func (d *Decoder) decodeBody(mr *mail.Reader, msg *Message) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			msg.Degraded = append(msg.Degraded, fmt.Sprintf("next part: %v", err))
			return
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := h.ContentType()
		if err != nil {
			contentType = "text/plain"
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			msg.Degraded = append(msg.Degraded, fmt.Sprintf("reading %s part: %v", contentType, err))
			return
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && msg.Text == "":
			msg.Text = string(body)
		case strings.HasPrefix(contentType, "text/html") && msg.HTML == "":
			msg.HTML = string(body)
		}
	}
}

func (d *Decoder) applyDefaults(msg *Message, fallback time.Time) {
	if msg.Subject == "" {
		msg.Subject = DefaultSubject
	}
	if msg.From == "" {
		msg.From = DefaultSender
	}
	if msg.Date.IsZero() {
		if !fallback.IsZero() {
			msg.Date = fallback
		} else {
			msg.Date = d.now()
		}
	}
}

// FormatAddresses renders an address list as a display string, e.g.
// `Jane Doe <jane@example.com>, bob@example.com`.
func FormatAddresses(list []*mail.Address) string {
	parts := make([]string, 0, len(list))
	for _, addr := range list {
		if addr == nil {
			continue
		}
		if addr.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", addr.Name, addr.Address))
		} else {
			parts = append(parts, addr.Address)
		}
	}
	return strings.Join(parts, ", ")
}
