package mailparse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"relaymail/internal/domain"
)

var (
	ErrTooLarge    = errors.New("message exceeds size limit")
	ErrNoRecipient = errors.New("no relay recipient in headers")
)

// Options controls Parse.
type Options struct {
	// RelayDomain picks the recipient among Delivered-To, X-Original-To,
	// Envelope-To and To. Empty accepts the first address found.
	RelayDomain string
	// MaxBytes caps the raw message size; zero means no cap.
	MaxBytes int64
}

// Parse reads an RFC 5322 message into an InboundEmail, taking the first
// text/plain and text/html parts as bodies.
func Parse(r io.Reader, opts Options) (*domain.InboundEmail, error) {
	if opts.MaxBytes > 0 {
		r = io.LimitReader(r, opts.MaxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	if opts.MaxBytes > 0 && int64(len(raw)) > opts.MaxBytes {
		return nil, ErrTooLarge
	}

	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("creating mail reader: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	in := &domain.InboundEmail{}

	in.Recipient = extractRecipient(h, opts.RelayDomain)
	if in.Recipient == "" {
		return nil, ErrNoRecipient
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		in.Sender = NormalizeAddress(from[0].Address)
	}
	if subject, err := h.Subject(); err == nil {
		in.Subject = subject
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		in.MessageID = "<" + id + ">"
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		in.InReplyTo = "<" + ids[0] + ">"
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		t, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch {
		case (t == "text/plain" || t == "") && in.Text == "":
			in.Text = string(b)
		case t == "text/html" && in.HTML == "":
			in.HTML = string(b)
		}
	}

	return in, nil
}

func extractRecipient(h mail.Header, relayDomain string) string {
	for _, key := range []string{"Delivered-To", "X-Original-To", "Envelope-To"} {
		if val := h.Get(key); val != "" && inDomain(val, relayDomain) {
			return NormalizeAddress(val)
		}
	}

	for _, key := range []string{"To", "Cc"} {
		list, _ := h.AddressList(key)
		for _, addr := range list {
			if inDomain(addr.Address, relayDomain) {
				return NormalizeAddress(addr.Address)
			}
		}
	}
	return ""
}

func inDomain(email, relayDomain string) bool {
	parts := strings.Split(NormalizeAddress(email), "@")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	return relayDomain == "" || parts[1] == strings.ToLower(relayDomain)
}

// NormalizeAddress turns `"Name" <Addr@Host>` or a bare address into a
// lowercase addr-spec. Unparseable input is only trimmed and lowercased.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if a, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(strings.Trim(s, "<> "))
}

// NormalizeMessageID wraps a bare id in angle brackets so ids from headers
// and provider payloads compare equal.
func NormalizeMessageID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "<"); i >= 0 {
		if j := strings.Index(s[i:], ">"); j > 0 {
			return s[i : i+j+1]
		}
	}
	return "<" + strings.Trim(s, "<>\"") + ">"
}
