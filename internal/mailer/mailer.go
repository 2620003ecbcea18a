// Package mailer is the outbound transport of the relay. Senders only ever
// see relay addresses; the real address appears in the envelope recipient
// and To header of the copy that goes to its owner.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Request is one message to hand to the provider.
type Request struct {
	ToRealEmail      string
	FromDisplayName  string
	FromRelayAddress string
	ToRelayAddress   string
	Subject          string
	Body             string
	HTML             string
	JobTitle         string
	CompanyName      string
	InReplyTo        string
}

// Receipt is what the provider reports for an accepted send.
type Receipt struct {
	ProviderMessageID string
}

// Dispatcher sends one message. A nil error means the provider accepted it.
type Dispatcher interface {
	Send(ctx context.Context, req Request) (Receipt, error)
}

var ErrMissingRecipient = errors.New("mailer: recipient address is required")

// compose renders req as an RFC 5322 message and returns it together with the
// generated Message-Id (without angle brackets).
func compose(req Request, now time.Time) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(req.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: req.FromDisplayName, Address: req.FromRelayAddress}})
	h.SetAddressList("Reply-To", []*mail.Address{{Address: req.FromRelayAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: req.ToRealEmail}})
	if req.InReplyTo != "" {
		h.Set("In-Reply-To", req.InReplyTo)
		h.Set("References", req.InReplyTo)
	}
	if req.JobTitle != "" {
		h.Set("X-Relay-Job", req.JobTitle)
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generating message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if req.HTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.WriteString(w, textBody(req)); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), id, nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, "", err
	}
	for _, part := range []struct{ typ, body string }{
		{"text/plain", textBody(req)},
		{"text/html", req.HTML},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.typ, map[string]string{"charset": "utf-8"})
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			return nil, "", err
		}
		pw.Close()
	}
	tw.Close()
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), id, nil
}

func textBody(req Request) string {
	if req.JobTitle == "" {
		return req.Body
	}
	context := req.JobTitle
	if req.CompanyName != "" {
		context += " at " + req.CompanyName
	}
	return req.Body + "\r\n\r\n--\r\nRegarding: " + context + "\r\n"
}
