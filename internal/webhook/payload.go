package webhook

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"relaymail/internal/domain"
	"relaymail/internal/mailparse"
)

// Form field names of the provider's inbound route.
const (
	FieldTimestamp = "timestamp"
	FieldToken     = "token"
	FieldSignature = "signature"

	FieldSender    = "sender"
	FieldRecipient = "recipient"
	FieldSubject   = "subject"
	FieldBodyPlain = "body-plain"
	FieldBodyHTML  = "body-html"
	FieldBodyMIME  = "body-mime"
	FieldMessageID = "Message-Id"
	FieldInReplyTo = "In-Reply-To"

	FieldEvent           = "event"
	FieldEventMessageID  = "message-id"
	maxMultipartInMemory = 10 << 20
)

// ParseForm reads an urlencoded or multipart form body.
func ParseForm(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/") {
		return r.ParseMultipartForm(maxMultipartInMemory)
	}
	return r.ParseForm()
}

// Inbound decodes the inbound route payload. When the provider includes the
// raw message, it is parsed and the form fields only fill what the message
// lacks.
func Inbound(r *http.Request, opts mailparse.Options) (*domain.InboundEmail, error) {
	in := &domain.InboundEmail{
		Sender:    r.FormValue(FieldSender),
		Recipient: r.FormValue(FieldRecipient),
		Subject:   r.FormValue(FieldSubject),
		Text:      r.FormValue(FieldBodyPlain),
		HTML:      r.FormValue(FieldBodyHTML),
		MessageID: r.FormValue(FieldMessageID),
		InReplyTo: r.FormValue(FieldInReplyTo),
	}

	if raw := r.FormValue(FieldBodyMIME); raw != "" {
		parsed, err := mailparse.Parse(strings.NewReader(raw), opts)
		if err != nil && !errors.Is(err, mailparse.ErrNoRecipient) {
			return nil, fmt.Errorf("%w: body-mime: %v", domain.ErrValidation, err)
		}
		if parsed != nil {
			merge(in, parsed)
		}
	}

	if in.Sender == "" || in.Recipient == "" {
		return nil, fmt.Errorf("%w: sender and recipient are required", domain.ErrValidation)
	}
	return in, nil
}

func merge(dst, src *domain.InboundEmail) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.Sender, src.Sender)
	fill(&dst.Recipient, src.Recipient)
	fill(&dst.Subject, src.Subject)
	fill(&dst.Text, src.Text)
	fill(&dst.HTML, src.HTML)
	fill(&dst.MessageID, src.MessageID)
	fill(&dst.InReplyTo, src.InReplyTo)
}

// Event is a provider delivery notification.
type Event struct {
	Status            domain.Status
	ProviderMessageID string
}

var eventStatus = map[string]domain.Status{
	"delivered": domain.StatusDelivered,
	"opened":    domain.StatusRead,
	"failed":    domain.StatusFailed,
	"bounced":   domain.StatusBounced,
}

// DeliveryEvent decodes the events route payload.
func DeliveryEvent(r *http.Request) (*Event, error) {
	name := strings.ToLower(strings.TrimSpace(r.FormValue(FieldEvent)))
	status, ok := eventStatus[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrValidation, name)
	}
	id := mailparse.NormalizeMessageID(r.FormValue(FieldEventMessageID))
	if id == "" {
		return nil, fmt.Errorf("%w: message-id is required", domain.ErrValidation)
	}
	return &Event{Status: status, ProviderMessageID: id}, nil
}
