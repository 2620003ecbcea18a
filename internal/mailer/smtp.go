package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPDispatcher submits messages to an SMTP relay host.
type SMTPDispatcher struct {
	Host     string
	Port     int
	Username string
	Password string
	// StartTLS requires the server to upgrade the connection; a server that
	// does not offer STARTTLS is an error.
	StartTLS bool
	// TLSConfig overrides the STARTTLS client config. ServerName defaults to
	// Host.
	TLSConfig *tls.Config

	now func() time.Time
}

func NewSMTPDispatcher(host string, port int, username, password string, startTLS bool) *SMTPDispatcher {
	return &SMTPDispatcher{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		StartTLS: startTLS,
		now:      time.Now,
	}
}

var _ Dispatcher = (*SMTPDispatcher)(nil)

// Send delivers req within the context deadline. The generated Message-Id is
// returned as the provider message id.
func (d *SMTPDispatcher) Send(ctx context.Context, req Request) (Receipt, error) {
	if req.ToRealEmail == "" {
		return Receipt{}, ErrMissingRecipient
	}

	raw, id, err := compose(req, d.now())
	if err != nil {
		return Receipt{}, err
	}

	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Receipt{}, fmt.Errorf("dialing %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var c *smtp.Client
	if d.StartTLS {
		// NewClientStartTLS closes conn when the upgrade fails.
		if c, err = smtp.NewClientStartTLS(conn, d.tlsConfig()); err != nil {
			return Receipt{}, fmt.Errorf("starttls: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	defer c.Close()

	if d.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", d.Username, d.Password)); err != nil {
			return Receipt{}, fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.SendMail(req.FromRelayAddress, []string{req.ToRealEmail}, bytes.NewReader(raw)); err != nil {
		return Receipt{}, fmt.Errorf("smtp send: %w", err)
	}
	_ = c.Quit()

	return Receipt{ProviderMessageID: "<" + id + ">"}, nil
}

func (d *SMTPDispatcher) tlsConfig() *tls.Config {
	cfg := &tls.Config{}
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = d.Host
	}
	return cfg
}
