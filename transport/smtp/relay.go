// Package smtp relays plain text messages to a fixed SMTP submission server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
	"github.com/C0nstantin/mailrelay/sanitizer"
)

const (
	DefaultSubject = "Message from Telegram"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	Host     string        `yaml:"host" env:"SMTP_SERVER" env-description:"SMTP submission host"`
	Port     int           `yaml:"port" env:"SMTP_PORT" env-default:"587" env-description:"465 implicit TLS, 587 STARTTLS, anything else plaintext"`
	Username string        `yaml:"email" env:"EMAIL" env-description:"SMTP login, also the sender in direct mode"`
	Password string        `yaml:"password" env:"PASSWORD"`
	Timeout  time.Duration `yaml:"timeout" env:"SMTP_TIMEOUT" env-default:"30s"`
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Security is how the connection to the server is protected.
type Security int

const (
	SecurityNone Security = iota
	SecurityImplicitTLS
	SecurityStartTLS
)

func (s Security) String() string {
	switch s {
	case SecurityImplicitTLS:
		return "tls"
	case SecurityStartTLS:
		return "starttls"
	default:
		return "none"
	}
}

// SecurityForPort picks the mode from the well known submission ports.
func SecurityForPort(port int) Security {
	switch port {
	case 465:
		return SecurityImplicitTLS
	case 587:
		return SecurityStartTLS
	default:
		return SecurityNone
	}
}

// Sender delivers one message; implementations never return an error, only a Result.
type Sender interface {
	Send(ctx context.Context, body, from, to string) Result
}

// client is the part of *smtp.Client a relay needs.
type client interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

type Relay struct {
	cfg       Config
	subject   string
	security  Security
	tlsConfig *tls.Config
	dial      func(ctx context.Context) (client, error)
	now       func() time.Time
	logger    log.Logger
}

func NewRelay(cfg Config, logger log.Logger) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	r := &Relay{
		cfg:       cfg,
		subject:   DefaultSubject,
		security:  SecurityForPort(cfg.Port),
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
		logger:    logger,
	}
	r.dial = r.dialServer
	return r
}

// dialServer connects and, depending on the security mode, wraps the
// connection in TLS or upgrades it with STARTTLS. Every error it returns is
// a dialError.
func (r *Relay) dialServer(ctx context.Context) (client, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	addr := r.cfg.Addr()
	dialer := &net.Dialer{Timeout: r.cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if r.security == SecurityImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: r.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, &dialError{err: errors.Er(err, "dial %s (%s)", addr, r.security)}
	}

	// bounds the greeting and the STARTTLS exchange, later commands use
	// the client's own timeouts
	deadline := time.Now().Add(r.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, &dialError{err: errors.Er(err, "set deadline %s", addr)}
	}

	var c *smtp.Client
	if r.security == SecurityStartTLS {
		c, err = smtp.NewClientStartTLS(conn, r.tlsConfig)
		if err != nil {
			conn.Close()
			return nil, &dialError{err: errors.Er(err, "starttls %s", addr)}
		}
	} else {
		c = smtp.NewClient(conn)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, &dialError{err: errors.Er(err, "clear deadline %s", addr)}
	}
	c.CommandTimeout = r.cfg.Timeout
	c.SubmissionTimeout = r.cfg.Timeout
	return c, nil
}

// Send cleans body, wraps it into a message from -> to and submits it.
func (r *Relay) Send(ctx context.Context, body, from, to string) Result {
	logger := r.logger.WithFields(map[string]interface{}{"from": from, "to": to})

	err := r.send(ctx, Message{
		From:    from,
		To:      to,
		Subject: r.subject,
		Body:    sanitizer.CleanOr(body, sanitizer.EmptyPlaceholder),
		Date:    r.now(),
	})
	kind := Classify(err)
	switch kind {
	case Success:
		logger.Infof("mail sent to %s, subject %q", to, r.subject)
	case FailureAuthentication:
		logger.Errorf("smtp %s failure, check EMAIL and PASSWORD: %s", kind, err)
	default:
		logger.Errorf("smtp %s failure: %s", kind, err)
	}
	return Result{Kind: kind, Err: err}
}

func (r *Relay) send(ctx context.Context, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic while sending: %v", p)
		}
	}()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c, err := r.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", r.cfg.Username, r.cfg.Password)); err != nil {
		return errors.E(&authError{err: err})
	}
	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(data)); err != nil {
		return errors.Er(err, "submit")
	}
	if err := c.Quit(); err != nil {
		r.logger.Debugf("smtp quit: %s", err)
	}
	return nil
}
