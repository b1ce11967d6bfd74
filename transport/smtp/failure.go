package smtp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"syscall"

	"github.com/emersion/go-smtp"

	"github.com/C0nstantin/mailrelay/errors"
)

// Kind is the outcome of a relay attempt.
type Kind int

const (
	Success Kind = iota
	FailureAuthentication
	FailureTransport
	FailureUnexpected
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "sent"
	case FailureAuthentication:
		return "authentication"
	case FailureTransport:
		return "transport"
	default:
		return "unexpected"
	}
}

// Result is what Send returns instead of an error.
type Result struct {
	Kind Kind
	Err  error
}

func (r Result) OK() bool { return r.Kind == Success }

// authError marks failures raised by the AUTH exchange.
type authError struct{ err error }

func (e *authError) Error() string { return "smtp auth: " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

// dialError marks failures raised before the session is ready: connect,
// greeting, TLS handshake and STARTTLS.
type dialError struct{ err error }

func (e *dialError) Error() string { return e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// authCodes are authentication failures wherever they appear. 454 is not
// here: outside AUTH it means "TLS not available".
var authCodes = map[int]bool{
	530: true, // authentication required
	534: true, // mechanism too weak
	535: true, // credentials invalid
	538: true, // encryption required
}

// Classify maps an error from dial, auth or submission to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return Success
	}
	var de *dialError
	if errors.As(err, &de) {
		return FailureTransport
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		var ae *authError
		if authCodes[smtpErr.Code] || errors.As(err, &ae) {
			return FailureAuthentication
		}
		return FailureTransport
	}
	if isNetwork(err) {
		return FailureTransport
	}
	var ae *authError
	if errors.As(err, &ae) {
		return FailureAuthentication
	}
	return FailureUnexpected
}

func isNetwork(err error) bool {
	var (
		netErr     net.Error
		recordErr  tls.RecordHeaderError
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		errno      syscall.Errno
	)
	switch {
	case errors.As(err, &netErr),
		errors.As(err, &recordErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr),
		errors.As(err, &errno),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}
