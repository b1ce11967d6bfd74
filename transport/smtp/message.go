package smtp

import (
	"bytes"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/C0nstantin/mailrelay/errors"
)

// Message is the envelope and body of one relayed mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// Bytes renders m as a single part text/plain; charset=utf-8 message.
func (m Message) Bytes() ([]byte, error) {
	var h mail.Header
	h.SetDate(m.Date)
	h.SetAddressList("From", []*mail.Address{{Address: m.From}})
	h.SetAddressList("To", []*mail.Address{{Address: m.To}})
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, errors.Er(err, "generate message id")
	}
	h.Set("MIME-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, errors.Er(err, "create message writer")
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return nil, errors.Er(err, "write message body")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Er(err, "close message writer")
	}
	return buf.Bytes(), nil
}
