package mail

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Rewrite clones raw with its From, To and Bcc headers replaced. The body
// is copied byte for byte. Input without a parseable header block is
// treated as a bare body.
func Rewrite(raw []byte, r Recipients) ([]byte, error) {
	if r.From == nil {
		return nil, fmt.Errorf("rewrite: sender is required")
	}

	br := bufio.NewReader(bytes.NewReader(raw))
	var body io.Reader = br
	th, err := textproto.ReadHeader(br)
	if err != nil {
		th = textproto.Header{}
		body = bytes.NewReader(raw)
	}

	h := gomail.Header{Header: message.Header{Header: th}}
	h.SetAddressList("From", []*gomail.Address{r.From})
	h.SetAddressList("To", r.To)
	h.SetAddressList("Bcc", r.Bcc)

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h.Header.Header); err != nil {
		return nil, fmt.Errorf("rewrite: writing header: %w", err)
	}
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("rewrite: copying body: %w", err)
	}
	return buf.Bytes(), nil
}

// Compose builds a single-part text/plain message. No Date header is set;
// the provider stamps it on submission.
func Compose(r Recipients, subject, body string) ([]byte, error) {
	if r.From == nil {
		return nil, fmt.Errorf("compose: sender is required")
	}

	var h gomail.Header
	h.SetAddressList("From", []*gomail.Address{r.From})
	h.SetAddressList("To", r.To)
	h.SetAddressList("Bcc", r.Bcc)
	h.SetSubject(subject)
	h.Set("Mime-Version", "1.0")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("compose: generating message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("compose: creating writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("compose: writing body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compose: closing writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseAddress parses a single address and attaches a display name when
// one is given.
func ParseAddress(address, name string) (*gomail.Address, error) {
	addr, err := gomail.ParseAddress(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("invalid email address %q: %w", address, err)
	}
	if name != "" {
		addr.Name = name
	}
	return addr, nil
}

// ParseAddressList parses a comma-delimited address list. An empty string
// yields an empty list.
func ParseAddressList(list string) ([]*gomail.Address, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	addrs, err := gomail.ParseAddressList(list)
	if err != nil {
		return nil, fmt.Errorf("invalid email address list %q: %w", list, err)
	}
	return addrs, nil
}

// envelope collects the sender and every To, Cc and Bcc recipient of raw
// and returns the message with its Bcc header removed, ready for SMTP.
func envelope(raw []byte) (from string, rcpt []string, data []byte, err error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	th, err := textproto.ReadHeader(br)
	if err != nil {
		return "", nil, nil, fmt.Errorf("reading header: %w", err)
	}
	h := gomail.Header{Header: message.Header{Header: th}}

	senders, err := h.AddressList("From")
	if err != nil || len(senders) == 0 {
		return "", nil, nil, fmt.Errorf("message has no usable From header")
	}
	for _, key := range []string{"To", "Cc", "Bcc"} {
		addrs, err := h.AddressList(key)
		if err != nil {
			return "", nil, nil, fmt.Errorf("parsing %s header: %w", key, err)
		}
		for _, a := range addrs {
			rcpt = append(rcpt, a.Address)
		}
	}
	if len(rcpt) == 0 {
		return "", nil, nil, fmt.Errorf("message has no recipients")
	}
	h.Del("Bcc")

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h.Header.Header); err != nil {
		return "", nil, nil, err
	}
	if _, err := io.Copy(&buf, br); err != nil {
		return "", nil, nil, err
	}
	return senders[0].Address, rcpt, buf.Bytes(), nil
}

// receivedAt converts a Gmail internalDate (epoch milliseconds).
func receivedAt(internalDate int64) time.Time {
	return time.UnixMilli(internalDate)
}

// messageID returns the Message-Id of raw without angle brackets, or ""
// when the header is absent or unreadable.
func messageID(raw []byte) string {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return ""
	}
	h := gomail.Header{Header: message.Header{Header: th}}
	id, err := h.MessageID()
	if err != nil {
		return ""
	}
	return id
}
