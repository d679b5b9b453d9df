package mail

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseHeader(t *testing.T, raw []byte) (gomail.Header, string) {
	t.Helper()
	br := bufio.NewReader(bytes.NewReader(raw))
	th, err := textproto.ReadHeader(br)
	require.NoError(t, err)
	body, err := io.ReadAll(br)
	require.NoError(t, err)
	return gomail.Header{Header: message.Header{Header: th}}, string(body)
}

func addresses(t *testing.T, h gomail.Header, key string) []string {
	t.Helper()
	list, err := h.AddressList(key)
	require.NoError(t, err)
	var out []string
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

func testRecipients(t *testing.T) Recipients {
	t.Helper()
	from, err := ParseAddress("bot@example.com", "Gmailer Bot")
	require.NoError(t, err)
	to, err := ParseAddressList("jim@example.com, Ann <ann@example.com>")
	require.NoError(t, err)
	bcc, err := ParseAddressList("archive@example.com")
	require.NoError(t, err)
	return Recipients{From: from, To: to, Bcc: bcc}
}

func TestRewrite_ReplacesAddressHeaders(t *testing.T) {
	raw := []byte("From: Bob <bob@example.com>\r\n" +
		"To: someone@example.com\r\n" +
		"Subject: Monthly statement\r\n" +
		"\r\n" +
		"Line one\r\nLine two\r\n")

	out, err := Rewrite(raw, testRecipients(t))
	require.NoError(t, err)

	h, body := parseHeader(t, out)
	assert.Equal(t, []string{"bot@example.com"}, addresses(t, h, "From"))
	assert.Equal(t, []string{"jim@example.com", "ann@example.com"}, addresses(t, h, "To"))
	assert.Equal(t, []string{"archive@example.com"}, addresses(t, h, "Bcc"))
	assert.Equal(t, "Monthly statement", h.Get("Subject"))
	assert.Equal(t, "Line one\r\nLine two\r\n", body)

	sender, err := h.AddressList("From")
	require.NoError(t, err)
	assert.Equal(t, "Gmailer Bot", sender[0].Name)
}

func TestRewrite_EmptyBccRemovesHeader(t *testing.T) {
	raw := []byte("From: a@example.com\r\nBcc: leak@example.com\r\n\r\nbody")
	r := testRecipients(t)
	r.Bcc = nil

	out, err := Rewrite(raw, r)
	require.NoError(t, err)

	h, _ := parseHeader(t, out)
	assert.False(t, h.Has("Bcc"))
}

func TestRewrite_BareBody(t *testing.T) {
	out, err := Rewrite([]byte("New email data"), testRecipients(t))
	require.NoError(t, err)

	h, body := parseHeader(t, out)
	assert.Equal(t, "New email data", body)
	assert.Equal(t, []string{"bot@example.com"}, addresses(t, h, "From"))
}

func TestRewrite_RequiresSender(t *testing.T) {
	_, err := Rewrite([]byte("x"), Recipients{})
	assert.Error(t, err)
}

func TestCompose(t *testing.T) {
	out, err := Compose(testRecipients(t), "Reminder", "Hello world\r\n")
	require.NoError(t, err)

	h, body := parseHeader(t, out)
	assert.Equal(t, "Reminder", h.Get("Subject"))
	assert.True(t, h.Has("Message-Id"))
	assert.False(t, h.Has("Date"))
	mediaType, params, err := h.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)
	assert.Equal(t, "utf-8", params["charset"])
	assert.Equal(t, "Hello world\r\n", body)

	assert.NotEmpty(t, messageID(out))
}

func TestParseAddressList(t *testing.T) {
	list, err := ParseAddressList("  ")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = ParseAddressList("not an address")
	assert.Error(t, err)

	_, err = ParseAddress("", "Nobody")
	assert.Error(t, err)
}

func TestEnvelope(t *testing.T) {
	raw := []byte("From: Bot <bot@example.com>\r\n" +
		"To: jim@example.com\r\n" +
		"Cc: ann@example.com\r\n" +
		"Bcc: archive@example.com\r\n" +
		"\r\n" +
		"hi\r\n")

	from, rcpt, data, err := envelope(raw)
	require.NoError(t, err)

	assert.Equal(t, "bot@example.com", from)
	assert.Equal(t, []string{"jim@example.com", "ann@example.com", "archive@example.com"}, rcpt)
	assert.NotContains(t, string(data), "archive@example.com")
	assert.Contains(t, string(data), "hi\r\n")
}

func TestEnvelope_NoRecipients(t *testing.T) {
	_, _, _, err := envelope([]byte("From: bot@example.com\r\n\r\nhi"))
	assert.Error(t, err)
}
