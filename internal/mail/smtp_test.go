package mail

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	from string
	rcpt []string
	data string
}

type captureBackend struct {
	mu   sync.Mutex
	mail []capturedMail
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
	current capturedMail
}

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.current.rcpt = append(s.current.rcpt, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = string(b)
	s.backend.mu.Lock()
	s.backend.mail = append(s.backend.mail, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *captureSession) Reset()        { s.current = capturedMail{} }
func (s *captureSession) Logout() error { return nil }

// selfSignedTLS returns a server config for 127.0.0.1 and a client config
// that trusts it.
func selfSignedTLS(t *testing.T) (server, client *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	server = &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
	client = &tls.Config{RootCAs: pool, ServerName: "127.0.0.1"}
	return server, client
}

func startSMTP(t *testing.T, tlsConfig *tls.Config) (*captureBackend, string) {
	t.Helper()
	backend := &captureBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.TLSConfig = tlsConfig

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return backend, l.Addr().String()
}

func TestSMTPSender_Send(t *testing.T) {
	serverTLS, clientTLS := selfSignedTLS(t)
	backend, addr := startSMTP(t, serverTLS)
	sender := &SMTPSender{Addr: addr, TLSConfig: clientTLS}

	raw := []byte("From: Bot <bot@example.com>\r\n" +
		"To: jim@example.com\r\n" +
		"Bcc: archive@example.com\r\n" +
		"Message-Id: <abc@example.com>\r\n" +
		"Subject: hi\r\n" +
		"\r\n" +
		"hello\r\n")

	sent, err := sender.Send(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "abc@example.com", sent.ID)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.mail, 1)
	got := backend.mail[0]
	assert.Equal(t, "bot@example.com", got.from)
	assert.ElementsMatch(t, []string{"jim@example.com", "archive@example.com"}, got.rcpt)
	assert.NotContains(t, got.data, "archive@example.com")
	assert.Contains(t, got.data, "hello")
}

func TestSMTPSender_RefusesPlaintextRelay(t *testing.T) {
	backend, addr := startSMTP(t, nil)
	sender := &SMTPSender{Addr: addr, Username: "bot", Password: "secret"}

	_, err := sender.Send(context.Background(), []byte("From: a@example.com\r\nTo: b@example.com\r\n\r\nx"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendFailed))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.mail)
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &SMTPSender{Addr: "127.0.0.1:1"}
	_, err := sender.Send(ctx, []byte("From: a@example.com\r\nTo: b@example.com\r\n\r\nx"))
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIMAPClient_CancelledContextSkipsDial(t *testing.T) {
	client, err := NewIMAPClient(&IMAPConfig{
		Host: "127.0.0.1", Port: "1", Username: "bot",
		SMTPHost: "127.0.0.1", SMTPPort: "1",
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.FindLatest(ctx, "rent")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = client.RawContent(ctx, &Candidate{ID: "7"})
	assert.ErrorIs(t, err, ErrRawFetchFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSMTPSender_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sender := &SMTPSender{Addr: addr}
	_, err = sender.Send(context.Background(), []byte("From: a@example.com\r\nTo: b@example.com\r\n\r\nx"))
	assert.True(t, errors.Is(err, ErrSendFailed))
}

func TestIMAPConfig_Validate(t *testing.T) {
	valid := IMAPConfig{Host: "imap.example.com", Port: "993", Username: "bot", SMTPHost: "smtp.example.com", SMTPPort: "587"}
	assert.NoError(t, valid.Validate())

	missingSMTP := valid
	missingSMTP.SMTPHost = ""
	assert.Error(t, missingSMTP.Validate())

	_, err := NewIMAPClient(&IMAPConfig{}, nil)
	assert.Error(t, err)

	client, err := NewIMAPClient(&valid, nil)
	require.NoError(t, err)
	assert.Equal(t, "INBOX", client.mailbox)
	assert.Equal(t, "smtp.example.com:587", client.sender.Addr)
}
