package email

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mhale/smtpd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	from string
	to   []string
	data []byte
}

type mailbox struct {
	mu   sync.Mutex
	msgs []received
}

func (m *mailbox) handler(_ net.Addr, from string, to []string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, received{from: from, to: to, data: append([]byte(nil), data...)})
}

func (m *mailbox) all() []received {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]received(nil), m.msgs...)
}

// startSMTPServer runs an in-process SMTP server on a random localhost port.
func startSMTPServer(t *testing.T) (*mailbox, SMTPSettings) {
	t.Helper()
	box := &mailbox{}
	srv := &smtpd.Server{
		Handler:  box.handler,
		Hostname: "mx.test",
	}

	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() { _ = srv.Serve(ln) }()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return box, SMTPSettings{Host: host, Port: port, TLSMode: "none"}
}

func TestSMTPSender_MultipartDelivery(t *testing.T) {
	box, settings := startSMTPServer(t)
	sender := NewSMTPSender(settings)

	err := sender.Send(context.Background(), Message{
		FromName:  "ARCSTARZ",
		FromEmail: "hello@arcstarz.test",
		ToEmail:   "ada@example.com",
		Subject:   "Hello\r\nBcc: evil@example.com",
		TextBody:  "plain body",
		HTMLBody:  "<p>html body</p>",
	})
	require.NoError(t, err)

	msgs := box.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello@arcstarz.test", msgs[0].from)
	assert.Equal(t, []string{"ada@example.com"}, msgs[0].to)

	parsed, err := mail.ReadMessage(strings.NewReader(string(msgs[0].data)))
	require.NoError(t, err)
	assert.Empty(t, parsed.Header.Get("Bcc"))

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Hello  Bcc: evil@example.com", subject)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	var bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		bodies = append(bodies, strings.TrimSpace(string(b)))
	}
	assert.Equal(t, []string{"plain body", "<p>html body</p>"}, bodies)
}

func TestSMTPSender_PlainText(t *testing.T) {
	box, settings := startSMTPServer(t)

	err := SendSMTP(context.Background(), settings, Message{
		FromEmail: "hello@arcstarz.test",
		ToEmail:   "bob@example.com",
		Subject:   "Plain",
		TextBody:  "just text",
	})
	require.NoError(t, err)

	msgs := box.all()
	require.Len(t, msgs, 1)
	parsed, err := mail.ReadMessage(strings.NewReader(string(msgs[0].data)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(parsed.Header.Get("Content-Type"), "text/plain"))
}

// slowListener delays the first write on every accepted connection, so the
// server greeting arrives late.
type slowListener struct {
	net.Listener
	delay time.Duration
}

func (l slowListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &slowConn{Conn: c, delay: l.delay}, nil
}

type slowConn struct {
	net.Conn
	delay time.Duration
	once  sync.Once
}

func (c *slowConn) Write(p []byte) (int, error) {
	c.once.Do(func() { time.Sleep(c.delay) })
	return c.Conn.Write(p)
}

func TestSMTPSender_SlowServerOutlivesDialTimeout(t *testing.T) {
	box := &mailbox{}
	srv := &smtpd.Server{Handler: box.handler, Hostname: "mx.test"}

	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = srv.Serve(slowListener{Listener: ln, delay: 300 * time.Millisecond}) }()

	addr := ln.Addr().(*net.TCPAddr)
	sender := &SMTPSender{
		settings:    SMTPSettings{Host: "127.0.0.1", Port: addr.Port, TLSMode: "none"},
		dialTimeout: 100 * time.Millisecond,
	}

	err = sender.Send(context.Background(), Message{
		FromEmail: "hello@arcstarz.test",
		ToEmail:   "ada@example.com",
		Subject:   "Slow",
		TextBody:  "still delivered",
	})
	require.NoError(t, err)
	assert.Len(t, box.all(), 1)
}

func TestSMTPSender_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = SendSMTP(ctx, SMTPSettings{Host: "127.0.0.1", Port: addr.Port, TLSMode: "none"}, Message{
		FromEmail: "a@example.com",
		ToEmail:   "b@example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp dial")
}

func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	b, err := buildMessage(Message{
		FromName:  "Zoë",
		FromEmail: "z@example.com",
		ToEmail:   "a@example.com",
		Subject:   "Café launch",
		TextBody:  "x",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(b)))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Café launch", subject)
	assert.Equal(t, "Fri, 02 Jan 2026 03:04:05 +0000", parsed.Header.Get("Date"))
}
