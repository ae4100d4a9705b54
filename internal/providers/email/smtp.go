package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Host     string
	Port     int
	Secure   bool
	Username string
	Password string
	FromName string

	DialTimeout time.Duration
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) from() mail.Address {
	return mail.Address{Name: c.FromName, Address: c.Username}
}

type SMTPProvider struct {
	cfg Config
	now func() time.Time
}

func NewSMTP(cfg Config) *SMTPProvider {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &SMTPProvider{cfg: cfg, now: time.Now}
}

func (p *SMTPProvider) Verify(ctx context.Context) error {
	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	body, err := p.compose(msg)
	if err != nil {
		return &SendError{Message: "compose message", Code: CodeMessage, Err: err}
	}

	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(p.cfg.Username); err != nil {
		return commandError("MAIL FROM", CodeEnvelope, err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return commandError("RCPT TO", CodeEnvelope, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return commandError("DATA", CodeMessage, err)
	}
	if _, err := w.Write(body); err != nil {
		return commandError("DATA", CodeMessage, err)
	}
	if err := w.Close(); err != nil {
		return commandError("DATA", CodeMessage, err)
	}

	return client.Quit()
}

func (p *SMTPProvider) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	tlsConfig := &tls.Config{ServerName: p.cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if p.cfg.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", p.cfg.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.addr())
	}
	if err != nil {
		return nil, &SendError{Message: "connect " + p.cfg.addr(), Code: CodeConnection, Command: "CONN", Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, commandError("CONN", CodeConnection, err)
	}

	if !p.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, commandError("STARTTLS", CodeTLS, err)
			}
		}
	}

	if p.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
			if err := client.Auth(auth); err != nil {
				client.Close()
				return nil, commandError("AUTH PLAIN", CodeAuth, err)
			}
		}
	}

	return client, nil
}

func (p *SMTPProvider) compose(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	from := p.cfg.from()

	header := textproto.MIMEHeader{}
	header.Set("From", from.String())
	header.Set("To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		header.Set("Reply-To", msg.ReplyTo)
	}
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", p.now().Format(time.RFC1123Z))
	header.Set("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), p.cfg.Host))
	header.Set("MIME-Version", "1.0")

	mw := multipart.NewWriter(&buf)
	header.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())

	var head bytes.Buffer
	for _, key := range []string{"From", "To", "Reply-To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type"} {
		if v := header.Get(key); v != "" {
			fmt.Fprintf(&head, "%s: %s\r\n", key, v)
		}
	}
	head.WriteString("\r\n")

	if err := writePart(mw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(mw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType + "; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func commandError(command, code string, err error) *SendError {
	out := &SendError{Message: err.Error(), Code: code, Command: command, Err: err}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		out.ResponseCode = tpErr.Code
		out.Response = fmt.Sprintf("%d %s", tpErr.Code, tpErr.Msg)
		out.Message = "smtp " + strings.ToLower(command) + " rejected"
	}
	return out
}
