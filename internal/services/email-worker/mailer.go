package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	config "github.com/voyagecrm/notify/internal/config/email-worker"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
)

// Mailer speaks SMTP to the provider. Errors are classified at this
// boundary: 4xx responses, dial failures and timeouts are transient;
// 5xx responses are permanent and end the retry ladder early.
type Mailer struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	timeout    time.Duration
	from       string
	subjPrefix string

	log *zap.Logger
}

var _ mailqueue.Transport = (*Mailer)(nil)

func NewMailer(cfg config.SMTP) *Mailer {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, host(cfg.Addr))
	}
	return &Mailer{
		addr:       cfg.Addr,
		auth:       auth,
		useTLS:     cfg.UseTLS,
		timeout:    cfg.Timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        zap.L().With(zap.String("component", "email-worker.mailer")),
	}
}

func (m *Mailer) WithLogger(l *zap.Logger) *Mailer {
	if l == nil {
		return m
	}
	cp := *m
	cp.log = l.With(zap.String("component", "email-worker.mailer"))
	return &cp
}

func (m *Mailer) From() string { return m.from }

func (m *Mailer) Send(ctx context.Context, to string, mail mailqueue.RenderedMail) (string, error) {
	subj := strings.TrimSpace(m.subjPrefix + " " + mail.Subject)
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), host(m.addr))
	msg := m.compose(to, subj, msgID, mail)

	start := time.Now()
	log := m.log.With(
		zap.String("smtp_addr", m.addr),
		zap.Bool("tls", m.useTLS),
		zap.String("to", to),
		zap.String("subject", subj),
	)

	deadline := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); deadline <= 0 || until < deadline {
			deadline = until
		}
	}

	var err error
	if m.useTLS {
		err = m.sendTLS(to, msg, deadline)
	} else {
		err = m.sendPlain(to, msg, deadline)
	}
	if err != nil {
		log.Warn("send failed", zap.Error(err))
		return "", classify(err)
	}

	log.Info("email sent", zap.Duration("elapsed", time.Since(start)))
	return msgID, nil
}

func (m *Mailer) compose(to, subject, msgID string, mail mailqueue.RenderedMail) []byte {
	const boundary = "alt-9f2c1e"
	var b strings.Builder
	b.WriteString("From: " + m.from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Message-ID: " + msgID + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if mail.Text == "" {
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(mail.HTML + "\r\n")
		return []byte(b.String())
	}

	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(mail.Text + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(mail.HTML + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func (m *Mailer) sendPlain(to string, msg []byte, timeout time.Duration) error {
	conn, err := (&net.Dialer{Timeout: timeout}).Dial("tcp", m.addr)
	if err != nil {
		return err
	}
	return m.transmit(conn, to, msg, timeout)
}

func (m *Mailer) sendTLS(to string, msg []byte, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(&dialer, "tcp", m.addr, &tls.Config{ServerName: host(m.addr)})
	if err != nil {
		return err
	}
	return m.transmit(conn, to, msg, timeout)
}

func (m *Mailer) transmit(conn net.Conn, to string, msg []byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	c, err := smtp.NewClient(conn, host(m.addr))
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Close() }()

	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// classify wraps a raw SMTP failure into a DeliveryError.
func classify(err error) error {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return &mailqueue.DeliveryError{
			Transient: proto.Code < 500,
			Message:   fmt.Sprintf("smtp %d: %s", proto.Code, proto.Msg),
			Err:       err,
		}
	}
	// dial errors, timeouts, dropped connections
	return &mailqueue.DeliveryError{Transient: true, Message: err.Error(), Err: err}
}

func host(addr string) string {
	if i := strings.Index(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}
