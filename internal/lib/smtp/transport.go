package smtp

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/magabrotheeeer/subscription-radar/internal/config"
	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
)

// dialTimeout ограничивает ожидание TCP-соединения с SMTP-сервером,
// чтобы зависший сервер не блокировал отправителя уведомлений.
const dialTimeout = 10 * time.Second

// Transport устанавливает аутентифицированные SMTP-сессии для отправителя
// уведомлений. STARTTLS обязателен: сервер без него отвергается.
type Transport struct {
	cfg config.SMTP
	log *slog.Logger
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect открывает сессию: TCP с таймаутом, STARTTLS, PLAIN-аутентификация.
// Возвращённый Client закрывает вызывающая сторона.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"

	addr := net.JoinHostPort(t.cfg.SMTPHost, t.cfg.SMTPPort)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		t.log.Error("failed to dial smtp server", slog.String("addr", addr), sl.Err(err))
		return nil, fmt.Errorf("%s: dial %s: %w", op, addr, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		t.closeQuietly(conn)
		return nil, fmt.Errorf("%s: handshake: %w", op, err)
	}

	if err := t.secure(client); err != nil {
		t.closeQuietly(client)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	auth := smtp.PlainAuth("", t.cfg.SMTPUser, t.cfg.SMTPPass, t.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		t.closeQuietly(client)
		return nil, fmt.Errorf("%s: auth: %w", op, err)
	}

	return &sessionClient{client: client}, nil
}

// secure переводит сессию на TLS. Открытый текст после приветствия
// не допускается.
func (t *Transport) secure(client *smtp.Client) error {
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server %s does not support STARTTLS", t.cfg.SMTPHost)
	}
	tlsConfig := &tls.Config{
		ServerName: t.cfg.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	return nil
}

func (t *Transport) closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		t.log.Warn("failed to close smtp connection", sl.Err(err))
	}
}

// GetSMTPUser возвращает адрес отправителя (он же логин SMTP).
func (t *Transport) GetSMTPUser() string {
	return t.cfg.SMTPUser
}

// sessionClient адаптирует *smtp.Client к интерфейсу Client,
// чтобы отправителя можно было тестировать с мок-транспортом.
type sessionClient struct {
	client *smtp.Client
}

func (c *sessionClient) Mail(from string) error        { return c.client.Mail(from) }
func (c *sessionClient) Rcpt(to string) error          { return c.client.Rcpt(to) }
func (c *sessionClient) Data() (io.WriteCloser, error) { return c.client.Data() }
func (c *sessionClient) Quit() error                   { return c.client.Quit() }
func (c *sessionClient) Close() error                  { return c.client.Close() }
