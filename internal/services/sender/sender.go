// Package services отправляет письма-уведомления о продлении подписок,
// потребляя сообщения из очереди.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-radar/internal/lib/smtp"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// SenderService отправляет письма через SMTP транспорт.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendRenewalAlert обрабатывает сообщение очереди уведомлений: разбирает
// JSON и отправляет письмо в зависимости от вида уведомления.
func (s *SenderService) SendRenewalAlert(body []byte) error {
	var alert models.RenewalAlert
	if err := json.Unmarshal(body, &alert); err != nil {
		s.log.Error("failed to unmarshal alert", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject, bodyText := renderAlert(alert)
	return s.sendEmail([]string{alert.Email}, subject, bodyText)
}

func renderAlert(alert models.RenewalAlert) (subject, bodyText string) {
	date := alert.Date.Format("02.01.2006")
	amount := ""
	if alert.Amount.Valid {
		amount = alert.Amount.Decimal.StringFixed(2)
		if alert.Currency != nil {
			amount += " " + *alert.Currency
		}
	}

	switch alert.Kind {
	case "trial_ending":
		subject = "Пробный период заканчивается сегодня"
		bodyText = fmt.Sprintf("Здравствуйте, %s!\n\nПробный период подписки на %s заканчивается сегодня (%s).",
			alert.Username, alert.VendorName, date)
		if amount != "" {
			bodyText += fmt.Sprintf("\nДалее возможно списание %s.", amount)
		}
	default:
		subject = "Завтра продление подписки"
		bodyText = fmt.Sprintf("Здравствуйте, %s!\n\nЗавтра (%s) ожидается продление подписки на %s.",
			alert.Username, date, alert.VendorName)
		if amount != "" {
			bodyText += fmt.Sprintf("\nОжидаемая сумма списания: %s.", amount)
		}
	}
	return subject, bodyText
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			s.log.Error("failed to close SMTP client", sl.Err(closeErr))
		}
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
