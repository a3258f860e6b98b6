// Package services содержит сервис отправки email-уведомлений
// о событиях биллинга, полученных из очереди.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/lib/smtp"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/plan"
)

// SenderService отправляет письма пользователям по событиям биллинга.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport smtp.TransportInterface) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendBillingNotification разбирает сообщение из очереди и отправляет
// письмо в зависимости от типа события.
func (s *SenderService) SendBillingNotification(body []byte) error {
	var message models.BillingNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	if message.Email == "" {
		s.log.Warn("billing notification without email, skipping",
			slog.String("kind", message.Kind),
			slog.String("user_uid", message.UserUID))
		return nil
	}

	switch message.Kind {
	case models.BillingNotificationRenewed:
		return s.sendRenewed(&message)
	case models.BillingNotificationPaymentFailed:
		return s.sendPaymentFailed(&message)
	default:
		s.log.Warn("unknown billing notification kind, skipping",
			slog.String("kind", message.Kind))
		return nil
	}
}

func (s *SenderService) sendRenewed(message *models.BillingNotification) error {
	planName := message.PlanID
	if p, err := plan.Get(message.PlanID); err == nil {
		planName = p.Name
	}

	to := []string{message.Email}
	subject := "Оплата прошла успешно"
	bodyText := fmt.Sprintf("Здравствуйте!\n\nВаша подписка на тариф %s успешно оплачена и продлена.\nКредиты за новый период уже начислены на ваш счёт.",
		planName)

	return s.sendEmail(to, subject, bodyText)
}

func (s *SenderService) sendPaymentFailed(message *models.BillingNotification) error {
	to := []string{message.Email}
	subject := "Не удалось списать оплату за подписку"
	bodyText := "Здравствуйте!\n\nМы не смогли списать оплату за вашу подписку.\nПожалуйста, проверьте способ оплаты в личном кабинете, иначе подписка будет приостановлена."

	return s.sendEmail(to, subject, bodyText)
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
	defer client.Close()

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
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	_, err = wc.Write([]byte(msg))
	if err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
