// Package services находит подписки с близким продлением и публикует
// уведомления в очередь. Сам движок пересчёта уведомлениями не занимается.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
)

// AlertKindRenewalDue и AlertKindTrialEnding — значения поля kind уведомления.
const (
	AlertKindRenewalDue  = "renewal_due"
	AlertKindTrialEnding = "trial_ending"
)

// SubscriptionRepository описывает выборки подписок для уведомлений.
// Скрытые пользователем подписки в выборки не попадают.
type SubscriptionRepository interface {
	// FindRenewalsDueTomorrow возвращает подписки с продлением завтра.
	FindRenewalsDueTomorrow(ctx context.Context) ([]models.RenewalAlert, error)
	// FindTrialsEndingToday возвращает пробные подписки, заканчивающиеся сегодня.
	FindTrialsEndingToday(ctx context.Context) ([]models.RenewalAlert, error)
}

// AlertPublisher публикует уведомления в очередь.
type AlertPublisher interface {
	Publish(routingKey string, message any) error
}

// SchedulerService периодически находит подписки с близким продлением
// или окончанием пробного периода и публикует уведомления.
type SchedulerService struct {
	repo      SubscriptionRepository
	publisher AlertPublisher
	log       *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo SubscriptionRepository, publisher AlertPublisher, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// Run выполняет первый проход сразу и затем каждые 12 часов, пока
// контекст не отменён.
func (s *SchedulerService) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce выполняет один проход: продления завтра и пробные периоды,
// заканчивающиеся сегодня.
func (s *SchedulerService) RunOnce(ctx context.Context) {
	s.log.Info("starting scheduler pass")

	renewals, err := s.repo.FindRenewalsDueTomorrow(ctx)
	if err != nil {
		s.log.Error("failed to find renewals due tomorrow", sl.Err(err))
	} else {
		s.publishAlerts(renewals, AlertKindRenewalDue)
	}

	trials, err := s.repo.FindTrialsEndingToday(ctx)
	if err != nil {
		s.log.Error("failed to find trials ending today", sl.Err(err))
	} else {
		s.publishAlerts(trials, AlertKindTrialEnding)
	}
}

func (s *SchedulerService) publishAlerts(alerts []models.RenewalAlert, kind string) {
	if len(alerts) == 0 {
		s.log.Info("no alerts to publish", "kind", kind)
		return
	}
	s.log.Info("publishing alerts", "kind", kind, "count", len(alerts))
	for _, alert := range alerts {
		alert.Kind = kind
		if err := s.publisher.Publish(rabbitmq.RoutingKeyAlerts, alert); err != nil {
			s.log.Error("failed to publish alert", sl.Err(err), "vendor", alert.VendorName)
		}
	}
}
