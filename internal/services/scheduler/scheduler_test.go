package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
	"github.com/magabrotheeeer/subscription-radar/internal/rabbitmq"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindRenewalsDueTomorrow(ctx context.Context) ([]models.RenewalAlert, error) {
	args := m.Called(ctx)
	alerts, _ := args.Get(0).([]models.RenewalAlert)
	return alerts, args.Error(1)
}

func (m *MockRepository) FindTrialsEndingToday(ctx context.Context) ([]models.RenewalAlert, error) {
	args := m.Called(ctx)
	alerts, _ := args.Get(0).([]models.RenewalAlert)
	return alerts, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRunOnce_PublishesRenewalAndTrialAlerts(t *testing.T) {
	repo := new(MockRepository)
	publisher := new(MockPublisher)
	svc := NewSchedulerService(repo, publisher, newNoopLogger())

	tomorrow := time.Now().AddDate(0, 0, 1)
	today := time.Now()

	renewal := models.RenewalAlert{
		Email:      "alice@example.com",
		Username:   "alice",
		VendorName: "Spotify Premium",
		Date:       tomorrow,
	}
	trial := models.RenewalAlert{
		Email:      "bob@example.com",
		Username:   "bob",
		VendorName: "Netflix",
		Date:       today,
	}

	repo.On("FindRenewalsDueTomorrow", mock.Anything).Return([]models.RenewalAlert{renewal}, nil)
	repo.On("FindTrialsEndingToday", mock.Anything).Return([]models.RenewalAlert{trial}, nil)

	publisher.On("Publish", rabbitmq.RoutingKeyAlerts, mock.MatchedBy(func(a models.RenewalAlert) bool {
		return a.VendorName == "Spotify Premium" && a.Kind == AlertKindRenewalDue
	})).Return(nil)
	publisher.On("Publish", rabbitmq.RoutingKeyAlerts, mock.MatchedBy(func(a models.RenewalAlert) bool {
		return a.VendorName == "Netflix" && a.Kind == AlertKindTrialEnding
	})).Return(nil)

	svc.RunOnce(context.Background())

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRunOnce_NoAlertsNothingPublished(t *testing.T) {
	repo := new(MockRepository)
	publisher := new(MockPublisher)
	svc := NewSchedulerService(repo, publisher, newNoopLogger())

	repo.On("FindRenewalsDueTomorrow", mock.Anything).Return([]models.RenewalAlert{}, nil)
	repo.On("FindTrialsEndingToday", mock.Anything).Return([]models.RenewalAlert{}, nil)

	svc.RunOnce(context.Background())

	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestRunOnce_RepoErrorDoesNotStopSecondQuery(t *testing.T) {
	repo := new(MockRepository)
	publisher := new(MockPublisher)
	svc := NewSchedulerService(repo, publisher, newNoopLogger())

	trial := models.RenewalAlert{Email: "bob@example.com", Username: "bob", VendorName: "Netflix"}

	repo.On("FindRenewalsDueTomorrow", mock.Anything).Return(nil, errors.New("db down"))
	repo.On("FindTrialsEndingToday", mock.Anything).Return([]models.RenewalAlert{trial}, nil)

	publisher.On("Publish", rabbitmq.RoutingKeyAlerts, mock.MatchedBy(func(a models.RenewalAlert) bool {
		return a.Kind == AlertKindTrialEnding
	})).Return(nil)

	svc.RunOnce(context.Background())

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestRunOnce_PublishErrorContinues(t *testing.T) {
	repo := new(MockRepository)
	publisher := new(MockPublisher)
	svc := NewSchedulerService(repo, publisher, newNoopLogger())

	alerts := []models.RenewalAlert{
		{Email: "a@example.com", Username: "a", VendorName: "Spotify Premium"},
		{Email: "b@example.com", Username: "b", VendorName: "Netflix"},
	}

	repo.On("FindRenewalsDueTomorrow", mock.Anything).Return(alerts, nil)
	repo.On("FindTrialsEndingToday", mock.Anything).Return([]models.RenewalAlert{}, nil)

	// Ошибка публикации первого уведомления не мешает второму.
	publisher.On("Publish", rabbitmq.RoutingKeyAlerts, mock.MatchedBy(func(a models.RenewalAlert) bool {
		return a.VendorName == "Spotify Premium"
	})).Return(errors.New("broker down"))
	publisher.On("Publish", rabbitmq.RoutingKeyAlerts, mock.MatchedBy(func(a models.RenewalAlert) bool {
		return a.VendorName == "Netflix"
	})).Return(nil)

	svc.RunOnce(context.Background())

	assert.Equal(t, 2, len(publisher.Calls))
}
