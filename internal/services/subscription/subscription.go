// Package services содержит бизнес-логику чтения подписок: кешированный
// список, объяснение подписки и скрытие её пользователем.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-radar/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-radar/internal/lib/vendorkey"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// ListCacheTTL — время жизни кешированного списка подписок.
const ListCacheTTL = time.Hour

// maxTransactionsLimit — верхняя граница размера страницы транзакций.
const maxTransactionsLimit = 200

// PriceIncreaseThresholdPercent — минимальный процент роста цены,
// при котором insights сообщает о повышении.
const PriceIncreaseThresholdPercent = 10.0

// SubscriptionRepository определяет методы хранилища, нужные read-стороне.
type SubscriptionRepository interface {
	// ListSubscriptionsByUser возвращает подписки пользователя,
	// отсортированные по дате следующего продления.
	ListSubscriptionsByUser(ctx context.Context, userUID uuid.UUID) ([]models.Subscription, error)
	// GetSubscription возвращает подписку пользователя по ID.
	GetSubscription(ctx context.Context, userUID uuid.UUID, id int64) (*models.Subscription, error)
	// MarkSubscriptionIgnored помечает подписку скрытой.
	MarkSubscriptionIgnored(ctx context.Context, userUID uuid.UUID, id int64) error
	// ListTransactionsByIDs возвращает транзакции-улики по списку ID.
	ListTransactionsByIDs(ctx context.Context, userUID uuid.UUID, ids []int64) ([]models.Transaction, error)
	// ListTransactionsPage возвращает страницу транзакций пользователя.
	ListTransactionsPage(ctx context.Context, userUID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	// ListPriceHistory возвращает историю цены подписки.
	ListPriceHistory(ctx context.Context, subscriptionID int64) ([]models.PricePoint, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// SubscriptionService реализует read-сторону подписок поверх хранилища
// и кеша. Запись делает только пересчёт.
type SubscriptionService struct {
	repo  SubscriptionRepository
	cache Cache
	log   *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, cache Cache, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// CacheKey возвращает ключ кеша списка подписок пользователя.
func CacheKey(userUID uuid.UUID) string {
	return "subscriptions:" + userUID.String()
}

// List возвращает подписки пользователя. Список кешируется до следующего
// пересчёта или скрытия подписки; ошибки кеша не фатальны.
func (s *SubscriptionService) List(ctx context.Context, userUID uuid.UUID) ([]models.Subscription, error) {
	const op = "subscription.List"

	key := CacheKey(userUID)
	var cached []models.Subscription
	found, err := s.cache.Get(key, &cached)
	if err != nil {
		s.log.Warn("failed to read subscriptions from cache", sl.Err(err), sl.UID(userUID))
	}
	if found {
		return cached, nil
	}

	subs, err := s.repo.ListSubscriptionsByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Set(key, subs, ListCacheTTL); err != nil {
		s.log.Warn("failed to cache subscriptions", sl.Err(err), sl.UID(userUID))
	}
	return subs, nil
}

// Insights возвращает развёрнутое объяснение подписки: уверенность, причины,
// каденс, предсказание, транзакции-улики и историю цены.
func (s *SubscriptionService) Insights(ctx context.Context, userUID uuid.UUID, id int64) (*models.SubscriptionInsights, error) {
	const op = "subscription.Insights"

	sub, err := s.repo.GetSubscription(ctx, userUID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	evidence := make([]models.EvidenceCharge, 0, len(sub.Meta.EvidenceTxIDs))
	if len(sub.Meta.EvidenceTxIDs) > 0 {
		txs, err := s.repo.ListTransactionsByIDs(ctx, userUID, sub.Meta.EvidenceTxIDs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		byID := make(map[int64]models.Transaction, len(txs))
		for _, tx := range txs {
			byID[tx.ID] = tx
		}
		// Порядок улик из meta сохраняется; пропавшие транзакции
		// молча пропускаются.
		for _, txID := range sub.Meta.EvidenceTxIDs {
			tx, ok := byID[txID]
			if !ok {
				continue
			}
			evidence = append(evidence, models.EvidenceCharge{
				ID:       tx.ID,
				Date:     tx.TransactionDate,
				Amount:   tx.Amount,
				Currency: tx.Currency,
			})
		}
	}

	history, err := s.repo.ListPriceHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.SubscriptionInsights{
		SubscriptionID:           sub.ID,
		VendorName:               sub.VendorName,
		Confidence:               sub.Meta.Confidence,
		Reasons:                  sub.Meta.Reasons,
		CadenceDays:              sub.Meta.CadenceDays,
		CadenceVarianceDays:      sub.Meta.CadenceVarianceDays,
		PredictedNextRenewalDate: sub.Meta.PredictedNextRenewalDate,
		PredictedIsEstimated:     sub.Meta.PredictedIsEstimated,
		EvidenceCharges:          evidence,
		PriceHistory:             history,
		PriceIncrease:            detectPriceIncrease(history, PriceIncreaseThresholdPercent),
	}, nil
}

// detectPriceIncrease сравнивает новейшую точку истории цены с медианой
// предыдущих. Повышение меньше порога или история короче двух точек —
// не событие.
func detectPriceIncrease(history []models.PricePoint, thresholdPercent float64) *models.PriceIncrease {
	if len(history) < 2 {
		return nil
	}

	oldPrices := make([]decimal.Decimal, 0, len(history)-1)
	for _, point := range history[:len(history)-1] {
		oldPrices = append(oldPrices, point.Amount)
	}
	oldPrice := medianDecimal(oldPrices)
	newPrice := history[len(history)-1].Amount

	if !oldPrice.IsPositive() {
		return nil
	}

	percent, _ := newPrice.Sub(oldPrice).Mul(decimal.NewFromInt(100)).Div(oldPrice).Float64()
	if percent < thresholdPercent {
		return nil
	}

	return &models.PriceIncrease{
		OldPrice:         oldPrice,
		NewPrice:         newPrice,
		Percent:          percent,
		ThresholdPercent: thresholdPercent,
		Reason:           fmt.Sprintf("price increased from %s to %s", oldPrice.StringFixed(2), newPrice.StringFixed(2)),
	}
}

// medianDecimal — медиана с усреднением двух средних значений.
func medianDecimal(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// Duplicates группирует активные подписки пользователя, похожие на
// дубликаты: один нормализованный продавец, одинаковая сумма и валюта.
// Подписки без суммы или валюты в группировке не участвуют.
func (s *SubscriptionService) Duplicates(ctx context.Context, userUID uuid.UUID) ([]models.DuplicateGroup, error) {
	const op = "subscription.Duplicates"

	subs, err := s.repo.ListSubscriptionsByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	type dupKey struct {
		vendor   string
		amount   string
		currency string
	}
	buckets := make(map[dupKey][]models.Subscription)
	var order []dupKey
	for _, sub := range subs {
		if sub.Status != models.StatusActive {
			continue
		}
		if !sub.Amount.Valid || sub.Currency == nil {
			continue
		}
		vendor := vendorkey.Normalize(sub.VendorName)
		if vendor == "" {
			continue
		}
		key := dupKey{vendor: vendor, amount: sub.Amount.Decimal.StringFixed(2), currency: *sub.Currency}
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], sub)
	}

	var groups []models.DuplicateGroup
	for _, key := range order {
		group := buckets[key]
		if len(group) < 2 {
			continue
		}
		ids := make([]int64, 0, len(group))
		for _, sub := range group {
			ids = append(ids, sub.ID)
		}
		groups = append(groups, models.DuplicateGroup{
			SubscriptionIDs: ids,
			VendorName:      group[0].VendorName,
			Amount:          group[0].Amount.Decimal,
			Currency:        *group[0].Currency,
			Reason:          "possible duplicate subscriptions: same vendor and price",
		})
	}
	return groups, nil
}

// Ignore помечает подписку скрытой и инвалидирует кеш списка.
// Пересчёт такие подписки сохраняет и никогда не пересоздаёт.
func (s *SubscriptionService) Ignore(ctx context.Context, userUID uuid.UUID, id int64) error {
	const op = "subscription.Ignore"

	if err := s.repo.MarkSubscriptionIgnored(ctx, userUID, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Invalidate(CacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate subscriptions cache", sl.Err(err), sl.UID(userUID))
	}
	return nil
}

// ListTransactions возвращает страницу транзакций пользователя, новые первыми.
// Значения limit вне (0, 200] приводятся к границам.
func (s *SubscriptionService) ListTransactions(ctx context.Context, userUID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	const op = "subscription.ListTransactions"

	if limit <= 0 || limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := s.repo.ListTransactionsPage(ctx, userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}
