// Package recompute реализует движок вывода подписок из транзакций:
// нормализацию продавцов, кластеризацию по сумме, оценку каденса,
// взвешенную оценку уверенности и идемпотентный пересчёт, который
// полностью пересоздаёт подписки пользователя, сохраняя скрытые им.
package recompute

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

// MetaSource — тег провенанса, который пересчёт проставляет в meta
// каждой созданной подписки.
const MetaSource = "recompute_v2"

// Repository описывает методы хранилища, нужные пересчёту.
type Repository interface {
	// ListTransactionsByUser возвращает все транзакции пользователя,
	// новые первыми.
	ListTransactionsByUser(ctx context.Context, userUID uuid.UUID) ([]models.Transaction, error)
	// ListIgnoredSubscriptions возвращает подписки со статусом ignored.
	ListIgnoredSubscriptions(ctx context.Context, userUID uuid.UUID) ([]models.Subscription, error)
	// ReplaceSubscriptions в одной транзакции БД удаляет все не-ignored
	// подписки пользователя и вставляет новый набор.
	ReplaceSubscriptions(ctx context.Context, userUID uuid.UUID, subs []models.Subscription) error
}

// CacheInvalidator сбрасывает закешированный список подписок пользователя
// после успешного пересчёта.
type CacheInvalidator interface {
	Invalidate(key string) error
}

// Service — оркестратор пересчёта. Сам по себе движок синхронный и не
// делает сетевого ввода-вывода, кроме обращений к репозиторию; запуск
// двух пересчётов одного пользователя одновременно недопустим, это
// гарантирует вызывающий воркер.
type Service struct {
	repo      Repository
	cache     CacheInvalidator
	log       *slog.Logger
	cfg       Config
	clusterer *AmountClusterer
	cadence   *CadenceAnalyzer
	scorer    *ConfidenceScorer

	// now подменяется в тестах.
	now func() time.Time
}

// New создает новый Service с заданными порогами.
func New(repo Repository, cache CacheInvalidator, log *slog.Logger, cfg Config) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		log:       log,
		cfg:       cfg,
		clusterer: NewAmountClusterer(cfg),
		cadence:   NewCadenceAnalyzer(cfg),
		scorer:    NewConfidenceScorer(cfg),
		now:       time.Now,
	}
}

// CacheKey возвращает ключ кеша списка подписок пользователя.
func CacheKey(userUID uuid.UUID) string {
	return "subscriptions:" + userUID.String()
}

type groupKey struct {
	vendorKey string
	currency  string
}

// Recompute перестраивает подписки пользователя. Транзакции без продавца
// или даты молча исключаются; подписки, скрытые пользователем, сохраняются
// и не пересоздаются; весь новый набор записывается одной транзакцией БД,
// так что при ошибке записи частичное состояние не видно никому.
func (s *Service) Recompute(ctx context.Context, userUID uuid.UUID) error {
	const op = "recompute.Recompute"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	txs, err := s.repo.ListTransactionsByUser(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ignored, err := s.repo.ListIgnoredSubscriptions(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ignoredKeys := make(map[string]struct{}, len(ignored))
	for _, sub := range ignored {
		var amt *decimal.Decimal
		if sub.Amount.Valid {
			amt = &sub.Amount.Decimal
		}
		ignoredKeys[ignoreKey(vendorkey.Normalize(sub.VendorName), amt, sub.Currency)] = struct{}{}
	}

	today := DateOnly(s.now())

	// Группировка по (ключ продавца, валюта); порядок групп фиксируется
	// порядком появления, чтобы прогон был детерминированным.
	groups := make(map[groupKey][]models.Transaction)
	var order []groupKey
	for _, tx := range txs {
		if tx.Vendor == nil || tx.TransactionDate == nil {
			continue
		}
		key := vendorkey.Normalize(*tx.Vendor)
		if key == "" {
			continue
		}
		gk := groupKey{vendorKey: key, currency: deref(tx.Currency)}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], tx)
	}

	var subs []models.Subscription
	for _, gk := range order {
		for _, cluster := range s.clusterer.Cluster(groups[gk]) {
			sub, ok := s.buildSubscription(userUID, gk, cluster, ignoredKeys, today)
			if ok {
				subs = append(subs, sub)
			}
		}
	}

	if err := s.repo.ReplaceSubscriptions(ctx, userUID, subs); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(CacheKey(userUID)); err != nil {
			s.log.Warn("failed to invalidate subscriptions cache", sl.UID(userUID), sl.Err(err))
		}
	}

	s.log.Info("recompute finished",
		sl.UID(userUID),
		slog.Int("transactions", len(txs)),
		slog.Int("created", len(subs)),
		slog.Int("preserved_ignored", len(ignored)))
	return nil
}

// buildSubscription превращает один кластер в подписку. Возвращает false,
// когда кластер скрыт пользователем или не прошёл порог достаточности улик.
func (s *Service) buildSubscription(
	userUID uuid.UUID,
	gk groupKey,
	cluster []models.Transaction,
	ignoredKeys map[string]struct{},
	today time.Time,
) (models.Subscription, bool) {
	var amounts []decimal.Decimal
	for _, tx := range cluster {
		if tx.Amount.Valid {
			amounts = append(amounts, tx.Amount.Decimal)
		}
	}
	amountMedian := medianDecimal(amounts)

	var currency *string
	for _, tx := range cluster {
		if tx.Currency != nil && *tx.Currency != "" {
			currency = tx.Currency
			break
		}
	}

	// Пользователь уже скрывал этот продавец с этой ценой — не пересоздаём.
	if _, ok := ignoredKeys[ignoreKey(gk.vendorKey, amountMedian, currency)]; ok {
		return models.Subscription{}, false
	}

	var rawDates []time.Time
	for _, tx := range cluster {
		if tx.TransactionDate != nil {
			rawDates = append(rawDates, *tx.TransactionDate)
		}
	}
	dates := DistinctDates(rawDates)
	if len(dates) == 0 {
		return models.Subscription{}, false
	}
	lastDate := dates[len(dates)-1]

	trialEvidence := false
	renewalEvidence := false
	amountEvidence := false
	var flagged []models.Transaction
	for _, tx := range cluster {
		hasTrial := tx.TrialEndDate != nil && meetsConfidence(tx, "date", s.cfg.MinEvidenceConfidence)
		hasRenewal := tx.RenewalDate != nil && meetsConfidence(tx, "date", s.cfg.MinEvidenceConfidence)
		if hasTrial {
			trialEvidence = true
		}
		if hasRenewal {
			renewalEvidence = true
		}
		if tx.Amount.Valid && meetsConfidence(tx, "amount", s.cfg.MinEvidenceConfidence) {
			amountEvidence = true
		}
		if tx.IsSubscription || hasTrial || hasRenewal {
			flagged = append(flagged, tx)
		}
	}
	concreteEvidence := amountEvidence || trialEvidence || renewalEvidence

	cad := s.cadence.Analyze(dates, today)

	// Порог достаточности улик: одиночное списание становится подпиской
	// только с явной trial/renewal датой; несколько списаний без каденса —
	// только с конкретной уликой. Иначе случайная покупка превращалась бы
	// в фантомную подписку.
	if len(dates) == 1 {
		if !trialEvidence && !renewalEvidence {
			return models.Subscription{}, false
		}
	} else if cad.MedianGapDays == nil {
		if !concreteEvidence {
			return models.Subscription{}, false
		}
	}

	explicitRenewal := latestFutureDate(flagged, today, func(tx models.Transaction) *time.Time { return tx.RenewalDate })
	trialEnd := latestFutureDate(flagged, today, func(tx models.Transaction) *time.Time { return tx.TrialEndDate })

	var nextRenewal *time.Time
	predictedIsEstimated := false
	switch {
	case explicitRenewal != nil:
		nextRenewal = explicitRenewal
	case trialEnd != nil:
		nextRenewal = trialEnd
	case cad.PredictedNext != nil:
		nextRenewal = cad.PredictedNext
		predictedIsEstimated = true
	default:
		// Ни явной даты, ни прогноза: оставляем только при наличии
		// хоть каких-то явных признаков подписки.
		if len(flagged) == 0 {
			return models.Subscription{}, false
		}
	}

	var status models.SubscriptionStatus
	var kind string
	if trialEnd != nil && len(dates) <= 1 {
		status = models.StatusTrial
		kind = "trial"
	} else {
		window := s.cfg.DefaultActiveWindowDays
		if cad.MedianGapDays != nil {
			window = 2 * *cad.MedianGapDays
			if window < s.cfg.MinActiveWindowDays {
				window = s.cfg.MinActiveWindowDays
			}
			if window > s.cfg.MaxActiveWindowDays {
				window = s.cfg.MaxActiveWindowDays
			}
		}
		if daysBetween(lastDate, today) > window {
			status = models.StatusCanceled
			kind = "inactive"
		} else {
			status = models.StatusActive
			kind = "active"
		}
	}

	amountMedianFloat := decimalToFloat(amountMedian)
	amountVariability := amountVariability(amounts)
	confidence, reasons := s.scorer.Score(Evidence{
		ChargeCount:       len(dates),
		MedianGapDays:     cad.MedianGapDays,
		VariabilityDays:   cad.VariabilityDays,
		SkippedCycles:     cad.SkippedCycles,
		FlaggedCount:      len(flagged),
		LastChargeDate:    &lastDate,
		AmountMedian:      amountMedianFloat,
		AmountVariability: amountVariability,
	})

	var predictedNext *string
	if predictedIsEstimated && nextRenewal != nil {
		v := nextRenewal.Format(time.DateOnly)
		predictedNext = &v
	}

	sub := models.Subscription{
		UserUID:          userUID,
		VendorName:       displayVendor(cluster, gk.vendorKey),
		Currency:         currency,
		BillingCycleDays: cad.MedianGapDays,
		LastChargeDate:   &lastDate,
		NextRenewalDate:  nextRenewal,
		TrialEndDate:     trialEnd,
		Status:           status,
		Meta: models.SubscriptionMeta{
			Source:                   MetaSource,
			Kind:                     kind,
			VendorKey:                gk.vendorKey,
			Count:                    len(cluster),
			FlaggedCount:             len(flagged),
			MedianGapDays:            cad.MedianGapDays,
			GapVariabilityDays:       cad.VariabilityDays,
			SkippedCycles:            cad.SkippedCycles,
			AmountVariability:        amountVariability,
			CadenceDays:              cad.MedianGapDays,
			CadenceVarianceDays:      cad.VariabilityDays,
			PredictedNextRenewalDate: predictedNext,
			PredictedIsEstimated:     predictedIsEstimated,
			Confidence:               confidence,
			Reasons:                  reasons,
			EvidenceTxIDs:            evidenceTxIDs(cluster, s.cfg.MaxEvidenceTxIDs),
		},
	}
	if amountMedian != nil {
		sub.Amount = decimal.NewNullDecimal(*amountMedian)
	}
	return sub, true
}

// meetsConfidence проверяет поуровневую уверенность извлечения поля.
// Отсутствующая карта или отсутствующий ключ считаются достоверными.
func meetsConfidence(tx models.Transaction, field string, minimum float64) bool {
	if tx.Confidence == nil {
		return true
	}
	v, ok := tx.Confidence[field]
	if !ok {
		return true
	}
	return v >= minimum
}

// ignoreKey строит ключ сопоставления со скрытыми подписками:
// нормализованный продавец, сумма с округлением до копеек, валюта.
func ignoreKey(vendorKey string, amount *decimal.Decimal, currency *string) string {
	amt := ""
	if amount != nil {
		amt = amount.StringFixed(2)
	}
	return vendorKey + "|" + amt + "|" + deref(currency)
}

// latestFutureDate выбирает самую позднюю дату >= today среди помеченных
// транзакций.
func latestFutureDate(flagged []models.Transaction, today time.Time, field func(models.Transaction) *time.Time) *time.Time {
	var best *time.Time
	for _, tx := range flagged {
		d := field(tx)
		if d == nil {
			continue
		}
		day := DateOnly(*d)
		if day.Before(today) {
			continue
		}
		if best == nil || day.After(*best) {
			best = &day
		}
	}
	return best
}

// displayVendor возвращает самую частую сырую строку продавца в кластере;
// при равенстве побеждает встреченная раньше.
func displayVendor(cluster []models.Transaction, fallback string) string {
	counts := make(map[string]int)
	var order []string
	for _, tx := range cluster {
		if tx.Vendor == nil || *tx.Vendor == "" {
			continue
		}
		if _, ok := counts[*tx.Vendor]; !ok {
			order = append(order, *tx.Vendor)
		}
		counts[*tx.Vendor]++
	}
	best := ""
	bestCount := 0
	for _, name := range order {
		if counts[name] > bestCount {
			best = name
			bestCount = counts[name]
		}
	}
	if best == "" {
		return fallback
	}
	return best
}

// evidenceTxIDs выбирает идентификаторы самых свежих транзакций кластера.
func evidenceTxIDs(cluster []models.Transaction, limit int) []int64 {
	sorted := append([]models.Transaction(nil), cluster...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].TransactionDate, sorted[j].TransactionDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(*dj)
		}
	})
	ids := make([]int64, 0, limit)
	for _, tx := range sorted {
		if len(ids) == limit {
			break
		}
		ids = append(ids, tx.ID)
	}
	return ids
}

func medianDecimal(values []decimal.Decimal) *decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		v := sorted[mid]
		return &v
	}
	v := sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
	return &v
}

// amountVariability — медианное абсолютное отклонение сумм от медианы.
func amountVariability(values []decimal.Decimal) *float64 {
	if len(values) < 2 {
		return nil
	}
	med := medianDecimal(values)
	dev := make([]float64, 0, len(values))
	for _, v := range values {
		dev = append(dev, v.Sub(*med).Abs().InexactFloat64())
	}
	sort.Float64s(dev)
	out := dev[len(dev)/2]
	return &out
}

func decimalToFloat(v *decimal.Decimal) *float64 {
	if v == nil {
		return nil
	}
	f := v.InexactFloat64()
	return &f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
