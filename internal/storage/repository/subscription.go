package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// ErrSubscriptionNotFound возвращается, когда подписка не существует или
// принадлежит другому пользователю.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// ListSubscriptionsByUser возвращает все подписки пользователя,
// отсортированные по дате ближайшего продления.
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userUID uuid.UUID) ([]models.Subscription, error) {
	const op = "storage.ListSubscriptionsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := subscriptionSelect + `
			  WHERE user_uid = $1
			  ORDER BY next_renewal_date ASC NULLS LAST, id DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanSubscriptions(op, rows)
}

// ListIgnoredSubscriptions возвращает подписки, скрытые пользователем.
// Пересчёт использует их для построения ignore-набора.
func (s *Storage) ListIgnoredSubscriptions(ctx context.Context, userUID uuid.UUID) ([]models.Subscription, error) {
	const op = "storage.ListIgnoredSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := subscriptionSelect + `
			  WHERE user_uid = $1 AND status = $2`
	rows, err := s.DB.QueryContext(ctx, query, userUID, string(models.StatusIgnored))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanSubscriptions(op, rows)
}

// GetSubscription возвращает подписку пользователя по ID.
func (s *Storage) GetSubscription(ctx context.Context, userUID uuid.UUID, id int64) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := subscriptionSelect + `
			  WHERE user_uid = $1 AND id = $2`
	rows, err := s.DB.QueryContext(ctx, query, userUID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	subs, err := scanSubscriptions(op, rows)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return &subs[0], nil
}

// MarkSubscriptionIgnored выставляет подписке статус ignored. Это
// единственный путь появления статуса: пересчёт его никогда не назначает.
func (s *Storage) MarkSubscriptionIgnored(ctx context.Context, userUID uuid.UUID, id int64) error {
	const op = "storage.MarkSubscriptionIgnored"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = $1, updated_at = now()
			  WHERE user_uid = $2 AND id = $3`
	res, err := s.DB.ExecContext(ctx, query, string(models.StatusIgnored), userUID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// ReplaceSubscriptions в одной транзакции БД удаляет все не скрытые
// подписки пользователя и вставляет новый набор, попутно дописывая
// историю цен (не больше одной точки на подписку в день). Ошибка на любом
// шаге откатывает всё: частичное состояние снаружи не видно.
func (s *Storage) ReplaceSubscriptions(ctx context.Context, userUID uuid.UUID, subs []models.Subscription) error {
	const op = "storage.ReplaceSubscriptions"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleteQuery := `DELETE FROM subscriptions
			  WHERE user_uid = $1 AND status <> $2`
	if _, err = tx.ExecContext(ctx, deleteQuery, userUID, string(models.StatusIgnored)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	insertQuery := `INSERT INTO subscriptions (user_uid, vendor_name, amount, currency,
			      billing_cycle_days, last_charge_date, next_renewal_date,
			      trial_end_date, status, meta)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	historyQuery := `INSERT INTO subscription_price_history (subscription_id, amount, currency, effective_date)
			  VALUES ($1, $2, $3, CURRENT_DATE)
			  ON CONFLICT (subscription_id, effective_date) DO NOTHING`

	for _, sub := range subs {
		meta, err := json.Marshal(sub.Meta)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		var newID int64
		if err = tx.QueryRowContext(ctx, insertQuery,
			userUID, sub.VendorName, nullDecimal(sub.Amount), sub.Currency,
			sub.BillingCycleDays, sub.LastChargeDate, sub.NextRenewalDate,
			sub.TrialEndDate, string(sub.Status), meta).Scan(&newID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if sub.Amount.Valid && sub.Currency != nil {
			if _, err = tx.ExecContext(ctx, historyQuery,
				newID, sub.Amount.Decimal.String(), *sub.Currency); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListPriceHistory возвращает историю цен подписки по возрастанию даты.
func (s *Storage) ListPriceHistory(ctx context.Context, subscriptionID int64) ([]models.PricePoint, error) {
	const op = "storage.ListPriceHistory"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, subscription_id, amount, currency, effective_date, created_at
			  FROM subscription_price_history
			  WHERE subscription_id = $1
			  ORDER BY effective_date ASC`
	rows, err := s.DB.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.PricePoint
	for rows.Next() {
		var item models.PricePoint
		var amount string
		if err := rows.Scan(&item.ID, &item.SubscriptionID, &amount, &item.Currency,
			&item.EffectiveDate, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item.Amount = d
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindRenewalsDueTomorrow находит не скрытые подписки с продлением завтра
// вместе с адресами владельцев: планировщик превращает их в уведомления.
func (s *Storage) FindRenewalsDueTomorrow(ctx context.Context) ([]models.RenewalAlert, error) {
	const op = "storage.FindRenewalsDueTomorrow"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.email, u.username, s.vendor_name, s.amount, s.currency, s.next_renewal_date
			  FROM subscriptions s
			  JOIN users u ON s.user_uid = u.uid
			  WHERE s.next_renewal_date = CURRENT_DATE + INTERVAL '1 day'
			    AND s.status <> $1`
	return s.queryAlerts(ctx, op, query, models.StatusIgnored)
}

// FindTrialsEndingToday находит пробные подписки, заканчивающиеся сегодня.
func (s *Storage) FindTrialsEndingToday(ctx context.Context) ([]models.RenewalAlert, error) {
	const op = "storage.FindTrialsEndingToday"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.email, u.username, s.vendor_name, s.amount, s.currency, s.trial_end_date
			  FROM subscriptions s
			  JOIN users u ON s.user_uid = u.uid
			  WHERE s.trial_end_date = CURRENT_DATE
			    AND s.status = $1`
	return s.queryAlerts(ctx, op, query, models.StatusTrial)
}

func (s *Storage) queryAlerts(ctx context.Context, op, query string, status models.SubscriptionStatus) ([]models.RenewalAlert, error) {
	rows, err := s.DB.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.RenewalAlert
	for rows.Next() {
		var item models.RenewalAlert
		var amount sql.NullString
		if err := rows.Scan(&item.Email, &item.Username, &item.VendorName,
			&amount, &item.Currency, &item.Date); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if amount.Valid {
			d, err := decimal.NewFromString(amount.String)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			item.Amount = decimal.NewNullDecimal(d)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

const subscriptionSelect = `SELECT id, user_uid, vendor_name, amount, currency,
			      billing_cycle_days, last_charge_date, next_renewal_date,
			      trial_end_date, status, meta, updated_at
			  FROM subscriptions`

func scanSubscriptions(op string, rows *sql.Rows) ([]models.Subscription, error) {
	var result []models.Subscription
	for rows.Next() {
		var item models.Subscription
		var amount sql.NullString
		var lastCharge, nextRenewal, trialEnd sql.NullTime
		var meta []byte
		if err := rows.Scan(&item.ID, &item.UserUID, &item.VendorName, &amount,
			&item.Currency, &item.BillingCycleDays, &lastCharge, &nextRenewal,
			&trialEnd, &item.Status, &meta, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if amount.Valid {
			d, err := decimal.NewFromString(amount.String)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			item.Amount = decimal.NewNullDecimal(d)
		}
		item.LastChargeDate = nullableTime(lastCharge)
		item.NextRenewalDate = nullableTime(nextRenewal)
		item.TrialEndDate = nullableTime(trialEnd)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Meta); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
