package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// CreateTransaction вставляет транзакцию, построенную конвейером импорта
// писем, и возвращает её ID. Повторная доставка того же письма
// (user_uid, message_id) не создаёт дубликат.
func (s *Storage) CreateTransaction(ctx context.Context, tx models.Transaction) (int64, error) {
	const op = "storage.CreateTransaction"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	confidence, err := marshalNullable(tx.Confidence)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	meta, err := marshalNullable(tx.Meta)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO transactions (user_uid, message_id, vendor, amount, currency,
			      transaction_date, category, is_subscription, trial_end_date,
			      renewal_date, confidence, meta, parser_version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  ON CONFLICT (user_uid, message_id) DO UPDATE SET message_id = EXCLUDED.message_id
			  RETURNING id`
	var newID int64
	err = s.DB.QueryRowContext(ctx, query,
		tx.UserUID, tx.MessageID, tx.Vendor, nullDecimal(tx.Amount), tx.Currency,
		tx.TransactionDate, tx.Category, tx.IsSubscription, tx.TrialEndDate,
		tx.RenewalDate, confidence, meta, tx.ParserVersion).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListTransactionsByUser возвращает все транзакции пользователя,
// новые первыми. Этот порядок фиксирует порядок групп в пересчёте.
func (s *Storage) ListTransactionsByUser(ctx context.Context, userUID uuid.UUID) ([]models.Transaction, error) {
	const op = "storage.ListTransactionsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := transactionSelect + `
			  WHERE user_uid = $1
			  ORDER BY transaction_date DESC NULLS LAST, id DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanTransactions(op, rows)
}

// ListTransactionsPage возвращает страницу транзакций пользователя,
// новые первыми.
func (s *Storage) ListTransactionsPage(ctx context.Context, userUID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	const op = "storage.ListTransactionsPage"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := transactionSelect + `
			  WHERE user_uid = $1
			  ORDER BY transaction_date DESC NULLS LAST, id DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanTransactions(op, rows)
}

// ListTransactionsByIDs возвращает транзакции пользователя по списку
// идентификаторов: так insights разворачивает meta.evidence_tx_ids
// в транзакции-улики. Чужие идентификаторы молча отбрасываются.
func (s *Storage) ListTransactionsByIDs(ctx context.Context, userUID uuid.UUID, ids []int64) ([]models.Transaction, error) {
	const op = "storage.ListTransactionsByIDs"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := transactionSelect + `
			  WHERE user_uid = $1 AND id = ANY($2)
			  ORDER BY transaction_date DESC NULLS LAST, id DESC`
	// Драйвер pgx передаёт []int64 как int8[] в параметр ANY.
	rows, err := s.DB.QueryContext(ctx, query, userUID, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanTransactions(op, rows)
}

const transactionSelect = `SELECT id, user_uid, message_id, vendor, amount, currency,
			      transaction_date, category, is_subscription, trial_end_date,
			      renewal_date, confidence, meta, parser_version, created_at
			  FROM transactions`

func scanTransactions(op string, rows *sql.Rows) ([]models.Transaction, error) {
	var result []models.Transaction
	for rows.Next() {
		var item models.Transaction
		var amount sql.NullString
		var txDate, trialEnd, renewal sql.NullTime
		var confidence, meta []byte
		if err := rows.Scan(&item.ID, &item.UserUID, &item.MessageID, &item.Vendor,
			&amount, &item.Currency, &txDate, &item.Category, &item.IsSubscription,
			&trialEnd, &renewal, &confidence, &meta, &item.ParserVersion,
			&item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if amount.Valid {
			d, err := decimal.NewFromString(amount.String)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			item.Amount = decimal.NewNullDecimal(d)
		}
		item.TransactionDate = nullableTime(txDate)
		item.TrialEndDate = nullableTime(trialEnd)
		item.RenewalDate = nullableTime(renewal)
		if len(confidence) > 0 {
			if err := json.Unmarshal(confidence, &item.Confidence); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		if len(meta) > 0 {
			item.Meta = &models.TransactionMeta{}
			if err := json.Unmarshal(meta, item.Meta); err != nil {
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

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullDecimal(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]float64:
		if t == nil {
			return nil, nil
		}
	case *models.TransactionMeta:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
