package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus задаёт жизненный цикл подписки.
// Единственный допустимый набор значений: trial, active, canceled, ignored.
// Статус ignored выставляется только явным действием пользователя и никогда
// не назначается и не снимается пересчётом.
type SubscriptionStatus string

const (
	// StatusTrial — подписка в пробном периоде.
	StatusTrial SubscriptionStatus = "trial"
	// StatusActive — подписка активна.
	StatusActive SubscriptionStatus = "active"
	// StatusCanceled — списания прекратились, подписка считается отменённой.
	StatusCanceled SubscriptionStatus = "canceled"
	// StatusIgnored — пользователь скрыл подписку, пересчёт её сохраняет.
	StatusIgnored SubscriptionStatus = "ignored"
)

// Valid сообщает, входит ли значение в закрытый набор статусов.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusCanceled, StatusIgnored:
		return true
	}
	return false
}

// SubscriptionMeta хранит объяснение того, почему подписка была выведена:
// ключ группировки, счётчики улик, каденс, предсказание и причины.
// Сериализуется в колонку meta (JSONB).
type SubscriptionMeta struct {
	Source    string `json:"source"`     // Тег провенанса пересчёта, например "recompute_v2"
	Kind      string `json:"kind"`       // trial, active или inactive
	VendorKey string `json:"vendor_key"` // Нормализованный ключ продавца

	Count        int `json:"count"`         // Сколько транзакций попало в кластер
	FlaggedCount int `json:"flagged_count"` // Сколько из них несли явные признаки подписки

	MedianGapDays       *int     `json:"median_gap_days"`
	GapVariabilityDays  *int     `json:"gap_variability_days"`
	SkippedCycles       int      `json:"skipped_cycles"`
	AmountVariability   *float64 `json:"amount_variability"`
	CadenceDays         *int     `json:"cadence_days"`          // Дубликат MedianGapDays под ключом, который читает insights
	CadenceVarianceDays *int     `json:"cadence_variance_days"` // Дубликат GapVariabilityDays под ключом, который читает insights

	PredictedNextRenewalDate *string `json:"predicted_next_renewal_date"` // ISO-дата, только когда дата спрогнозирована каденсом
	PredictedIsEstimated     bool    `json:"predicted_is_estimated"`

	Confidence    float64  `json:"confidence"`
	Reasons       []string `json:"reasons"`
	EvidenceTxIDs []int64  `json:"evidence_tx_ids"`
}

// Subscription представляет выведенную подписку пользователя.
// Строки полностью пересоздаются каждым пересчётом, кроме строк со
// статусом ignored.
type Subscription struct {
	ID               int64               `json:"id"`
	UserUID          uuid.UUID           `json:"user_uid"`
	VendorName       string              `json:"vendor_name"` // Отображаемое имя: самая частая сырая строка продавца в кластере
	Amount           decimal.NullDecimal `json:"amount,omitempty"`
	Currency         *string             `json:"currency,omitempty"`
	BillingCycleDays *int                `json:"billing_cycle_days,omitempty"`
	LastChargeDate   *time.Time          `json:"last_charge_date,omitempty"`
	NextRenewalDate  *time.Time          `json:"next_renewal_date,omitempty"`
	TrialEndDate     *time.Time          `json:"trial_end_date,omitempty"`
	Status           SubscriptionStatus  `json:"status"`
	Meta             SubscriptionMeta    `json:"meta"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// PricePoint представляет одну точку истории цены подписки.
// Пересчёт записывает не более одной точки на подписку в день.
type PricePoint struct {
	ID             int64           `json:"id"`
	SubscriptionID int64           `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	EffectiveDate  time.Time       `json:"effective_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PriceIncrease — обнаруженное повышение цены подписки: новейшая точка
// истории против медианы предыдущих.
type PriceIncrease struct {
	OldPrice         decimal.Decimal `json:"old_price"`
	NewPrice         decimal.Decimal `json:"new_price"`
	Percent          float64         `json:"percent"`
	ThresholdPercent float64         `json:"threshold_percent"`
	Reason           string          `json:"reason"`
}

// DuplicateGroup — группа активных подписок одного пользователя,
// похожих на дубликаты: одинаковый продавец, сумма и валюта.
type DuplicateGroup struct {
	SubscriptionIDs []int64         `json:"subscription_ids"`
	VendorName      string          `json:"vendor_name"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reason          string          `json:"reason"`
}

// EvidenceCharge — транзакция-улика в ответе insights: краткая форма
// транзакции, на которую ссылается meta.evidence_tx_ids.
type EvidenceCharge struct {
	ID       int64               `json:"id"`
	Date     *time.Time          `json:"date,omitempty"`
	Amount   decimal.NullDecimal `json:"amount,omitempty"`
	Currency *string             `json:"currency,omitempty"`
}

// SubscriptionInsights — развёрнутое объяснение одной подписки для UI.
type SubscriptionInsights struct {
	SubscriptionID           int64            `json:"subscription_id"`
	VendorName               string           `json:"vendor_name"`
	Confidence               float64          `json:"confidence"`
	Reasons                  []string         `json:"reasons"`
	CadenceDays              *int             `json:"cadence_days"`
	CadenceVarianceDays      *int             `json:"cadence_variance_days"`
	PredictedNextRenewalDate *string          `json:"predicted_next_renewal_date"`
	PredictedIsEstimated     bool             `json:"predicted_is_estimated"`
	EvidenceCharges          []EvidenceCharge `json:"evidence_charges"`
	PriceHistory             []PricePoint     `json:"price_history"`
	PriceIncrease            *PriceIncrease   `json:"price_increase,omitempty"`
}
