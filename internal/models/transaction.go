// Package models содержит доменные структуры: транзакции, полученные из
// почтового импорта, выведенные из них подписки, пользователей,
// а также сообщения очередей и типы для приёма JSON-запросов.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExtractionSource описывает происхождение извлечённых полей транзакции.
// Закрытый набор значений: rules, llm, apple_receipt.
type ExtractionSource string

const (
	// SourceRules — поля извлечены детерминированными правилами.
	SourceRules ExtractionSource = "rules"
	// SourceLLM — поля извлечены языковой моделью.
	SourceLLM ExtractionSource = "llm"
	// SourceAppleReceipt — поля извлечены из чека Apple.
	SourceAppleReceipt ExtractionSource = "apple_receipt"
)

// Valid сообщает, входит ли значение в закрытый набор источников.
func (s ExtractionSource) Valid() bool {
	switch s {
	case SourceRules, SourceLLM, SourceAppleReceipt:
		return true
	}
	return false
}

// TransactionMeta хранит происхождение извлечённых полей транзакции.
// Необязательные поля заполняются в зависимости от источника:
// Model — только для llm, OrderID — только для apple_receipt.
type TransactionMeta struct {
	Source  ExtractionSource `json:"source"`
	Model   string           `json:"model,omitempty"`
	OrderID string           `json:"order_id,omitempty"`
}

// Transaction представляет одну платёжную транзакцию пользователя,
// построенную конвейером импорта писем. Поля Vendor, Amount, Currency и
// TransactionDate могут отсутствовать: такие транзакции исключаются из
// группировки, но не считаются ошибкой.
type Transaction struct {
	ID              int64               `json:"id"`
	UserUID         uuid.UUID           `json:"user_uid"`
	MessageID       string              `json:"message_id"`                 // Идентификатор исходного письма, уникален в рамках пользователя
	Vendor          *string             `json:"vendor,omitempty"`           // Сырая строка продавца из письма
	Amount          decimal.NullDecimal `json:"amount,omitempty"`           // Сумма списания
	Currency        *string             `json:"currency,omitempty"`         // Код валюты
	TransactionDate *time.Time          `json:"transaction_date,omitempty"` // Дата списания (без времени, UTC)
	Category        *string             `json:"category,omitempty"`         // Категория расхода
	IsSubscription  bool                `json:"is_subscription"`            // Признак подписки, выставленный извлечением
	TrialEndDate    *time.Time          `json:"trial_end_date,omitempty"`   // Дата окончания пробного периода
	RenewalDate     *time.Time          `json:"renewal_date,omitempty"`     // Явная дата следующего продления
	Confidence      map[string]float64  `json:"confidence,omitempty"`       // Уверенность извлечения по полям (vendor, amount, date)
	Meta            *TransactionMeta    `json:"meta,omitempty"`
	ParserVersion   string              `json:"parser_version"`
	CreatedAt       time.Time           `json:"created_at"`
}
