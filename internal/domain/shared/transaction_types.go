package shared

import (
	"errors"
	"strings"
)

var ErrInvalidTransactionType = errors.New("invalid transaction type")

// TransactionType defines whether money leaves or enters the household
type TransactionType string

const (
	TransactionTypeExpense TransactionType = "EXPENSE"
	TransactionTypeIncome  TransactionType = "INCOME"
)

// ParseTransactionType accepts either casing ("expense", "INCOME").
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToUpper(strings.TrimSpace(s))) {
	case TransactionTypeExpense:
		return TransactionTypeExpense, nil
	case TransactionTypeIncome:
		return TransactionTypeIncome, nil
	default:
		return "", ErrInvalidTransactionType
	}
}

// Valid reports whether t is one of the known types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeExpense || t == TransactionTypeIncome
}

// Lower returns the lowercase form stored on recurring templates.
func (t TransactionType) Lower() string {
	return strings.ToLower(string(t))
}
