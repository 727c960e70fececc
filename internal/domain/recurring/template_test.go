package recurring

import (
	"errors"
	"testing"
	"time"

	"github.com/household-ledger/internal/domain/ledger"
	"github.com/household-ledger/internal/domain/schedule"
	"github.com/household-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func baseSpec() Spec {
	return Spec{
		Title:          "Rent",
		Amount:         decimal.NewFromInt(18000),
		Type:           shared.TransactionTypeExpense,
		Category:       "居住",
		IntervalMonths: 1,
		ExecuteDay:     5,
		StartDate:      schedule.New(2025, time.June, 1),
	}
}

func TestNew_Normalization(t *testing.T) {
	today := schedule.New(2025, time.June, 1)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name             string
		mutate           func(s *Spec)
		expectedInterval int
		expectedDay      int
		expectedNext     schedule.Date
		expectedRuns     *int
	}{
		{"Defaults", func(s *Spec) {}, 1, 5, schedule.New(2025, time.June, 5), nil},
		{"ZeroIntervalCoerced", func(s *Spec) { s.IntervalMonths = 0 }, 1, 5, schedule.New(2025, time.June, 5), nil},
		{"NegativeIntervalCoerced", func(s *Spec) { s.IntervalMonths = -4 }, 1, 5, schedule.New(2025, time.June, 5), nil},
		{"DayAboveRange", func(s *Spec) { s.ExecuteDay = 45 }, 1, 31, schedule.New(2025, time.June, 30), nil},
		{"DayBelowRange", func(s *Spec) { s.ExecuteDay = 0; s.StartDate = schedule.New(2025, time.July, 1) }, 1, 1, schedule.New(2025, time.July, 1), nil},
		{"BoundedPlan", func(s *Spec) { s.TotalRuns = intPtr(3) }, 1, 5, schedule.New(2025, time.June, 5), intPtr(3)},
		{"BoundedPlanAtLeastOne", func(s *Spec) { s.TotalRuns = intPtr(-2) }, 1, 5, schedule.New(2025, time.June, 5), intPtr(1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := baseSpec()
			tc.mutate(&spec)

			tpl, err := New("tpl-1", "l1", "alice", spec, today, now)
			require.NoError(t, err)

			assert.Equal(t, tc.expectedInterval, tpl.IntervalMonths)
			assert.Equal(t, tc.expectedDay, tpl.ExecuteDay)
			assert.Equal(t, tc.expectedNext, tpl.NextRunAt)
			assert.Equal(t, StatusActive, tpl.Status)
			assert.Equal(t, "expense", tpl.Type)
			if tc.expectedRuns == nil {
				assert.Nil(t, tpl.TotalRuns)
				assert.Nil(t, tpl.RemainingRuns)
			} else {
				assert.Equal(t, *tc.expectedRuns, *tpl.TotalRuns)
				assert.Equal(t, *tc.expectedRuns, *tpl.RemainingRuns)
			}
		})
	}
}

func TestNew_KeepsNegativeAmount(t *testing.T) {
	spec := baseSpec()
	spec.Amount = decimal.NewFromInt(-300)

	tpl, err := New("tpl", "l1", "alice", spec, schedule.New(2025, time.June, 1), time.Now())
	require.NoError(t, err)
	assert.True(t, tpl.Amount.Equal(decimal.NewFromInt(-300)))

	tx, err := tpl.Fire("tx1", time.Now())
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(-300)))
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	today := schedule.New(2025, time.June, 1)

	spec := baseSpec()
	spec.Type = "TRANSFER"
	_, err := New("tpl", "l1", "alice", spec, today, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidTransactionType)

	spec = baseSpec()
	spec.Amount = decimal.Zero
	_, err = New("tpl", "l1", "alice", spec, today, time.Now())
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	spec = baseSpec()
	spec.StartDate = schedule.Date{}
	_, err = New("tpl", "l1", "alice", spec, today, time.Now())
	assert.ErrorIs(t, err, ErrMissingStartDate)
}

func TestFire_BoundedPlanExhaustsAfterThreeRuns(t *testing.T) {
	spec := baseSpec()
	spec.ExecuteDay = 31
	spec.StartDate = schedule.New(2025, time.January, 31)
	spec.TotalRuns = intPtr(3)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tpl, err := New("tpl-1", "l1", "alice", spec, schedule.New(2025, time.January, 1), now)
	require.NoError(t, err)

	expectedDates := []schedule.Date{
		schedule.New(2025, time.January, 31),
		schedule.New(2025, time.February, 28),
		schedule.New(2025, time.March, 31),
	}
	for i, want := range expectedDates {
		tx, err := tpl.Fire("tx", now)
		require.NoError(t, err, "fire %d", i+1)
		assert.Equal(t, want, tx.Date)
		assert.Equal(t, shared.TransactionTypeExpense, tx.Type)
		assert.Equal(t, "tpl-1", tx.TemplateID)
		assert.Equal(t, "Rent", tx.Description)
	}

	assert.Equal(t, 0, *tpl.RemainingRuns)
	assert.Equal(t, StatusExhausted, tpl.Status)
	assert.False(t, tpl.IsDue(schedule.New(2030, time.January, 1)))

	_, err = tpl.Fire("tx", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateExhausted))
	assert.True(t, errors.Is(err, shared.ErrInvariantViolation))
	assert.Equal(t, 0, *tpl.RemainingRuns)
}

func TestFire_UnboundedNeverExhausts(t *testing.T) {
	spec := baseSpec()
	spec.Type = shared.TransactionTypeIncome
	spec.IntervalMonths = 12
	now := time.Now()

	tpl, err := New("tpl-2", "l1", "alice", spec, schedule.New(2025, time.June, 1), now)
	require.NoError(t, err)

	for i := 0; i < 24; i++ {
		tx, err := tpl.Fire("tx", now)
		require.NoError(t, err)
		assert.Equal(t, shared.TransactionTypeIncome, tx.Type)
	}
	assert.Equal(t, StatusActive, tpl.Status)
	assert.Nil(t, tpl.RemainingRuns)
	assert.Equal(t, schedule.New(2049, time.June, 5), tpl.NextRunAt)
}

func TestIsDue(t *testing.T) {
	tpl, err := New("tpl", "l1", "alice", baseSpec(), schedule.New(2025, time.June, 1), time.Now())
	require.NoError(t, err)

	assert.False(t, tpl.IsDue(schedule.New(2025, time.June, 4)))
	assert.True(t, tpl.IsDue(schedule.New(2025, time.June, 5)))
	assert.True(t, tpl.IsDue(schedule.New(2025, time.June, 6)))
}
