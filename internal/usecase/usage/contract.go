package usage

// BudgetReader provides read-only access to the embedding token budget.
// It is satisfied by the embedding budget tracker.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}

// counters is one period's view of a BudgetReader.
type counters struct {
	limit, used, remaining int64
}

// read picks the window matching period. A nil reader is an unlimited budget.
func read(br BudgetReader, period Period) counters {
	switch {
	case br == nil:
		return counters{remaining: -1}
	case period == PeriodMonth:
		return counters{br.MonthlyLimit(), br.MonthlyUsed(), br.RemainingMonthly()}
	default:
		return counters{br.DailyLimit(), br.DailyUsed(), br.RemainingDaily()}
	}
}
