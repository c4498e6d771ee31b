// Package usage reports embedding token consumption against the configured budget.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query parameter to a Period. Empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q, want day or month: %w", s, domain.ErrInvalidInput)
	}
}

// Report is the embedding token usage of one UTC period.
type Report struct {
	Period Period
	Start  time.Time
	End    time.Time // also when the budget resets
	Used   int64
	// Limit is 0 and Remaining is -1 when the period is unlimited.
	Limit     int64
	Remaining int64
	Exhausted bool
}

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (no budget configured).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: func() time.Time { return time.Now().UTC() }}
}

// Report builds the usage report for period.
func (s *Service) Report(_ context.Context, period Period) Report {
	now := s.now()
	r := Report{Period: period}

	switch period {
	case PeriodMonth:
		r.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 1, 0)
	default:
		r.Period = PeriodDay
		r.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.End = r.Start.Add(24 * time.Hour)
	}

	c := read(s.br, r.Period)
	r.Limit, r.Used, r.Remaining = c.limit, c.used, c.remaining
	r.Exhausted = r.Limit > 0 && r.Remaining == 0
	return r
}
