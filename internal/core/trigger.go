package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrTriggerExhausted is returned when a one-time trigger has no occurrence
// after the given instant. The caller is expected to disable the task.
var ErrTriggerExhausted = errors.New("trigger has no further occurrences")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks trigger field ranges.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerOnce:
		if t.At == nil {
			return fmt.Errorf("one-time trigger requires a timestamp")
		}
		return nil
	case TriggerHourly, TriggerDaily, TriggerWeekly:
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("trigger minute %d out of range", t.Minute)
	}
	if t.Kind != TriggerHourly && (t.Hour < 0 || t.Hour > 23) {
		return fmt.Errorf("trigger hour %d out of range", t.Hour)
	}
	if t.Kind == TriggerWeekly && (t.Weekday < time.Sunday || t.Weekday > time.Saturday) {
		return fmt.Errorf("trigger weekday %d out of range", t.Weekday)
	}
	return nil
}

// cronExpr renders a recurring trigger as a 5-field cron expression.
func (t Trigger) cronExpr() string {
	switch t.Kind {
	case TriggerHourly:
		return fmt.Sprintf("%d * * * *", t.Minute)
	case TriggerDaily:
		return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
	case TriggerWeekly:
		return fmt.Sprintf("%d %d * * %d", t.Minute, t.Hour, int(t.Weekday))
	}
	return ""
}

// schedule compiles a recurring trigger into a cron schedule.
func (t Trigger) schedule() (cron.Schedule, error) {
	expr := t.cronExpr()
	if expr == "" {
		return nil, fmt.Errorf("trigger kind %q has no schedule", t.Kind)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger schedule: %w", err)
	}
	return schedule, nil
}

// NextOccurrence returns the first occurrence of the trigger strictly after
// the given instant. It is pure: identical inputs yield identical results.
// For an exhausted one-time trigger it returns ErrTriggerExhausted.
func NextOccurrence(t Trigger, after time.Time) (time.Time, error) {
	if err := t.Validate(); err != nil {
		return time.Time{}, err
	}
	if t.Kind == TriggerOnce {
		if after.Before(*t.At) {
			return *t.At, nil
		}
		return time.Time{}, ErrTriggerExhausted
	}
	schedule, err := t.schedule()
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

// NextOccurrences returns up to n occurrences after base, for previews.
// One-time triggers yield at most a single entry.
func NextOccurrences(t Trigger, base time.Time, n int) ([]time.Time, error) {
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		occurrence, err := NextOccurrence(t, next)
		if err != nil {
			if errors.Is(err, ErrTriggerExhausted) {
				break
			}
			return nil, err
		}
		times = append(times, occurrence)
		next = occurrence
	}
	return times, nil
}

// Describe renders a trigger for logs and API responses.
func (t Trigger) Describe() string {
	switch t.Kind {
	case TriggerOnce:
		if t.At == nil {
			return "once"
		}
		return fmt.Sprintf("once at %s", t.At.Format(time.RFC3339))
	case TriggerHourly:
		return fmt.Sprintf("hourly at :%02d", t.Minute)
	case TriggerDaily:
		return fmt.Sprintf("daily at %02d:%02d", t.Hour, t.Minute)
	case TriggerWeekly:
		return fmt.Sprintf("weekly on %s at %02d:%02d", t.Weekday, t.Hour, t.Minute)
	}
	return string(t.Kind)
}
