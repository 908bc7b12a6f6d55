package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid pricing config")

// Mode selects the billing algorithm.
type Mode string

const (
	ModeFixed  Mode = "fixed"
	ModeHourly Mode = "hourly"
	ModeTiered Mode = "tiered"
)

// BeyondMaxPolicy defines billing once a stay exceeds the largest tier.
type BeyondMaxPolicy string

const (
	// BeyondMaxPerDay charges the largest tier's rate once per started
	// 24-hour period of the stay.
	BeyondMaxPerDay BeyondMaxPolicy = "per_day"
	// BeyondMaxTier charges the largest tier's flat rate regardless of
	// overflow.
	BeyondMaxTier BeyondMaxPolicy = "max_tier"
)

// Tier is one duration bracket: any stay of at most Hours bills at Rate.
type Tier struct {
	Hours float64         `mapstructure:"hours" json:"hours"`
	Rate  decimal.Decimal `mapstructure:"rate" json:"rate"`
}

// Config is the read-only pricing input to Calculate. Validated once at
// startup; Calculate assumes a valid config.
type Config struct {
	Mode              Mode            `mapstructure:"mode"`
	FreePeriodMinutes int             `mapstructure:"free_period_minutes"`
	FixedRate         decimal.Decimal `mapstructure:"fixed_rate"`

	HourlyRate         decimal.Decimal `mapstructure:"hourly_rate"`
	PartialHourBilling bool            `mapstructure:"partial_hour_billing"`
	DailyMaxRate       decimal.Decimal `mapstructure:"daily_max_rate"`

	Tiers           []Tier          `mapstructure:"tiers"`
	BeyondMaxPolicy BeyondMaxPolicy `mapstructure:"beyond_max_policy"`

	WeekendRatesEnabled bool            `mapstructure:"weekend_rates_enabled"`
	WeekendHourlyRate   decimal.Decimal `mapstructure:"weekend_hourly_rate"`
	WeekendDailyMaxRate decimal.Decimal `mapstructure:"weekend_daily_max_rate"`

	OvernightRateEnabled bool            `mapstructure:"overnight_rate_enabled"`
	OvernightRate        decimal.Decimal `mapstructure:"overnight_rate"`
	// OvernightStart/OvernightEnd are minutes since midnight; the window
	// may wrap past midnight (start > end).
	OvernightStart int `mapstructure:"overnight_start"`
	OvernightEnd   int `mapstructure:"overnight_end"`
}

// Validate rejects configurations the calculator cannot price safely.
// Called at load time; a failure here is fatal at startup.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeFixed, ModeHourly, ModeTiered:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.FreePeriodMinutes < 0 {
		return fmt.Errorf("%w: negative free period", ErrInvalidConfig)
	}
	for _, r := range []decimal.Decimal{c.FixedRate, c.HourlyRate, c.DailyMaxRate, c.WeekendHourlyRate, c.WeekendDailyMaxRate, c.OvernightRate} {
		if r.IsNegative() {
			return fmt.Errorf("%w: negative rate", ErrInvalidConfig)
		}
	}
	if c.Mode == ModeTiered {
		if len(c.Tiers) == 0 {
			return fmt.Errorf("%w: tiered mode requires at least one tier", ErrInvalidConfig)
		}
		prev := 0.0
		for i, t := range c.Tiers {
			if t.Hours <= prev {
				return fmt.Errorf("%w: tier %d duration %.2fh not strictly increasing", ErrInvalidConfig, i, t.Hours)
			}
			if t.Rate.IsNegative() {
				return fmt.Errorf("%w: tier %d has negative rate", ErrInvalidConfig, i)
			}
			prev = t.Hours
		}
		if c.BeyondMaxPolicy != BeyondMaxPerDay && c.BeyondMaxPolicy != BeyondMaxTier {
			return fmt.Errorf("%w: tiered mode requires beyond_max_policy of %q or %q", ErrInvalidConfig, BeyondMaxPerDay, BeyondMaxTier)
		}
	}
	if c.OvernightRateEnabled {
		if c.OvernightStart < 0 || c.OvernightStart >= 24*60 || c.OvernightEnd < 0 || c.OvernightEnd >= 24*60 {
			return fmt.Errorf("%w: overnight window out of range", ErrInvalidConfig)
		}
		if c.OvernightStart == c.OvernightEnd {
			return fmt.Errorf("%w: overnight window is empty", ErrInvalidConfig)
		}
	}
	return nil
}

var sixty = decimal.NewFromInt(60)

// Calculate prices one completed session. Pure: same inputs, same amount.
//
// Overnight takes precedence over weekend when both apply; the two special
// rates are never combined within one session.
func Calculate(duration time.Duration, entry time.Time, cfg Config) decimal.Decimal {
	minutes := duration.Minutes()
	if minutes <= float64(cfg.FreePeriodMinutes) {
		return decimal.Zero
	}

	exit := entry.Add(duration)
	if cfg.OvernightRateEnabled && overlapsDailyWindow(entry, exit, cfg.OvernightStart, cfg.OvernightEnd) {
		return cfg.OvernightRate
	}

	hourlyRate := cfg.HourlyRate
	dailyMax := cfg.DailyMaxRate
	if cfg.WeekendRatesEnabled && isWeekend(entry) {
		hourlyRate = cfg.WeekendHourlyRate
		dailyMax = cfg.WeekendDailyMaxRate
	}

	switch cfg.Mode {
	case ModeFixed:
		return cfg.FixedRate
	case ModeHourly:
		return hourlyAmount(duration, hourlyRate, dailyMax, cfg.PartialHourBilling)
	case ModeTiered:
		return tieredAmount(duration, cfg)
	}
	return decimal.Zero
}

// hourlyAmount bills whole or proportional hours, capping each started
// 24-hour period at dailyMax when a cap is configured.
func hourlyAmount(duration time.Duration, rate, dailyMax decimal.Decimal, partial bool) decimal.Decimal {
	day := 24 * time.Hour
	capped := dailyMax.IsPositive()

	total := decimal.Zero
	for duration > 0 {
		chunk := duration
		if chunk > day {
			chunk = day
		}
		duration -= chunk

		var amount decimal.Decimal
		if partial {
			mins := decimal.NewFromFloat(chunk.Minutes())
			amount = mins.Div(sixty).Mul(rate)
		} else {
			hours := int64(chunk / time.Hour)
			if chunk%time.Hour != 0 {
				hours++
			}
			amount = decimal.NewFromInt(hours).Mul(rate)
		}
		if capped && amount.GreaterThan(dailyMax) {
			amount = dailyMax
		}
		total = total.Add(amount)
	}
	return total
}

// tieredAmount charges the smallest tier covering the elapsed hours. Stays
// beyond the largest tier follow the configured beyond-max policy; if that
// policy is somehow absent the largest tier's rate is charged rather than
// zero.
func tieredAmount(duration time.Duration, cfg Config) decimal.Decimal {
	elapsed := duration.Hours()
	for _, t := range cfg.Tiers {
		if t.Hours >= elapsed {
			return t.Rate
		}
	}

	top := cfg.Tiers[len(cfg.Tiers)-1]
	if cfg.BeyondMaxPolicy == BeyondMaxPerDay {
		days := int64(duration / (24 * time.Hour))
		if duration%(24*time.Hour) != 0 {
			days++
		}
		return top.Rate.Mul(decimal.NewFromInt(days))
	}
	return top.Rate
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// overlapsDailyWindow reports whether any instant of [entry, exit] falls
// inside the daily window [startMin, endMin), which may wrap past midnight.
func overlapsDailyWindow(entry, exit time.Time, startMin, endMin int) bool {
	if !exit.After(entry) {
		return false
	}
	if exit.Sub(entry) >= 24*time.Hour {
		return true
	}

	windowLen := time.Duration(((endMin-startMin)%(24*60)+24*60)%(24*60)) * time.Minute
	dayStart := time.Date(entry.Year(), entry.Month(), entry.Day(), 0, 0, 0, 0, entry.Location())

	// The session spans at most two days, so three window occurrences
	// around it suffice.
	for offset := -1; offset <= 1; offset++ {
		ws := dayStart.Add(time.Duration(offset)*24*time.Hour + time.Duration(startMin)*time.Minute)
		we := ws.Add(windowLen)
		if ws.Before(exit) && entry.Before(we) {
			return true
		}
	}
	return false
}
