package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hourlyConfig(partial bool) Config {
	return Config{
		Mode:               ModeHourly,
		HourlyRate:         dec("3.00"),
		PartialHourBilling: partial,
		DailyMaxRate:       dec("20.00"),
	}
}

func TestFreePeriodWaivesFee(t *testing.T) {
	cfg := hourlyConfig(false)
	cfg.FreePeriodMinutes = 15

	got := Calculate(10*time.Minute, monday, cfg)
	assert.True(t, got.IsZero(), "got %s", got)

	got = Calculate(0, monday, cfg)
	assert.True(t, got.IsZero())
}

func TestHourlyWholeHours(t *testing.T) {
	got := Calculate(61*time.Minute, monday, hourlyConfig(false))
	assert.True(t, dec("6.00").Equal(got), "61 minutes should bill as 2 hours, got %s", got)
}

func TestHourlyPartialBilling(t *testing.T) {
	got := Calculate(61*time.Minute, monday, hourlyConfig(true))
	want := dec("61").Div(dec("60")).Mul(dec("3.00"))
	assert.True(t, want.Equal(got), "want %s got %s", want, got)
}

func TestHourlyDailyMaxCap(t *testing.T) {
	got := Calculate(10*time.Hour, monday, hourlyConfig(false))
	assert.True(t, dec("20.00").Equal(got), "10h at 3.00/h must cap at 20.00, got %s", got)
}

func TestHourlyCapPerStartedDay(t *testing.T) {
	// 30h = one full capped day plus 6h remainder.
	got := Calculate(30*time.Hour, monday, hourlyConfig(false))
	assert.True(t, dec("38.00").Equal(got), "got %s", got)
}

func tieredConfig() Config {
	return Config{
		Mode: ModeTiered,
		Tiers: []Tier{
			{Hours: 1, Rate: dec("2.00")},
			{Hours: 3, Rate: dec("5.00")},
			{Hours: 8, Rate: dec("10.00")},
		},
		BeyondMaxPolicy: BeyondMaxPerDay,
	}
}

func TestTieredBrackets(t *testing.T) {
	cfg := tieredConfig()

	got := Calculate(2*time.Hour, monday, cfg)
	assert.True(t, dec("5.00").Equal(got), "2h should hit the 3h tier, got %s", got)

	got = Calculate(30*time.Minute, monday, cfg)
	assert.True(t, dec("2.00").Equal(got), "0.5h should hit the 1h tier, got %s", got)

	got = Calculate(8*time.Hour, monday, cfg)
	assert.True(t, dec("10.00").Equal(got), "boundary stay uses its own tier, got %s", got)
}

func TestTieredBeyondMaxPerDay(t *testing.T) {
	cfg := tieredConfig()
	got := Calculate(26*time.Hour, monday, cfg)
	assert.True(t, dec("20.00").Equal(got), "26h is two started days at top rate, got %s", got)
}

func TestTieredBeyondMaxFlat(t *testing.T) {
	cfg := tieredConfig()
	cfg.BeyondMaxPolicy = BeyondMaxTier
	got := Calculate(26*time.Hour, monday, cfg)
	assert.True(t, dec("10.00").Equal(got), "got %s", got)
}

func TestOvernightRateOverridesMode(t *testing.T) {
	for _, cfg := range []Config{hourlyConfig(false), tieredConfig()} {
		cfg.OvernightRateEnabled = true
		cfg.OvernightRate = dec("10.00")
		cfg.OvernightStart = 20 * 60
		cfg.OvernightEnd = 8 * 60

		entry := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
		got := Calculate(8*time.Hour+30*time.Minute, entry, cfg)
		assert.True(t, dec("10.00").Equal(got), "mode %s got %s", cfg.Mode, got)
	}
}

func TestOvernightWindowMiss(t *testing.T) {
	cfg := hourlyConfig(false)
	cfg.OvernightRateEnabled = true
	cfg.OvernightRate = dec("10.00")
	cfg.OvernightStart = 20 * 60
	cfg.OvernightEnd = 8 * 60

	// 09:00 to 11:00 never touches the window.
	entry := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	got := Calculate(2*time.Hour, entry, cfg)
	assert.True(t, dec("6.00").Equal(got), "got %s", got)
}

func TestWeekendRateSubstitution(t *testing.T) {
	cfg := hourlyConfig(false)
	cfg.WeekendRatesEnabled = true
	cfg.WeekendHourlyRate = dec("1.50")
	cfg.WeekendDailyMaxRate = dec("10.00")

	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	got := Calculate(2*time.Hour, saturday, cfg)
	assert.True(t, dec("3.00").Equal(got), "got %s", got)

	// Weekday entry keeps the standard rate.
	got = Calculate(2*time.Hour, monday, cfg)
	assert.True(t, dec("6.00").Equal(got), "got %s", got)
}

func TestOvernightPrecedesWeekend(t *testing.T) {
	cfg := hourlyConfig(false)
	cfg.WeekendRatesEnabled = true
	cfg.WeekendHourlyRate = dec("1.50")
	cfg.OvernightRateEnabled = true
	cfg.OvernightRate = dec("12.00")
	cfg.OvernightStart = 20 * 60
	cfg.OvernightEnd = 8 * 60

	saturdayNight := time.Date(2026, 3, 7, 22, 0, 0, 0, time.UTC)
	got := Calculate(6*time.Hour, saturdayNight, cfg)
	assert.True(t, dec("12.00").Equal(got), "got %s", got)
}

func TestFixedMode(t *testing.T) {
	cfg := Config{Mode: ModeFixed, FixedRate: dec("7.00")}
	assert.True(t, dec("7.00").Equal(Calculate(5*time.Minute, monday, cfg)))
	assert.True(t, dec("7.00").Equal(Calculate(9*time.Hour, monday, cfg)))
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := map[string]Config{
		"unknown mode":        {Mode: "flat"},
		"negative free":       {Mode: ModeFixed, FreePeriodMinutes: -1},
		"negative rate":       {Mode: ModeHourly, HourlyRate: dec("-1")},
		"no tiers":            {Mode: ModeTiered, BeyondMaxPolicy: BeyondMaxPerDay},
		"non-ascending tiers": {Mode: ModeTiered, BeyondMaxPolicy: BeyondMaxPerDay, Tiers: []Tier{{Hours: 3, Rate: dec("5")}, {Hours: 1, Rate: dec("2")}}},
		"missing beyond-max":  {Mode: ModeTiered, Tiers: []Tier{{Hours: 1, Rate: dec("2")}}},
		"empty overnight":     {Mode: ModeFixed, OvernightRateEnabled: true, OvernightStart: 600, OvernightEnd: 600},
	}
	for name, cfg := range cases {
		err := cfg.Validate()
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidConfig, name)
	}
}

func TestValidateAcceptsGoodConfigs(t *testing.T) {
	assert.NoError(t, hourlyConfig(true).Validate())
	assert.NoError(t, tieredConfig().Validate())

	cfg := tieredConfig()
	cfg.OvernightRateEnabled = true
	cfg.OvernightRate = dec("10.00")
	cfg.OvernightStart = 20 * 60
	cfg.OvernightEnd = 8 * 60
	assert.NoError(t, cfg.Validate())
}

func TestOverlapsDailyWindowWraps(t *testing.T) {
	start, end := 20*60, 8*60

	entry := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	assert.True(t, overlapsDailyWindow(entry, entry.Add(30*time.Minute), start, end))

	// Session entirely before the window opens.
	entry = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.False(t, overlapsDailyWindow(entry, entry.Add(time.Hour), start, end))

	// Session straddling the window start.
	entry = time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
	assert.True(t, overlapsDailyWindow(entry, entry.Add(2*time.Hour), start, end))

	// Early-morning session inside the wrapped tail.
	entry = time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	assert.True(t, overlapsDailyWindow(entry, entry.Add(time.Hour), start, end))
}
