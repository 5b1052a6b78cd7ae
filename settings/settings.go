// Package settings holds the business configuration cache.
//
// Formatting helpers all over a client need the currency symbol or tax rate
// synchronously, without subscribing to anything. The Cache is that
// explicitly-owned singleton: it starts from defaults, is replaced wholesale
// by Load, and hands out snapshots via Current.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MuhibNayem/quantify-go/api"
	"github.com/MuhibNayem/quantify-go/pkg/observe"
)

// Settings is the server-managed business configuration.
type Settings struct {
	CurrencySymbol              string
	Timezone                    string
	Locale                      string
	BusinessName                string
	ReturnWindowDays            float64
	TaxRatePercentage           float64
	LoyaltyPointsEarningRate    float64
	LoyaltyPointsRedemptionRate float64
	LoyaltyTierSilver           float64
	LoyaltyTierGold             float64
	LoyaltyTierPlatinum         float64
}

// Defaults returns the configuration used before the first successful Load
// and for any field the server omits or garbles.
func Defaults() Settings {
	return Settings{
		CurrencySymbol:              "$",
		Timezone:                    "UTC",
		Locale:                      "en-US",
		BusinessName:                "Quantify Business",
		ReturnWindowDays:            30,
		TaxRatePercentage:           0,
		LoyaltyPointsEarningRate:    1,
		LoyaltyPointsRedemptionRate: 0.01,
		LoyaltyTierSilver:           500,
		LoyaltyTierGold:             2500,
		LoyaltyTierPlatinum:         10000,
	}
}

// Cache is the process-wide settings holder with an explicit load lifecycle.
type Cache struct {
	client *api.Client
	logger *slog.Logger
	obs    *observe.Observable[Settings]
}

// NewCache creates a Cache seeded with Defaults. Nothing is fetched until
// Load is called.
func NewCache(client *api.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client: client,
		logger: logger,
		obs:    observe.New(Defaults()),
	}
}

// Current returns the latest settings snapshot.
func (c *Cache) Current() Settings {
	return c.obs.Get()
}

// Subscribe registers fn for synchronous delivery of every settings
// replacement and returns an unsubscribe function.
func (c *Cache) Subscribe(fn func(Settings)) (unsubscribe func()) {
	return c.obs.Subscribe(fn)
}

// Load fetches the server configuration and replaces the cache wholesale.
// The payload is decoded leniently: numeric fields may arrive as numbers or
// strings, and any missing, empty, zero, or unparsable field keeps its
// default. On error the previous snapshot stays in place.
func (c *Cache) Load(ctx context.Context) error {
	var raw map[string]json.RawMessage
	if err := c.client.Get(ctx, "/settings/configurations", &raw); err != nil {
		c.logger.Warn("settings load failed", "error", err)
		return fmt.Errorf("load settings: %w", err)
	}

	d := Defaults()
	s := Settings{
		CurrencySymbol:              stringOr(raw, "currency_symbol", d.CurrencySymbol),
		Timezone:                    stringOr(raw, "timezone", d.Timezone),
		Locale:                      d.Locale,
		BusinessName:                stringOr(raw, "business_name", d.BusinessName),
		ReturnWindowDays:            numberOr(raw, "return_window_days", d.ReturnWindowDays),
		TaxRatePercentage:           numberOr(raw, "tax_rate_percentage", d.TaxRatePercentage),
		LoyaltyPointsEarningRate:    numberOr(raw, "loyalty_points_earning_rate", d.LoyaltyPointsEarningRate),
		LoyaltyPointsRedemptionRate: numberOr(raw, "loyalty_points_redemption_rate", d.LoyaltyPointsRedemptionRate),
		LoyaltyTierSilver:           numberOr(raw, "loyalty_tier_silver", d.LoyaltyTierSilver),
		LoyaltyTierGold:             numberOr(raw, "loyalty_tier_gold", d.LoyaltyTierGold),
		LoyaltyTierPlatinum:         numberOr(raw, "loyalty_tier_platinum", d.LoyaltyTierPlatinum),
	}

	c.obs.Set(s)
	c.logger.Debug("settings loaded", "business", s.BusinessName, "timezone", s.Timezone)
	return nil
}

func stringOr(raw map[string]json.RawMessage, key, fallback string) string {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return fallback
	}
	return s
}

// numberOr accepts a JSON number or a numeric string. A zero value falls
// back too, matching the server's convention that zero means unset.
func numberOr(raw map[string]json.RawMessage, key string, fallback float64) float64 {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fallback
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fallback
		}
		f = parsed
	}
	if f == 0 {
		return fallback
	}
	return f
}
