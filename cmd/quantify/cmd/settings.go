package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MuhibNayem/quantify-go/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the server's business configuration",
	Long: `Fetch and print the business configuration (currency, timezone, tax rate,
loyalty tiers). Fields the server omits fall back to defaults.`,
	RunE: runSettings,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cache := settings.NewCache(a.client, a.logger)
	if err := cache.Load(cmd.Context()); err != nil {
		return err
	}

	s := cache.Current()
	fmt.Printf("Business:       %s\n", s.BusinessName)
	fmt.Printf("Currency:       %s\n", s.CurrencySymbol)
	fmt.Printf("Timezone:       %s\n", s.Timezone)
	fmt.Printf("Tax rate:       %g%%\n", s.TaxRatePercentage)
	fmt.Printf("Return window:  %g days\n", s.ReturnWindowDays)
	fmt.Printf("Loyalty earn:   %g pts per unit\n", s.LoyaltyPointsEarningRate)
	fmt.Printf("Loyalty redeem: %g per pt\n", s.LoyaltyPointsRedemptionRate)
	fmt.Printf("Tiers:          silver %g, gold %g, platinum %g\n",
		s.LoyaltyTierSilver, s.LoyaltyTierGold, s.LoyaltyTierPlatinum)
	return nil
}
