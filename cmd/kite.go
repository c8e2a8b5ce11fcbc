package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"options-analytics/services"
)

var kiteCmd = &cobra.Command{
	Use:   "kite",
	Short: "Kite Connect session helpers",
}

var kiteLoginCmd = &cobra.Command{
	Use:   "login [REDIRECT_URL | REQUEST_TOKEN]",
	Short: "Exchange a Kite request token for the daily access token",
	Long: `Without arguments, prints the Kite login URL. Open it, complete 2FA, and pass
the full redirect URL (or just its request_token) back to this command. The
access token is written to kite.access_token_path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			if a.cfg.Kite.APIKey == "" {
				return fmt.Errorf("kite.api_key is required (KITE_API_KEY)")
			}
			fmt.Println(services.KiteLoginURL(a.cfg.Kite.APIKey))
			return nil
		}

		requestToken, err := requestTokenFrom(args[0])
		if err != nil {
			return err
		}

		if _, err := services.GenerateKiteSession(cmd.Context(), a.cfg.Kite, requestToken); err != nil {
			return err
		}
		fmt.Printf("Saved access token to %s\n", a.cfg.Kite.AccessTokenPath)
		return nil
	},
}

func init() {
	kiteCmd.AddCommand(kiteLoginCmd)
}

// requestTokenFrom accepts either a redirect URL carrying request_token or the bare token
func requestTokenFrom(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if !strings.Contains(arg, "://") {
		return arg, nil
	}

	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	token := u.Query().Get("request_token")
	if token == "" {
		return "", fmt.Errorf("redirect url has no request_token")
	}
	return token, nil
}
