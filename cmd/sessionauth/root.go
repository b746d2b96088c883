package main

import (
	auth "github.com/goliatone/go-session-auth"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sessionauth",
	Short: "Session token service with local and directory accounts",
	Long: `sessionauth issues signed session cookies for local and directory
accounts, renews them on activity and keeps an audited role ledger.

Configuration is read from a YAML file and overridden by the environment
(SECRET_KEY, DATABASE_DRIVER, DATABASE_DSN, LDAP_URL, LDAP_USER,
LDAP_PASSWORD, DEFAULT_ADMIN_PASSWORD, SECURE_COOKIE).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(resetPasswordCmd)
	rootCmd.AddCommand(directoryUsersCmd)
}

func loadOptions() (*auth.Options, error) {
	return auth.LoadOptions(configPath)
}
