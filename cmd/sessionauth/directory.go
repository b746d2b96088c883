package main

import (
	"fmt"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/directory"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

var directoryUsersCmd = &cobra.Command{
	Use:   "directory-users",
	Short: "List active accounts across the configured directory scopes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}

		if !opts.Directory.Enabled() {
			return fmt.Errorf("directory is not configured, set directory.url or LDAP_URL")
		}

		svc := directory.New(directory.FromOptions(opts.Directory), directory.WithLogger(auth.DefaultLogger()))

		identities, err := svc.ListIdentities(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(identities))
		return nil
	},
}
