package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hrygo/divinechat/server/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for an owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if owner == "" {
			return errors.New("--owner is required")
		}

		instanceProfile := loadProfile()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}
		token, err := auth.GenerateAccessToken(owner, []byte(instanceProfile.Secret), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("owner", "", "owner id the token authenticates as")
	tokenCmd.Flags().Duration("ttl", auth.DefaultAccessTokenDuration, "token lifetime")
}
