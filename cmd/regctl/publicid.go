package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/circle-registration/internal/publicid"
)

func publicIDCmd() *cobra.Command {
	var (
		salt     string
		scope    string
		recordID uint64
		refID    uint64
		at       string
		hashLen  int
	)
	cmd := &cobra.Command{
		Use:   "publicid",
		Short: "Derive the public identifier of a record",
		Long: `Derive the public identifier a record would receive at a given instant.
The salt defaults to PUBLIC_ID_SALT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if salt == "" {
				salt = os.Getenv("PUBLIC_ID_SALT")
			}
			if salt == "" {
				return errors.New("salt is required (--salt or PUBLIC_ID_SALT)")
			}
			when := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339Nano, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				when = t
			}
			g := &publicid.Generator{Salt: salt, HashLen: hashLen, Now: func() time.Time { return when }}
			fmt.Fprintln(cmd.OutOrStdout(), g.Generate(scope, recordID, refID))
			return nil
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "", "deployment salt")
	cmd.Flags().StringVar(&scope, "scope", "applications", "collection: applications or tickets")
	cmd.Flags().Uint64Var(&recordID, "record", 0, "internal record id")
	cmd.Flags().Uint64Var(&refID, "ref", 0, "event or store id")
	cmd.Flags().StringVar(&at, "at", "", "creation instant (RFC 3339), default now")
	cmd.Flags().IntVar(&hashLen, "hash-len", publicid.DefaultHashLen, "hex digits kept from the digest")
	_ = cmd.MarkFlagRequired("record")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}
