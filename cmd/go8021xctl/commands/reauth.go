package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reauthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reauth",
		Short: "Force a fresh authentication attempt",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			conn, obj, err := dialSupplicant()
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := obj.Call(interfaceName+".Reauthenticate", 0).Err; err != nil {
				return fmt.Errorf("call Reauthenticate: %w", err)
			}

			fmt.Println("reauthentication requested")

			return nil
		},
	}
}
