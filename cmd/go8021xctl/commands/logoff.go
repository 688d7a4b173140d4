package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logoffCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "logoff",
		Short: "Trigger (or clear) a user-initiated EAPOL-Logoff",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			conn, obj, err := dialSupplicant()
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			active := !clear
			if err := obj.Call(interfaceName+".Logoff", 0, active).Err; err != nil {
				return fmt.Errorf("call Logoff: %w", err)
			}

			if active {
				fmt.Println("logoff asserted")
			} else {
				fmt.Println("logoff cleared")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "clear a previously asserted logoff instead of asserting one")

	return cmd
}
