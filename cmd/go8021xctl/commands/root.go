// Package commands implements the go8021xctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

var (
	// busName is the D-Bus well-known name the daemon owns, set by the
	// --bus-name flag.
	busName string

	// objectPath is the D-Bus object path the supplicant is exported under.
	objectPath string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

const interfaceName = "net.go8021x.Supplicant1"

// rootCmd is the top-level cobra command for go8021xctl.
var rootCmd = &cobra.Command{
	Use:   "go8021xctl",
	Short: "CLI client for the go8021x-supplicant daemon",
	Long:  "go8021xctl talks to the go8021x-supplicant daemon over D-Bus to read status and issue control commands.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&busName, "bus-name", "net.go8021x.Supplicant",
		"D-Bus well-known name owned by the supplicant daemon")
	rootCmd.PersistentFlags().StringVar(&objectPath, "object-path", "/net/go8021x/Supplicant",
		"D-Bus object path the supplicant is exported under")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logoffCmd())
	rootCmd.AddCommand(reauthCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// dialSupplicant connects to the session bus and returns a BusObject bound
// to the daemon's exported interface.
func dialSupplicant() (*dbus.Conn, dbus.BusObject, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("connect session bus: %w", err)
	}

	obj := conn.Object(busName, dbus.ObjectPath(objectPath))
	return conn, obj, nil
}
