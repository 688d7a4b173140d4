package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// statusView mirrors the (paeState, backendState, portStatus, portValid)
// tuple returned by the daemon's Status D-Bus method.
type statusView struct {
	PAEState     string `json:"pae_state"`
	BackendState string `json:"backend_state"`
	PortStatus   string `json:"port_status"`
	PortValid    bool   `json:"port_valid"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the supplicant's current PAE/Backend state and port authorization",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			conn, obj, err := dialSupplicant()
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			var pae, backend, port string
			var valid bool
			if err := obj.Call(interfaceName+".Status", 0).Store(&pae, &backend, &port, &valid); err != nil {
				return fmt.Errorf("call Status: %w", err)
			}

			view := statusView{PAEState: pae, BackendState: backend, PortStatus: port, PortValid: valid}

			out, err := formatStatus(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format status: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}

func formatStatus(v statusView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal status to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "PAE State:\t%s\n", v.PAEState)
		fmt.Fprintf(w, "Backend State:\t%s\n", v.BackendState)
		fmt.Fprintf(w, "Port Status:\t%s\n", v.PortStatus)
		fmt.Fprintf(w, "Port Valid:\t%t\n", v.PortValid)
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

const (
	formatJSON  = "json"
	formatTable = "table"
)
