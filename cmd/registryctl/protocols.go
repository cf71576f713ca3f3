package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var protocolsCmd = &cobra.Command{
	Use:   "protocols [id]",
	Short: "List protocols, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProtocols,
}

func runProtocols(cmd *cobra.Command, args []string) error {
	client := newClient()

	if len(args) == 1 {
		var resp map[string]any
		if err := client.getJSON("/protocol/"+args[0], &resp); err != nil {
			return err
		}
		return printOutput(resp)
	}

	var resp struct {
		Protocols []map[string]any `json:"protocols"`
	}
	if err := client.getJSON("/protocol", &resp); err != nil {
		return err
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp.Protocols)
	}

	rows := make([][]string, 0, len(resp.Protocols))
	for _, p := range resp.Protocols {
		rows = append(rows, []string{
			fmt.Sprint(p["id"]),
			fmt.Sprint(p["name"]),
			fmt.Sprint(p["status"]),
			fmt.Sprint(p["created_by"]),
		})
	}
	printTable([]string{"ID", "Name", "Status", "Created By"}, rows)
	return nil
}
