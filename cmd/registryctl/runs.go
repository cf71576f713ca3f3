package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List runs, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	client := newClient()

	if len(args) == 1 {
		var resp map[string]any
		if err := client.getJSON("/run/"+args[0], &resp); err != nil {
			return err
		}
		return printOutput(resp)
	}

	var resp struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := client.getJSON("/run", &resp); err != nil {
		return err
	}

	if outputFmt == "json" || outputFmt == "yaml" {
		return printOutput(resp.Runs)
	}

	rows := make([][]string, 0, len(resp.Runs))
	for _, r := range resp.Runs {
		rows = append(rows, []string{
			fmt.Sprint(r["id"]),
			fmt.Sprint(r["name"]),
			fmt.Sprint(r["status"]),
			fmt.Sprint(r["created_by"]),
		})
	}
	printTable([]string{"ID", "Name", "Status", "Created By"}, rows)
	return nil
}
