package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDecideCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decide [field_id]",
		Short: "Produce one decision report and print it as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(cmd, flags, args)
		},
	}
}

// runDecide prints the report and succeeds for every decision outcome,
// maintenance included. Only usage and setup errors fail.
func runDecide(cmd *cobra.Command, flags *rootFlags, args []string) error {
	fieldID := defaultFieldID
	if len(args) == 1 {
		id, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("invalid field id %q: must be an integer", args[0])
		}
		fieldID = id
	}

	cfg, log, err := flags.load(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start(ctx)
	a.awaitReading(ctx, fieldID)

	report := a.service.Decide(ctx, fieldID)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
