package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"planbase/internal/policy"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect table policy configuration",
	}
	cmd.AddCommand(newPolicyCheckCmd())
	return cmd
}

func newPolicyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <policy.yaml>",
		Short: "Validate a policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := policy.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("policy file is invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy file is valid: %d table(s)\n", reg.Tables())
			return nil
		},
	}
}
