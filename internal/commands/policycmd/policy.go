// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package policycmd implements the policy command group.
package policycmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/apibridge/internal/commands/shared"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/policy"
)

// NewCommand creates the policy command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the service's policy rules",
	}
	cmd.AddCommand(newCheckCommand())
	return cmd
}

func newCheckCommand() *cobra.Command {
	var (
		configPath string
		argsJSON   string
	)

	cmd := &cobra.Command{
		Use:   "check <operation>",
		Short: "Evaluate the policy chain for an operation identity",
		Long: `Evaluate the configured policy chain against an operation identity and
optional call arguments, and print the decision without dispatching anything.

Examples:
  apibridge policy check trello_delete_card
  apibridge policy check jira_create_issue --args '{"project":"SECURITY"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(configPath)
			if err != nil {
				return err
			}

			filter, err := policy.New(cfg.Policies)
			if err != nil {
				return err
			}

			var callArgs map[string]interface{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &callArgs); err != nil {
					return fmt.Errorf("parsing --args: %w", err)
				}
			}

			decision := filter.Evaluate(args[0], callArgs)
			out := map[string]interface{}{
				"operation": args[0],
				"action":    string(decision.Action),
			}
			if decision.Rule != "" {
				out["rule"] = decision.Rule
			}
			if decision.Description != "" {
				out["description"] = decision.Description
			}

			encoded, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the service configuration")
	cmd.Flags().StringVar(&argsJSON, "args", "", "Call arguments as a JSON object for predicate evaluation")

	return cmd
}
