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

// Package auth implements the auth command group for managing the
// credential authority service key.
package auth

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tombee/apibridge/internal/commands/shared"
	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/secrets"
)

// NewCommand creates the auth command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the credential authority service key",
	}
	cmd.AddCommand(newSetKeyCommand())
	cmd.AddCommand(newClearKeyCommand())
	return cmd
}

func newSetKeyCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the gateway service key in the system keychain",
		Long: `Store the credential authority service key in the system keychain.

The key is prompted interactively and never echoed. Deployments without a
keychain can set AUTH_GATEWAY_API_KEY instead; the environment variable
always wins over the keychain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Service.Name == "" {
				return fmt.Errorf("service.name must be set before storing a key")
			}

			var key string
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title(fmt.Sprintf("Gateway service key for %s:", cfg.Service.Name)).
						Description("Issued by your credential authority administrator").
						EchoMode(huh.EchoModePassword).
						Value(&key).
						Validate(func(s string) error {
							if s == "" {
								return fmt.Errorf("service key is required")
							}
							return nil
						}),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			store := secrets.NewStore()
			if err := store.SetGatewayKey(cfg.Service.Name, key); err != nil {
				if errors.Is(err, secrets.ErrUnavailable) {
					return fmt.Errorf("%w; set AUTH_GATEWAY_API_KEY instead", err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Service key stored for %s", cfg.Service.Name)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the service configuration")
	return cmd
}

func newClearKeyCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear-key",
		Short: "Remove the stored gateway service key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(configPath)
			if err != nil {
				return err
			}

			store := secrets.NewStore()
			if err := store.DeleteGatewayKey(cfg.Service.Name); err != nil {
				if errors.Is(err, secrets.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No key stored for %s\n", cfg.Service.Name)
					return nil
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Service key removed for %s", cfg.Service.Name)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the service configuration")
	return cmd
}
