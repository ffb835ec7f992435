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

// Package spec implements the spec command group for managing the service's
// OpenAPI document.
package spec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/apibridge/internal/catalog"
	"github.com/tombee/apibridge/internal/commands/shared"
	"github.com/tombee/apibridge/internal/config"
)

// NewCommand creates the spec command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Manage the service's OpenAPI document",
	}
	cmd.AddCommand(newFetchCommand())
	cmd.AddCommand(newLintCommand())
	return cmd
}

func newFetchCommand() *cobra.Command {
	var (
		configPath string
		specURL    string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the OpenAPI document and store it locally",
		Long: `Download the service's OpenAPI document and store it at the configured
spec path. The document is parsed before writing, so a broken spec is never
saved over a working one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(configPath)
			if err != nil {
				return err
			}

			url := specURL
			if url == "" {
				url = cfg.API.SpecURL
			}
			if url == "" {
				return fmt.Errorf("no spec URL; pass --url or set api.spec_url")
			}

			out := outPath
			if out == "" {
				out = cfg.API.SpecPath
			}
			if out == "" {
				return fmt.Errorf("no output path; pass --out or set api.spec_path")
			}

			data, err := shared.FetchDocument(url)
			if err != nil {
				return err
			}

			descriptors, err := catalog.ParseDocument(data)
			if err != nil {
				return fmt.Errorf("fetched document is not a usable spec: %w", err)
			}

			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing spec: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d operations) to %s\n", url, len(descriptors), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the service configuration")
	cmd.Flags().StringVar(&specURL, "url", "", "Spec URL (overrides api.spec_url)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output path (overrides api.spec_path)")

	return cmd
}

func newLintCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Parse the configured spec and report the catalog it would build",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig(configPath)
			if err != nil {
				return err
			}

			descriptors, err := shared.LoadDescriptors(cfg)
			if err != nil {
				return err
			}
			cat, err := catalog.Build(cfg.API.ToolPrefix, descriptors)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d operations:\n", cat.Len())
			for _, def := range cat.Operations() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-40s %s %s\n", def.Identity, def.Method, def.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the service configuration")
	return cmd
}
