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

// Package setup implements the interactive init command.
package setup

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/apibridge/internal/commands/shared"
	"github.com/tombee/apibridge/internal/config"
)

var serviceNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NewCommand creates the init command.
func NewCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a service configuration interactively",
		Long: `Walk through creating a service configuration file.

The wizard asks for the upstream API details and the credential authority,
then writes a service.yaml you can refine by hand. Policies and credential
mappings are left for manual editing; see the examples directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, outPath)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", config.DefaultConfigPath, "Where to write the configuration")
	return cmd
}

func runWizard(cmd *cobra.Command, outPath string) error {
	var (
		name        string
		displayName string
		baseURL     string
		specURL     string
		gatewayURL  string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Service name:").
				Description("Lowercase identifier, also the default tool prefix (e.g. trello)").
				Value(&name).
				Validate(func(s string) error {
					if !serviceNameRe.MatchString(s) {
						return fmt.Errorf("use lowercase letters, digits, and underscores, starting with a letter")
					}
					return nil
				}),
			huh.NewInput().
				Title("Display name:").
				Description("Human-readable name shown in tool output (optional)").
				Value(&displayName),
			huh.NewInput().
				Title("API base URL:").
				Description("Upstream REST API root (e.g. https://api.trello.com/1)").
				Value(&baseURL).
				Validate(validateURL(true)),
			huh.NewInput().
				Title("OpenAPI spec URL:").
				Description("Where to download the OpenAPI document (optional; you can also place it locally)").
				Value(&specURL).
				Validate(validateURL(false)),
			huh.NewInput().
				Title("Credential authority URL:").
				Description("Gateway that exchanges session tokens for API credentials (optional)").
				Value(&gatewayURL).
				Validate(validateURL(false)),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg := config.Config{
		Service: config.ServiceConfig{
			Name:        name,
			DisplayName: displayName,
		},
		API: config.APIConfig{
			BaseURL:    strings.TrimRight(baseURL, "/"),
			SpecPath:   fmt.Sprintf("specs/%s.yaml", name),
			SpecURL:    specURL,
			ToolPrefix: name,
		},
		Auth: config.AuthConfig{
			GatewayURL: gatewayURL,
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first or pass --out", outPath)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, shared.RenderOK("Configuration written to "+outPath))
	fmt.Fprintln(out, "\nNext steps:")
	if specURL != "" {
		fmt.Fprintln(out, "  apibridge spec fetch      # download the OpenAPI document")
	} else {
		fmt.Fprintf(out, "  place your OpenAPI document at specs/%s.yaml\n", name)
	}
	if gatewayURL != "" {
		fmt.Fprintln(out, "  apibridge auth set-key    # store the gateway service key")
	}
	fmt.Fprintln(out, "  apibridge serve           # start the MCP server")
	return nil
}

// validateURL builds a huh validator for http(s) URLs.
func validateURL(required bool) func(string) error {
	return func(s string) error {
		if s == "" {
			if required {
				return fmt.Errorf("required")
			}
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("must be an http(s) URL")
		}
		return nil
	}
}
