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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/apibridge/internal/commands/auth"
	"github.com/tombee/apibridge/internal/commands/policycmd"
	"github.com/tombee/apibridge/internal/commands/serve"
	"github.com/tombee/apibridge/internal/commands/setup"
	"github.com/tombee/apibridge/internal/commands/shared"
	"github.com/tombee/apibridge/internal/commands/spec"
	versioncmd "github.com/tombee/apibridge/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	shared.SetVersion(version, commit, buildDate)

	root := &cobra.Command{
		Use:   "apibridge",
		Short: "Expose a REST API's OpenAPI operations as MCP tools",
		Long: `apibridge turns an OpenAPI-described REST API into a set of MCP tools.

Each operation in the document becomes one validated, policy-filtered tool.
Session tokens are exchanged for upstream credentials through a credential
authority, and credentials are injected only at dispatch time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serve.NewCommand())
	root.AddCommand(setup.NewCommand())
	root.AddCommand(spec.NewCommand())
	root.AddCommand(policycmd.NewCommand())
	root.AddCommand(auth.NewCommand())
	root.AddCommand(versioncmd.NewCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
