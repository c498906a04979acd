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

// idpconnect is the command-line harness for the identity-provider risk
// connector. It plays the host framework's role for one-shot invocations:
// running an inventory sync, applying a membership change, or pushing a risk
// score.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanushreekurup-crest/idp-risk-connector/internal/connector"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/log"
	"github.com/tanushreekurup-crest/idp-risk-connector/internal/provider"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := newRootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "idpconnect",
		Short: "Identity-provider risk connector",
		Long: `idpconnect syncs an identity provider's application inventory and maps
externally computed risk scores onto provider group memberships.

Configuration is a YAML file holding the provider base URL, the API token,
and optional retry, rate-limit, and risk-band settings. The API token is a
secret and never appears in logs or output.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "idpconnect.yaml", "Path to configuration file")

	cmd.AddCommand(newSyncCommand(&configPath))
	cmd.AddCommand(newAddGroupCommand(&configPath))
	cmd.AddCommand(newRemoveGroupCommand(&configPath))
	cmd.AddCommand(newPushScoreCommand(&configPath))
	cmd.AddCommand(newValidateCommand(&configPath))

	return cmd
}

// build loads configuration and assembles a connector around the given sink.
func build(configPath string, sink *jsonSink) (*connector.Connector, error) {
	cfg, err := connector.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := log.New(log.FromEnv())
	if sink == nil {
		sink = &jsonSink{out: os.Stdout}
	}

	return connector.New(cfg, sink, logger)
}

// jsonSink streams normalized applications as JSON lines.
type jsonSink struct {
	out   *os.File
	count int
}

func (s *jsonSink) HandleApplications(ctx context.Context, apps []provider.Application) error {
	enc := json.NewEncoder(s.out)
	for _, app := range apps {
		if err := enc.Encode(app); err != nil {
			return err
		}
		s.count++
	}
	return nil
}

func newSyncCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the application inventory",
		Long: `Sync walks the provider's paginated application list and writes each
normalized application to stdout as a JSON line. An interrupted sync persists
its cursor and resumes from the first unprocessed page on the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := &jsonSink{out: os.Stdout}
			c, err := build(*configPath, sink)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Sync(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Synced %d applications across %d pages (%d skipped)\n",
				result.Applications, result.Pages, result.Skipped)
			return nil
		},
	}
}

func newAddGroupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-group <user-id> <group-id>",
		Short: "Add a user to a provider group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(*configPath, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.AddToGroup(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("User %s added to group %s\n", args[0], args[1])
			return nil
		},
	}
}

func newRemoveGroupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-group <user-id> <group-id>",
		Short: "Remove a user from a provider group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(*configPath, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.RemoveFromGroup(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("User %s removed from group %s\n", args[0], args[1])
			return nil
		},
	}
}

func newPushScoreCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "push-score <user-id> <score>",
		Short: "Push a risk score, moving the user to its tier group",
		Long: `Push-score resolves the score to a configured risk band and transitions
the user's tier group membership: the previous tier's group is removed, the
resolved tier's group added. A user is in at most one tier group at a time.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("score must be an integer, got %q", args[1])
			}

			c, err := build(*configPath, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.PushRiskScore(cmd.Context(), args[0], score)
			if err != nil {
				return err
			}

			if result.Changed {
				fmt.Printf("User %s moved to tier %q (group %s)\n", args[0], result.Tier, result.GroupID)
			} else {
				fmt.Printf("User %s already in tier %q (group %s)\n", args[0], result.Tier, result.GroupID)
			}
			return nil
		},
	}
}

func newValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and provider connectivity",
		Long: `Validate checks the configuration file, then probes the provider with a
minimal authenticated read to verify the base URL and credential.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(*configPath, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Validate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Configuration valid, provider reachable")
			return nil
		},
	}
}
