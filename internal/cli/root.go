// Package cli implements the replicad command line.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
	"github.com/spf13/cobra"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

const defaultLogLevel = "warn"

// ValidLogLevels lists the accepted --log-level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "off"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel   string
	ConfigPath string

	// sessionOptions are appended to those derived from the configuration.
	sessionOptions []ldapclient.SessionOption
}

// NewRootCommand creates the root command for the replicad CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replicad",
		Short: "Replay directory changes against LDAP replicas",
		Long: `replicad applies queued directory change records (add, modify, delete,
modrdn) to replica LDAP servers, rebinding when a replica drops the session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := resolveLogLevel(opts.LogLevel)
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			ctx := tfsdklog.NewRootProviderLogger(cmd.Context(),
				tfsdklog.WithLogName("replicad"),
				tfsdklog.WithLevel(level),
			)
			cmd.SetContext(ldapclient.WithSubsystems(ctx))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "",
		fmt.Sprintf("log level (%s); defaults to $%s or %s",
			strings.Join(ValidLogLevels, "|"), ldapclient.LogEnvVar, defaultLogLevel))
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "replicad.yaml", "replica configuration file")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewBindCommand(opts))

	return cmd
}

// resolveLogLevel picks the flag value, then the environment, then the default.
func resolveLogLevel(flag string) (hclog.Level, error) {
	name := flag
	if name == "" {
		name = os.Getenv(ldapclient.LogEnvVar)
	}
	if name == "" {
		name = defaultLogLevel
	}

	level := hclog.LevelFromString(name)
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("invalid log level %q: must be one of %v", name, ValidLogLevels)
	}
	return level, nil
}
