package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/isometry/replicad/internal/config"
	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// NewBindCommand creates the bind command.
func NewBindCommand(rootOpts *RootOptions) *cobra.Command {
	var replicas []string

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Check that each replica accepts the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBind(cmd.Context(), rootOpts, replicas, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&replicas, "replica", nil, "replica name to check (repeatable; default all)")

	return cmd
}

func runBind(ctx context.Context, rootOpts *RootOptions, replicas []string, w io.Writer) error {
	cfg, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	targets, err := cfg.Targets(replicas...)
	if err != nil {
		return WrapExitError(ExitCommandError, "select replicas", err)
	}

	sessions := ldapclient.NewSessionManager(append(cfg.SessionOptions(), rootOpts.sessionOptions...)...)

	failed := 0
	for _, target := range targets {
		if err := sessions.Bind(ctx, target); err != nil {
			failed++
			fmt.Fprintf(w, "%s\tfailed\t%v\n", target.Name, err)
			continue
		}

		identity := target.BindDN
		if target.AuthMethod == ldapclient.AuthMethodKerberos && target.LastPrincipal() != "" {
			identity = target.LastPrincipal()
		}
		fmt.Fprintf(w, "%s\tok\t%s as %s\n", target.Name, target.AuthMethod, identity)

		if err := sessions.Teardown(ctx, target); err != nil {
			fmt.Fprintf(w, "%s\twarning\t%v\n", target.Name, err)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d replicas failed to bind", failed, len(targets)))
	}
	return nil
}
