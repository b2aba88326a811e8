package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/loykin/forgekeeper/pkg/client"
	"github.com/spf13/cobra"
)

func addRemoteFlags(cmd *cobra.Command, flags *RemoteFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://localhost:3000/api", "agent API base URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func newClient(flags *RemoteFlags) *client.Client {
	return client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout})
}

func createStatusCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the managed server",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient(flags).Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
	addRemoteFlags(cmd, flags)
	return cmd
}

func printStatus(w io.Writer, st *client.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func createCommandCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command <line>",
		Short: "Send a console command to the running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(flags).Command(cmd.Context(), strings.Join(args, " "))
		},
	}
	addRemoteFlags(cmd, flags)
	return cmd
}

func createSubmitCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <install|mods|start|stop|kill>",
		Short: "Queue a lifecycle operation from a {server, task} JSON document",
		Long: `Queue a lifecycle operation. The request document is read from --file,
or from stdin when --file is "-" or empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), flags, client.Operation(args[0]))
		},
	}
	addRemoteFlags(cmd, flags)
	cmd.Flags().StringVar(&flags.File, "file", "", "request JSON file (default stdin)")
	return cmd
}

func runSubmit(ctx context.Context, stdin io.Reader, out io.Writer, flags *RemoteFlags, op client.Operation) error {
	if !op.Valid() {
		return fmt.Errorf("unknown operation %q", op)
	}
	var (
		data []byte
		err  error
	)
	if flags.File == "" || flags.File == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(flags.File)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("request is not valid JSON")
	}
	acc, err := newClient(flags).Submit(ctx, op, data)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "accepted %s (task %s)\n", acc.Operation, acc.TaskID)
	return nil
}
