package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-coder/codesmith/internal/rpc"
)

// NewSessionCmd groups session lifecycle commands.
func NewSessionCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start or end daemon sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Start a session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			id, err := client.NewSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session and delete its staged files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			return client.EndSession(cmd.Context(), args[0])
		},
	})
	return cmd
}

// NewToolCmd groups tool registry commands.
func NewToolCmd(opts *Options) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage document tools in a session",
	}
	cmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session id")
	_ = cmd.MarkPersistentFlagRequired("session")

	var name, description string
	add := &cobra.Command{
		Use:   "add <file>...",
		Short: "Index documents and register them as a tool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			info, err := client.AddTool(cmd.Context(), sessionID, name, description, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", info.Name)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Tool name the agent will call")
	add.Flags().StringVar(&description, "description", "", "What the documents are about")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tools available for agent creation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			infos, err := client.ListTools(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] Name: %s - Description: %s\n", info.ID, info.Name, info.Description)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// NewAgentCmd creates the session agent.
func NewAgentCmd(opts *Options) *cobra.Command {
	var (
		sessionID string
		names     []string
		ids       []int
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create the session agent from selected tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(names) == 0 && len(ids) == 0 {
				return fmt.Errorf("select tools with --tools or --ids")
			}
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			resp, err := client.CreateAgent(cmd.Context(), sessionID, rpc.CreateAgentRequest{Tools: names, IDs: ids})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent created with tools: %s\n", strings.Join(resp.Tools, ", "))
			if resp.CodeReaderEnabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Code reader enabled: upload code files with `codesmith files upload`")
			}
			return nil
		},
	}
	create.Flags().StringVar(&sessionID, "session", "", "Session id")
	create.Flags().StringSliceVar(&names, "tools", nil, "Tool names to bind (repeatable or comma-separated)")
	create.Flags().IntSliceVar(&ids, "ids", nil, "Tool ids shown by tool list, for tools sharing a name")
	create.MarkFlagsMutuallyExclusive("tools", "ids")
	_ = create.MarkFlagRequired("session")

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the session agent",
	}
	cmd.AddCommand(create)
	return cmd
}

// NewFilesCmd uploads code files for the code reader.
func NewFilesCmd(opts *Options) *cobra.Command {
	var sessionID string
	upload := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload code files the agent can read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(opts)
			if err != nil {
				return err
			}
			names, err := client.UploadCode(cmd.Context(), sessionID, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s\n", strings.Join(names, ", "))
			return nil
		},
	}
	upload.Flags().StringVar(&sessionID, "session", "", "Session id")
	_ = upload.MarkFlagRequired("session")

	cmd := &cobra.Command{
		Use:   "files",
		Short: "Stage code files for the code reader",
	}
	cmd.AddCommand(upload)
	return cmd
}
