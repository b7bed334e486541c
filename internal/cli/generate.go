package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"

	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/rpc/connectjson"
	"github.com/animus-coder/codesmith/internal/rpc/generate"
	"github.com/animus-coder/codesmith/internal/tools"
)

// NewGenerateCmd streams a generation and saves the resulting file.
func NewGenerateCmd(opts *Options) *cobra.Command {
	var (
		sessionID string
		outDir    string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "generate \"<prompt>\"",
		Short: "Run the session agent on a prompt and save the generated code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}
			target, err := resolveTarget(opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			r := &renderer{out: cmd.OutOrStdout(), verbose: verbose}
			req := rpc.GenerateRequest{SessionID: sessionID, Prompt: prompt}
			if target.transport == "ndjson" {
				err = streamNDJSON(ctx, target.baseURL+"/sessions/"+sessionID+"/generate", req, r)
			} else {
				err = streamConnect(ctx, target.baseURL+generate.ConnectGenerateProcedure, req, r)
			}
			if err != nil {
				return err
			}
			if r.result == nil {
				return fmt.Errorf("stream ended without a result")
			}
			return saveResult(cmd, outDir, *r.result)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory the generated file is written to")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print agent reasoning steps")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func streamNDJSON(ctx context.Context, url string, reqBody rpc.GenerateRequest, r *renderer) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 8<<20)
	for scanner.Scan() {
		var evt rpc.GenerateEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := r.render(evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func streamConnect(ctx context.Context, url string, reqBody rpc.GenerateRequest, r *renderer) error {
	client := connect.NewClient[rpc.GenerateStreamRequest, rpc.GenerateEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.GenerateStreamRequest{Generate: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.GenerateStreamRequest{Cancel: true})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := r.render(*evt); err != nil {
			return err
		}
	}
	return stream.CloseResponse()
}

type renderer struct {
	out     io.Writer
	verbose bool
	result  *rpc.GenerateEvent
}

func (r *renderer) render(evt rpc.GenerateEvent) error {
	switch evt.Type {
	case rpc.EventStep:
		if !r.verbose || evt.Step == nil {
			return nil
		}
		if evt.Step.Thought != "" {
			fmt.Fprintf(r.out, "[thought] %s\n", evt.Step.Thought)
		}
		if evt.Step.Action != "" {
			fmt.Fprintf(r.out, "[tool %s] %s\n", evt.Step.Action, evt.Step.ActionInput)
			fmt.Fprintf(r.out, "[observation] %s\n", evt.Step.Observation)
		}
	case rpc.EventNotice:
		fmt.Fprintf(r.out, "[retry] %s\n", evt.Message)
	case rpc.EventResult:
		ev := evt
		r.result = &ev
		fmt.Fprintf(r.out, "%s\n\n%s\n", evt.Description, evt.Code)
	case rpc.EventError:
		return fmt.Errorf("%s", evt.Error)
	case rpc.EventDone:
		fmt.Fprintln(r.out, "[done]")
	}
	return nil
}

func saveResult(cmd *cobra.Command, outDir string, res rpc.GenerateEvent) error {
	name, err := tools.StagedName(res.Filename)
	if err != nil {
		return fmt.Errorf("model suggested an unusable file name: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, []byte(res.Code), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}
