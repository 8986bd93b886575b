package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdfmaster/internal/artifact"
	"pdfmaster/internal/backend"
	fileutil "pdfmaster/internal/file"
	"pdfmaster/internal/tool"
	"pdfmaster/internal/workflow"
)

// optionFlags are forwarded to tool.ParseOptions when set on the command line.
var optionFlags = []string{"ranges", "level", "password", "text", "position"}

type processOptions struct {
	toolKey    string
	output     string
	backendURL string
	timeout    time.Duration
	values     map[string]*string
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{values: make(map[string]*string, len(optionFlags))}
	cmd := &cobra.Command{
		Use:   "process --tool <key> [flags] <file>...",
		Short: "Run one tool against local files and save the result",
		Example: `  pdfmaster process --tool merge -o merged.pdf a.pdf b.pdf
  pdfmaster process --tool compress --level high in.pdf
  pdfmaster process --tool watermark --text DRAFT --position top-left in.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backendURL := root.cfg.BackendURL
			if opts.backendURL != "" {
				backendURL = strings.TrimRight(opts.backendURL, "/")
			}
			timeout := root.cfg.RequestTimeout
			if opts.timeout > 0 {
				timeout = opts.timeout
			}
			values := make(map[string]string)
			for name, v := range opts.values {
				if cmd.Flags().Changed(name) {
					values[name] = *v
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := runProcess(ctx, backend.New(backendURL), opts.toolKey, values, args, opts.output, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.toolKey, "tool", "t", "", "tool key (merge, split, compress, image-to-pdf, pdf-to-image, unlock, watermark)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: the tool's suggested name)")
	cmd.Flags().StringVar(&opts.backendURL, "backend", "", "backend base URL (overrides config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "request timeout (overrides config)")
	for _, name := range optionFlags {
		opts.values[name] = cmd.Flags().String(name, "", name+" option")
	}
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

// runProcess drives one controller from Ready to a terminal state and writes
// the artifact to output. It returns the path written.
func runProcess(ctx context.Context, client workflow.Processor, key string, values map[string]string, inputs []string, output string, timeout time.Duration) (string, error) {
	desc, err := tool.Lookup(key)
	if err != nil {
		return "", err
	}
	opts, err := tool.ParseOptions(desc.Key, values)
	if err != nil {
		return "", err
	}

	files := make([]workflow.FileHandle, 0, len(inputs))
	for _, p := range inputs {
		data, err := os.ReadFile(p) //nolint:gosec // paths come from the operator
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		files = append(files, workflow.NewFileHandle(filepath.Base(p), "", data))
	}

	scratch, err := os.MkdirTemp("", "pdfmaster-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = fileutil.RemoveDir(scratch) }()
	store, err := artifact.NewDiskStore(scratch)
	if err != nil {
		return "", err
	}

	ctrl, err := workflow.New(desc, client, store,
		workflow.WithTimeout(timeout),
		workflow.WithLogger(log.With().Str("tool", string(desc.Key)).Logger()),
	)
	if err != nil {
		return "", err
	}
	defer ctrl.Close()

	snap, err := ctrl.SelectFiles(files, workflow.SourcePicker)
	if err != nil {
		return "", err
	}
	if len(snap.Files) == 0 {
		return "", fmt.Errorf("no input matches %s (accepts %s)", desc.Key, desc.Accept)
	}
	if dropped := len(files) - len(snap.Files); dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(snap.Files)).Msg("some inputs were not accepted by the tool")
	}

	if _, err := ctrl.Submit(ctx, opts); err != nil {
		return "", err
	}
	// The controller always settles: the request carries a deadline and
	// ctx cancellation fails it as canceled.
	snap, err = ctrl.Wait(context.Background())
	if err != nil {
		return "", err
	}
	if snap.State != workflow.StateSucceeded {
		return "", &workflow.Error{Kind: snap.ErrorKind, Message: snap.Error}
	}

	rc, _, name, err := ctrl.OpenResult(context.Background())
	if err != nil {
		return "", err
	}
	defer rc.Close()
	if output == "" {
		output = name
	}
	size, err := fileutil.CopyAtomic(output, rc)
	if err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	log.Info().Str("path", output).Int64("bytes", size).Msg("result written")
	return output, nil
}
