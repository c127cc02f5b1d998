package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"soapscribe/internal/app"
	"soapscribe/internal/pipeline"
)

type ui struct {
	title func(a ...interface{}) string
	err   func(a ...interface{}) string
	dim   func(a ...interface{}) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// newGenerateCmd runs the pipeline on a local file. The file is copied into the upload
// store first, so the caller's original is never removed.
func newGenerateCmd(cfgPath *string, opts app.Options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Generate a SOAP note and patient summary from a local transcript or recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI()
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			a, err := setup(ctx, *cfgPath, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.Logger.Sync()

			src, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			file, err := a.Uploads.SaveReader(ctx, filepath.Base(args[0]), src)
			src.Close()
			if err != nil {
				return fmt.Errorf("stage %s: %w", args[0], err)
			}

			var spin *spinner.Spinner
			if !quiet {
				spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				spin.Suffix = " Generating documents..."
				spin.Start()
			}
			result, err := a.Orchestrator.Run(ctx, file)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%s)\n", ui.err("[ERROR]"), err, pipeline.Classify(err))
				return err
			}

			fmt.Fprintf(out, "%s\n%s\n\n", ui.title("SOAP Note"), result.SoapNote)
			fmt.Fprintf(out, "%s\n%s\n", ui.title("Patient Summary"), result.PatientSummary)
			fmt.Fprintln(cmd.ErrOrStderr(), ui.dim("source: "+file.OriginalName))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable the progress spinner")
	return cmd
}
