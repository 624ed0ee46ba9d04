package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/docparse/internal/pipeline"
)

var (
	processDocumentID  string
	processSessionID   string
	processInstanceURL string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single document and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Pipeline.Process(ctx, pipeline.Request{
			DocumentID:  processDocumentID,
			SessionID:   processSessionID,
			InstanceURL: processInstanceURL,
		})
		if res != nil {
			if err := writeResult(os.Stdout, res); err != nil {
				return err
			}
		}
		return runErr
	},
}

// writeResult prints a run result as indented JSON.
func writeResult(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func init() {
	processCmd.Flags().StringVar(&processDocumentID, "document-id", "", "Salesforce ContentVersion ID")
	processCmd.Flags().StringVar(&processSessionID, "session-id", os.Getenv("DOCPARSE_SESSION_ID"), "Salesforce session ID (default $DOCPARSE_SESSION_ID)")
	processCmd.Flags().StringVar(&processInstanceURL, "instance-url", os.Getenv("DOCPARSE_INSTANCE_URL"), "Salesforce instance URL (default $DOCPARSE_INSTANCE_URL)")
	_ = processCmd.MarkFlagRequired("document-id")
	rootCmd.AddCommand(processCmd)
}
