package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docparse/internal/failure"
	"github.com/sells-group/docparse/internal/pipeline"
)

var (
	batchSessionID   string
	batchInstanceURL string
	batchLimit       int
)

var batchCmd = &cobra.Command{
	Use:   "batch <ids-file>",
	Short: "Process every document ID listed in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open ids file")
		}
		ids, err := readIDs(f)
		_ = f.Close()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		if batchLimit > 0 && len(ids) > batchLimit {
			ids = ids[:batchLimit]
		}

		sum := processBatch(ctx, ids, cfg.Batch.MaxConcurrent, func(ctx context.Context, id string) (*pipeline.Result, error) {
			return env.Pipeline.Process(ctx, pipeline.Request{
				DocumentID:  id,
				SessionID:   batchSessionID,
				InstanceURL: batchInstanceURL,
			})
		})
		fmt.Fprintln(os.Stdout, sum)

		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d documents failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchSessionID, "session-id", os.Getenv("DOCPARSE_SESSION_ID"), "Salesforce session ID (default $DOCPARSE_SESSION_ID)")
	batchCmd.Flags().StringVar(&batchInstanceURL, "instance-url", os.Getenv("DOCPARSE_INSTANCE_URL"), "Salesforce instance URL (default $DOCPARSE_INSTANCE_URL)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// readIDs reads one document ID per line, skipping blanks and # comments.
func readIDs(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read ids file")
	}
	return ids, nil
}

// processFunc runs one document.
type processFunc func(ctx context.Context, documentID string) (*pipeline.Result, error)

// batchSummary counts the outcomes of a batch.
type batchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

func (s batchSummary) String() string {
	return fmt.Sprintf("processed %d documents: %d succeeded, %d failed (%s)",
		s.Total, s.Succeeded, s.Failed, s.Duration.Round(time.Millisecond))
}

// processBatch runs every ID through proc with at most concurrency runs in
// flight. A failed document never stops the others.
func processBatch(ctx context.Context, ids []string, concurrency int, proc processFunc) batchSummary {
	start := time.Now()
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(ids)),
		zap.Int("concurrency", concurrency),
	)

	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, id := range ids {
		g.Go(func() error {
			res, err := proc(gctx, id)
			if err != nil {
				failed.Add(1)
				fields := []zap.Field{
					zap.String("document_id", id),
					zap.String("kind", string(failure.KindOf(err))),
					zap.Error(err),
				}
				if res != nil {
					fields = append(fields, zap.String("run_id", res.RunID))
				}
				zap.L().Warn("batch: document failed", fields...)
				return nil
			}
			succeeded.Add(1)
			zap.L().Info("batch: document processed",
				zap.String("document_id", id),
				zap.String("run_id", res.RunID),
				zap.Int("pages", res.NumPages),
				zap.Int("characters", res.NumCharacters),
			)
			return nil
		})
	}

	_ = g.Wait()

	sum := batchSummary{
		Total:     len(ids),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	zap.L().Info("batch complete",
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int64("duration_ms", sum.Duration.Milliseconds()),
	)
	return sum
}
