package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/chanvault/internal/store"
)

const (
	defaultImportBatch = 1000
	maxImportLineBytes = 16 << 20
)

var (
	importBatchSize   int
	importSkipInvalid bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import messages from a JSON Lines file",
	Long: `Import scraped messages from a JSON Lines file, one message object per line.
Use "-" to read from standard input.

Each object carries the message columns, for example:
  {"id": 42, "chat_id": 1001, "chat_name": "golang", "date": "2024-03-01T12:00:00Z",
   "text": "hello", "hashtags": ["go"], "urls": []}

Messages are inserted in batches inside a transaction per batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()
			r = f
		}

		s, err := openLocalStore()
		if err != nil {
			return err
		}
		defer s.Close()

		start := time.Now()
		res, err := importJSONL(cmd.Context(), s, r, importBatchSize, importSkipInvalid)
		if err != nil {
			return err
		}

		logger.Info("import finished",
			"inserted", res.Inserted,
			"skipped", res.Skipped,
			"duration", time.Since(start))
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages (%d lines skipped)\n", res.Inserted, res.Skipped)
		return nil
	},
}

// importResult summarizes a JSONL import.
type importResult struct {
	Lines    int
	Inserted int
	Skipped  int
}

// importJSONL reads one message per line from r and inserts them in batches.
// Blank lines are ignored. A malformed line aborts the import unless
// skipInvalid is set, in which case it is logged and counted.
func importJSONL(ctx context.Context, s *store.Store, r io.Reader, batchSize int, skipInvalid bool) (importResult, error) {
	if batchSize <= 0 {
		batchSize = defaultImportBatch
	}

	var res importResult
	batch := make([]store.Message, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.InsertMessages(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert batch ending at line %d: %w", res.Lines, err)
		}
		res.Inserted += n
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		m, err := parseMessage(line)
		if err != nil {
			if !skipInvalid {
				return res, fmt.Errorf("line %d: %w", res.Lines, err)
			}
			res.Skipped++
			logger.Warn("skipping invalid line", "line", res.Lines, "error", err)
			continue
		}

		batch = append(batch, m)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read input at line %d: %w", res.Lines+1, err)
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

// parseMessage decodes one JSON line and checks the columns the table
// requires.
func parseMessage(line []byte) (store.Message, error) {
	var m store.Message
	if err := json.Unmarshal(line, &m); err != nil {
		return m, err
	}
	return m, validateMessage(m)
}

// validateMessage checks the columns the table requires.
func validateMessage(m store.Message) error {
	if m.ID == 0 {
		return fmt.Errorf("missing id")
	}
	if m.ChatID == 0 {
		return fmt.Errorf("missing chat_id")
	}
	if m.Date.IsZero() {
		return fmt.Errorf("missing date")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", defaultImportBatch, "Messages per insert transaction")
	importCmd.Flags().BoolVar(&importSkipInvalid, "skip-invalid", false, "Skip malformed lines instead of aborting")
}
