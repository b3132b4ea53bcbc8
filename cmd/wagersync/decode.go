package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wagerSync/internal/config"
	"wagerSync/internal/evm"
	"wagerSync/internal/model"
	"wagerSync/internal/solana"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var decodeLine lineDecoder
	switch cfg.Source {
	case "evm":
		decoder, err := evm.NewBetDecoder(evm.DecoderConfig{Topic0Map: cfg.Topic0Map})
		if err != nil {
			return err
		}
		decodeLine = evmLineDecoder(decoder)
	case "solana":
		idl, err := solana.LoadIDL(cfg.IDLPath)
		if err != nil {
			return err
		}
		decoder, err := solana.NewDecoder(idl)
		if err != nil {
			return err
		}
		decodeLine = solanaLineDecoder(decoder)
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("source", cfg.Source),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
	)

	stats, err := decodeStream(inputFile, decodeLine, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)
	return nil
}

type decodeStats struct {
	total, decoded, skipped, failed int
}

// lineDecoder turns one input line into zero or more events. Errors that do
// not stop the line are returned in failures.
type lineDecoder func(line []byte) (events []*model.CanonicalEvent, failures []model.DecodeError, skipped int)

func decodeStream(in io.Reader, decodeLine lineDecoder, out, errs *jsonlWriter) (decodeStats, error) {
	var stats decodeStats

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.total++

		events, failures, skipped := decodeLine(line)
		stats.skipped += skipped
		stats.failed += len(failures)
		for _, f := range failures {
			writeDecodeError(errs, f)
		}
		for _, ev := range events {
			if err := out.Write(ev); err != nil {
				return stats, err
			}
			stats.decoded++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func evmLineDecoder(decoder evm.Decoder) lineDecoder {
	return func(line []byte) ([]*model.CanonicalEvent, []model.DecodeError, int) {
		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, []model.DecodeError{{Source: "evm", Error: err.Error()}}, 0
		}
		if len(record.Topics) == 0 {
			return nil, []model.DecodeError{decodeErrorFromRecord(record, fmt.Errorf("missing topic0"))}, 0
		}
		if !decoder.CanDecode(record.Topics[0]) {
			return nil, nil, 1
		}
		event, err := decoder.Decode(record)
		if err != nil {
			return nil, []model.DecodeError{decodeErrorFromRecord(record, err)}, 0
		}
		return []*model.CanonicalEvent{event}, nil, 0
	}
}

func solanaLineDecoder(decoder *solana.Decoder) lineDecoder {
	return func(line []byte) ([]*model.CanonicalEvent, []model.DecodeError, int) {
		var tx model.ScanTransaction
		if err := json.Unmarshal(line, &tx); err != nil {
			return nil, []model.DecodeError{{Source: "solana", Error: err.Error()}}, 0
		}
		if tx.Meta == nil {
			return nil, []model.DecodeError{{Source: "solana", Error: "missing meta"}}, 0
		}
		sig := strings.Join(tx.Signatures, ",")

		var (
			events   []*model.CanonicalEvent
			failures []model.DecodeError
			skipped  int
		)
		for _, pd := range solana.ProgramDataLines(tx.Meta.LogMessages) {
			event, err := decoder.Decode(pd.Payload)
			if errors.Is(err, solana.ErrUnknownEvent) {
				skipped++
				continue
			}
			if err != nil {
				failures = append(failures, model.DecodeError{
					Source: "solana",
					TxHash: sig,
					Line:   strconv.Itoa(pd.Line),
					Error:  err.Error(),
				})
				continue
			}
			events = append(events, event)
		}
		return events, failures, skipped
	}
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		Source:      "evm",
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}

func writeDecodeError(writer *jsonlWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
