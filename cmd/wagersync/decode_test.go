package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wagerSync/internal/evm"
	"wagerSync/internal/model"
)

func TestDecodeStreamEVM(t *testing.T) {
	decoder, err := evm.NewBetDecoder(evm.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	dir := t.TempDir()
	out, err := newJSONLWriter(filepath.Join(dir, "events.jsonl"), false)
	if err != nil {
		t.Fatalf("out: %v", err)
	}
	errs, err := newJSONLWriter(filepath.Join(dir, "errors.jsonl"), false)
	if err != nil {
		t.Fatalf("errors: %v", err)
	}

	input := strings.Join([]string{
		`{"block_number":1,"topics":["0x0000000000000000000000000000000000000000000000000000000000000001"],"data":"0x"}`,
		`{"block_number":2,"topics":[]}`,
		`not json`,
		``,
	}, "\n")

	stats, err := decodeStream(strings.NewReader(input), evmLineDecoder(decoder), out, errs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close out: %v", err)
	}
	if err := errs.Close(); err != nil {
		t.Fatalf("close errors: %v", err)
	}

	if stats.total != 3 || stats.skipped != 1 || stats.failed != 2 || stats.decoded != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	records := readDecodeErrors(t, filepath.Join(dir, "errors.jsonl"))
	if len(records) != 2 {
		t.Fatalf("expected 2 error records, got %d", len(records))
	}
	if records[0].Source != "evm" || records[0].BlockNumber != 2 || records[0].Error != "missing topic0" {
		t.Fatalf("unexpected first error: %+v", records[0])
	}
}

func TestSolanaLineDecoderMissingMeta(t *testing.T) {
	decode := solanaLineDecoder(nil)
	events, failures, skipped := decode([]byte(`{"slot":5,"signatures":["sig"]}`))
	if len(events) != 0 || skipped != 0 {
		t.Fatalf("unexpected output: %v %d", events, skipped)
	}
	if len(failures) != 1 || failures[0].Error != "missing meta" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func readDecodeErrors(t *testing.T, path string) []model.DecodeError {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out []model.DecodeError
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec model.DecodeError
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("parse: %v", err)
		}
		out = append(out, rec)
	}
	return out
}
