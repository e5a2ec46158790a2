package cli

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lsm/fnsdk/pkg/codec"
	"github.com/lsm/fnsdk/pkg/event"
)

const encodeUsage = `Usage: fnsdk encode [--file <path>] [--base64] [--armored-input] [codec flags]

Reads events as JSON lines (the output of 'fnsdk decode') and writes them as
wire messages. Without --batch each event becomes its own message.

Flags:
  --file            JSON lines file (default: stdin)
  --base64          Write one base64 line per message instead of raw bytes
  --armored-input   Input bodies are base64-armored, as 'fnsdk decode' prints byte bodies
` + codecFlagsHelp

// RunEncode turns JSON event lines into wire messages.
func RunEncode(args []string, in io.Reader, out io.Writer) error {
	if isHelp(args) {
		_, _ = fmt.Fprintln(out, encodeUsage)
		return nil
	}

	opts, err := parseCodecFlags(args)
	if err != nil {
		return err
	}
	events, err := readEvents(args, in)
	if err != nil {
		return err
	}
	msgs, err := encodeEvents(opts, events)
	if err != nil {
		return err
	}

	asBase64 := parseBoolFlag(args, "--base64")
	if !asBase64 && len(msgs) > 1 {
		return fmt.Errorf("%d messages cannot be written as raw bytes; use --batch or --base64", len(msgs))
	}
	for _, m := range msgs {
		if asBase64 {
			_, err = fmt.Fprintln(out, base64.StdEncoding.EncodeToString(m))
		} else {
			_, err = out.Write(m)
		}
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

// readEvents parses JSON event lines from --file or in.
func readEvents(args []string, in io.Reader) ([]*event.Event, error) {
	src, closeFn, err := inputFrom(args, in)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	bodies := codec.BodyRaw
	if parseBoolFlag(args, "--armored-input") {
		bodies = codec.BodyBase64
	}
	dec, err := codec.New(codec.Options{Format: codec.FormatJSON, BodyEncoding: bodies, Diagnostics: event.Discard})
	if err != nil {
		return nil, err
	}

	var events []*event.Event
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		res, err := dec.Decode([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		events = append(events, res.Events...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events found in input")
	}
	return events, nil
}

func encodeEvents(opts codec.Options, events []*event.Event) ([][]byte, error) {
	enc, err := codec.NewEncoder(opts)
	if err != nil {
		return nil, err
	}
	if opts.Batch {
		m, err := enc.Encode(events...)
		if err != nil {
			return nil, fmt.Errorf("encode batch: %w", err)
		}
		return [][]byte{m}, nil
	}
	msgs := make([][]byte, 0, len(events))
	for i, e := range events {
		m, err := enc.Encode(e)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", i+1, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func inputFrom(args []string, in io.Reader) (io.Reader, func(), error) {
	path, err := parseStringFlag(args, "--file")
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		if in == nil {
			in = os.Stdin
		}
		return in, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
