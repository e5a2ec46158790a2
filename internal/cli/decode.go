package cli

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lsm/fnsdk/pkg/codec"
)

const decodeUsage = `Usage: fnsdk decode [--file <path>] [--base64] [codec flags]

Decodes wire messages and prints each event as a JSON line. Undecodable
messages or batch elements are reported and make the command fail after the
remaining events have been printed.

Flags:
  --file     Input file (default: stdin)
  --base64   Input holds one base64 message per line; otherwise the whole input is one message
` + codecFlagsHelp

// RunDecode prints the events carried by wire messages.
func RunDecode(args []string, in io.Reader, out io.Writer) error {
	if isHelp(args) {
		_, _ = fmt.Fprintln(out, decodeUsage)
		return nil
	}

	opts, err := parseCodecFlags(args)
	if err != nil {
		return err
	}
	dec, err := codec.New(opts)
	if err != nil {
		return err
	}
	msgs, err := readMessages(args, in)
	if err != nil {
		return err
	}

	var errs []error
	for i, m := range msgs {
		res, err := dec.Decode(m)
		if err != nil {
			errs = append(errs, fmt.Errorf("message %d: %w", i+1, err))
			continue
		}
		for j, e := range res.Events {
			if res.Errors[j] != nil {
				errs = append(errs, fmt.Errorf("message %d: %w", i+1, res.Errors[j]))
				continue
			}
			if _, err := fmt.Fprintln(out, e.ToJSON()); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		}
	}
	return errors.Join(errs...)
}

func readMessages(args []string, in io.Reader) ([][]byte, error) {
	src, closeFn, err := inputFrom(args, in)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if !parseBoolFlag(args, "--base64") {
		b, err := io.ReadAll(src)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("empty input")
		}
		return [][]byte{b}, nil
	}

	var msgs [][]byte
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid base64: %w", lineNum, err)
		}
		msgs = append(msgs, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages found in input")
	}
	return msgs, nil
}
