package main

import (
	"fmt"
	"os"

	"github.com/lsm/fnsdk/internal/cli"
)

const usage = `fnsdk - function runtime wire codec toolkit

Usage:
  fnsdk <command> [arguments]

Commands:
  encode     Encode JSON event lines into wire messages
  decode     Decode wire messages into JSON event lines
  produce    Encode events and produce them to a Kafka topic
  validate   Validate a runtime configuration file

Run 'fnsdk <command> -h' for help on a specific command.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return nil
	}

	switch os.Args[1] {
	case "encode":
		return cli.RunEncode(os.Args[2:], os.Stdin, os.Stdout)
	case "decode":
		return cli.RunDecode(os.Args[2:], os.Stdin, os.Stdout)
	case "produce":
		return cli.RunProduce(os.Args[2:], os.Stdin, os.Stdout)
	case "validate":
		return cli.RunValidate(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\nRun 'fnsdk help' for usage", os.Args[1])
	}
}
