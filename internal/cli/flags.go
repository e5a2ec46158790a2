package cli

import (
	"fmt"
	"slices"

	"github.com/lsm/fnsdk/pkg/codec"
	"github.com/lsm/fnsdk/pkg/event"
)

const codecFlagsHelp = `  --format          Wire format: msgpack or json (default: msgpack)
  --keys            Map key typing for msgpack: typed or raw (default: typed)
  --batch           Messages carry an array of events
  --body-encoding   Body armoring: raw or base64 (default: raw)`

func parseStringFlag(args []string, flag string) (string, error) {
	for i, arg := range args {
		if arg == flag {
			if i+1 < len(args) {
				return args[i+1], nil
			}
			return "", fmt.Errorf("flag %s requires a value", flag)
		}
	}
	return "", nil
}

func parseIntFlag(args []string, flag string, defaultVal int) (int, error) {
	str, err := parseStringFlag(args, flag)
	if err != nil {
		return 0, err
	}
	if str == "" {
		return defaultVal, nil
	}
	var val int
	if _, err := fmt.Sscanf(str, "%d", &val); err != nil {
		return 0, fmt.Errorf("invalid value for %s: must be an integer", flag)
	}
	if val < 1 {
		return 0, fmt.Errorf("invalid value for %s: must be >= 1", flag)
	}
	return val, nil
}

// parseBoolFlag reports whether a value-less flag is present.
func parseBoolFlag(args []string, flag string) bool {
	return slices.Contains(args, flag)
}

func isHelp(args []string) bool {
	return len(args) > 0 && (args[0] == "-h" || args[0] == "--help")
}

// parseCodecFlags reads the codec selection shared by every command.
func parseCodecFlags(args []string) (codec.Options, error) {
	opts := codec.Options{
		Format:       codec.FormatMsgpack,
		Keys:         codec.KeysTyped,
		BodyEncoding: codec.BodyRaw,
		Batch:        parseBoolFlag(args, "--batch"),
		Diagnostics:  event.Discard,
	}
	for flag, dst := range map[string]*string{
		"--format":        (*string)(&opts.Format),
		"--keys":          (*string)(&opts.Keys),
		"--body-encoding": (*string)(&opts.BodyEncoding),
	} {
		v, err := parseStringFlag(args, flag)
		if err != nil {
			return codec.Options{}, err
		}
		if v != "" {
			*dst = v
		}
	}
	return opts, nil
}
