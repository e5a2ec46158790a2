package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lsm/fnsdk/internal/config"
)

// RunValidate checks a runtime configuration file.
func RunValidate(args []string, out io.Writer) error {
	if isHelp(args) {
		_, _ = fmt.Fprintln(out, "Usage: fnsdk validate [path]\n\nValidates a runtime configuration file (default: ./fnsdk.yaml).")
		return nil
	}

	path := "./fnsdk.yaml"
	if len(args) > 0 && args[0] != "" {
		path = args[0]
	}

	cfg, err := config.NewLoader(path, nil).Load()
	if err != nil {
		problems := splitErrors(err)
		_, _ = fmt.Fprintf(out, "Found %d problem(s) in %s:\n", len(problems), path)
		for _, p := range problems {
			_, _ = fmt.Fprintf(out, "  - %s\n", p)
		}
		return fmt.Errorf("%s is invalid", path)
	}

	_, _ = fmt.Fprintf(out, "%s is valid: function %q, %s trigger, %s codec (keys=%s batch=%t)\n",
		path, cfg.Name, cfg.Trigger.Kind, cfg.Codec.Format, cfg.Codec.Keys, cfg.Codec.Batch)
	return nil
}

// splitErrors turns a joined error into one line per problem.
func splitErrors(err error) []string {
	if err == nil {
		return nil
	}
	var result []string
	for _, p := range strings.Split(err.Error(), "\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
