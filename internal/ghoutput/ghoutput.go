// Package ghoutput publishes run values as GitHub Actions step outputs.
package ghoutput

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Write appends values to the GITHUB_OUTPUT file at path. An empty path is a no-op.
func Write(path string, values map[string]string) error {
	path = strings.TrimSpace(path)
	if path == "" || len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open GitHub output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Encode(f, values)
}

// Encode writes values in the step-output format, sorted by name.
// Names are normalized to snake case; multi-line values use a random heredoc delimiter.
func Encode(w io.Writer, values map[string]string) error {
	names := make([]string, 0, len(values))
	byName := make(map[string]string, len(values))
	for k, v := range values {
		name := Name(k)
		if name == "" {
			continue
		}
		names = append(names, name)
		byName[name] = v
	}
	slices.Sort(names)

	for _, name := range names {
		value := byName[name]
		var err error
		if strings.ContainsAny(value, "\r\n") {
			delim := "ghadelimiter_" + uuid.NewString()
			_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", name, delim, value, delim)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", name, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Name turns a run value key such as "ci-endpoint" into "ci_endpoint".
func Name(key string) string {
	key = strings.TrimSpace(key)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r == '-' || r == '.' || r == ' ':
			return '_'
		default:
			return -1
		}
	}, key)
}
