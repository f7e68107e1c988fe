package workspace

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Ask prompts on w and reads a line from r, re-prompting on an empty
// answer unless def is non-empty, in which case the empty answer
// becomes def. Grounded on original_source's ask.rs ask_user/raw_ask.
func Ask(r *bufio.Reader, w io.Writer, prompt, def string) (string, error) {
	for {
		fmt.Fprintln(w, prompt)
		fmt.Fprint(w, "> ")
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		value := strings.TrimSpace(line)
		if value != "" {
			return value, nil
		}
		if def != "" {
			return def, nil
		}
		fmt.Fprintln(w, "empty value not allowed")
	}
}

// AskGroups prompts for a comma-separated list of dependency groups,
// grounded on original_source's pylock/poetry.rs ask_user_for_groups.
func AskGroups(r *bufio.Reader, w io.Writer) ([]string, error) {
	raw, err := Ask(r, w,
		"Which dependency groups should be kept in the final distribution? "+
			"(comma separated, default: main)",
		"main")
	if err != nil {
		return nil, err
	}
	var groups []string
	for _, g := range strings.Split(raw, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups, nil
}
