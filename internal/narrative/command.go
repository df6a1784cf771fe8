package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"sopguard/internal/sop"
)

// CommandPayload is the JSON document written to a command narrator's stdin.
type CommandPayload struct {
	System             string          `json:"system"`
	Batch              int             `json:"batch"`
	Batches            int             `json:"batches"`
	StatisticalContext string          `json:"statistical_context,omitempty"`
	Deviations         []sop.Deviation `json:"deviations"`
}

// Command runs an external program per request: the payload goes to stdin
// and stdout is taken as the response. Any text-generation client can sit
// behind it.
type Command struct {
	Path string
	Args []string
	Env  []string // appended to the inherited environment when non-nil
}

// ParseCommand splits a whitespace-separated command line. Quoting is not
// supported.
func ParseCommand(line string) (*Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, fmt.Errorf("narrator command is empty")
	}
	return &Command{Path: parts[0], Args: parts[1:]}, nil
}

// Narrate implements Narrator.
func (c *Command) Narrate(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(CommandPayload{
		System:             req.System,
		Batch:              req.Batch,
		Batches:            req.Batches,
		StatisticalContext: req.StatisticalContext,
		Deviations:         req.Deviations,
	})
	if err != nil {
		return nil, fmt.Errorf("narrator: encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Env != nil {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("narrator: %s: %w (stderr: %s)", c.Path, err, msg)
	}
	return stdout.Bytes(), nil
}
