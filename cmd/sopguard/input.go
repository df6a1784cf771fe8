package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sopguard/internal/sop"
)

// readDeviations accepts a JSON array or an object with a "deviations" key.
func readDeviations(path string) ([]sop.Deviation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deviations: %w", err)
	}
	var devs []sop.Deviation
	if err := decodeList(data, "deviations", &devs); err != nil {
		return nil, fmt.Errorf("parse deviations %s: %w", path, err)
	}
	return devs, nil
}

// readLogs accepts a JSON array or an object with a "logs" or
// "workflow_logs" key.
func readLogs(path string) ([]sop.WorkflowLogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	var logs []sop.WorkflowLogEntry
	if err := decodeList(data, "logs", &logs); err != nil {
		if err2 := decodeList(data, "workflow_logs", &logs); err2 != nil {
			return nil, fmt.Errorf("parse logs %s: %w", path, err)
		}
	}
	return logs, nil
}

// readRules loads rules from JSON or YAML, as a list or under "rules".
func readRules(path string) ([]sop.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var rules []sop.Rule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAMLRules(data, &rules)
	default:
		err = decodeList(data, "rules", &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rules, nil
}

// decodeList decodes a bare JSON array, or the array under key when the
// document is an object.
func decodeList[T any](data []byte, key string, out *[]T) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty document")
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return err
	}
	raw, ok := wrapper[key]
	if !ok {
		return fmt.Errorf("no %q key in object", key)
	}
	return json.Unmarshal(raw, out)
}

func decodeYAMLRules(data []byte, out *[]sop.Rule) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		return node.Decode(out)
	}
	var wrapper struct {
		Rules []sop.Rule `yaml:"rules"`
	}
	if err := node.Decode(&wrapper); err != nil {
		return err
	}
	*out = wrapper.Rules
	return nil
}

// output returns the file at path, or stdout when path is empty. The
// returned close func is always safe to call.
func output(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONTo writes v to path, or stdout when path is empty.
func writeJSONTo(stdout io.Writer, path string, v any) error {
	w, closeFn, err := output(stdout, path)
	if err != nil {
		return err
	}
	if err := writeJSON(w, v); err != nil {
		_ = closeFn()
		return fmt.Errorf("write output: %w", err)
	}
	return closeFn()
}
