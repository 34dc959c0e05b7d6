// Package envfile reads KEY=VALUE environment files.
package envfile

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Load parses the environment file at path. Blank lines and lines starting
// with '#' are skipped. Values may contain '='; one pair of matching surrounding
// quotes is removed. Lines with an empty key or value are dropped.
func Load(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("environment file: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		vars[key] = unquote(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

// unquote strips one pair of matching single or double quotes.
func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// MaskedKeys returns "KEY=***" for every key of vars, sorted.
func MaskedKeys(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k := range vars {
		out = append(out, k+"=***")
	}
	sort.Strings(out)
	return out
}
