package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Env is a read-only layered view of configuration variables. Values set in
// the ambient process environment win over values read from a dotenv file.
type Env struct {
	file    map[string]string
	ambient func(string) string
}

// LoadEnv reads the dotenv file at path. A missing file yields an Env backed
// only by the process environment.
func LoadEnv(path string) (Env, error) {
	env := Env{file: map[string]string{}, ambient: os.Getenv}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return env, fmt.Errorf("read %s: %w", path, err)
	}

	env.file = parseDotenv(data)
	return env, nil
}

// Get returns the ambient value for key when it is non-empty, otherwise the
// file value.
func (e Env) Get(key string) string {
	if e.ambient != nil {
		if v := e.ambient(key); v != "" {
			return v
		}
	}
	return e.file[key]
}

// parseDotenv reads KEY=VALUE lines. Values are taken literally apart from
// one surrounding pair of matching quotes; there is no escape, comment or
// variable expansion inside a value. Lines without a separator or key are
// skipped, and the first occurrence of a key wins.
func parseDotenv(data []byte) map[string]string {
	out := map[string]string{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		if _, seen := out[key]; !seen {
			out[key] = unquote(strings.TrimSpace(value))
		}
	}

	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
			return v[1 : len(v)-1]
		}
	}
	return v
}
