package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadEnvStripsQuotes(t *testing.T) {
	path := writeEnvFile(t, `
# credentials
FREEENTRY_TEST_DQ="bar baz"
FREEENTRY_TEST_SQ='single quoted'
  FREEENTRY_TEST_PLAIN =  plain value
FREEENTRY_TEST_EQ=a=b
`)

	env, err := LoadEnv(path)
	require.NoError(t, err)
	require.Equal(t, "bar baz", env.Get("FREEENTRY_TEST_DQ"))
	require.Equal(t, "single quoted", env.Get("FREEENTRY_TEST_SQ"))
	require.Equal(t, "plain value", env.Get("FREEENTRY_TEST_PLAIN"))
	require.Equal(t, "a=b", env.Get("FREEENTRY_TEST_EQ"))
}

func TestLoadEnvAmbientWins(t *testing.T) {
	t.Setenv("FREEENTRY_TEST_FOO", "ambient")
	path := writeEnvFile(t, "FREEENTRY_TEST_FOO=\"from file\"\n")

	env, err := LoadEnv(path)
	require.NoError(t, err)
	require.Equal(t, "ambient", env.Get("FREEENTRY_TEST_FOO"))
	require.Equal(t, "ambient", os.Getenv("FREEENTRY_TEST_FOO"))
}

func TestLoadEnvDoesNotMutateProcessEnv(t *testing.T) {
	path := writeEnvFile(t, "FREEENTRY_TEST_UNSET=value\n")

	env, err := LoadEnv(path)
	require.NoError(t, err)
	require.Equal(t, "value", env.Get("FREEENTRY_TEST_UNSET"))

	_, set := os.LookupEnv("FREEENTRY_TEST_UNSET")
	require.False(t, set)
}

func TestLoadEnvEmptyAmbientFallsBackToFile(t *testing.T) {
	t.Setenv("FREEENTRY_TEST_EMPTY", "")
	path := writeEnvFile(t, "FREEENTRY_TEST_EMPTY=filled\n")

	env, err := LoadEnv(path)
	require.NoError(t, err)
	require.Equal(t, "filled", env.Get("FREEENTRY_TEST_EMPTY"))
}

func TestLoadEnvMissingFile(t *testing.T) {
	t.Setenv("FREEENTRY_TEST_ONLY_AMBIENT", "yes")

	env, err := LoadEnv(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	require.Equal(t, "yes", env.Get("FREEENTRY_TEST_ONLY_AMBIENT"))
	require.Empty(t, env.Get("FREEENTRY_TEST_NOT_THERE"))
}

func TestParseDotenvSkipsMalformedLines(t *testing.T) {
	got := parseDotenv([]byte(`
no separator here
=novalue
# FREEENTRY_TEST_COMMENTED=1
GOOD=1
GOOD=2
`))
	require.Equal(t, map[string]string{"GOOD": "1"}, got)
}

func TestParseDotenvKeepsValuesLiteral(t *testing.T) {
	got := parseDotenv([]byte(`PW1=hunter$2secret
PW2=pass #1
PW3="a$HOME"
PW4="abc
PW5="line\nbreak"
PW6='it"s'
PW7="
PW8=""
`))
	require.Equal(t, map[string]string{
		"PW1": "hunter$2secret",
		"PW2": "pass #1",
		"PW3": "a$HOME",
		"PW4": `"abc`,
		"PW5": `line\nbreak`,
		"PW6": `it"s`,
		"PW7": `"`,
		"PW8": "",
	}, got)
}

func TestLoadEnvCRLF(t *testing.T) {
	path := writeEnvFile(t, "FREEENTRY_TEST_CRLF=\"value\"\r\nFREEENTRY_TEST_NEXT=2\r\n")

	env, err := LoadEnv(path)
	require.NoError(t, err)
	require.Equal(t, "value", env.Get("FREEENTRY_TEST_CRLF"))
	require.Equal(t, "2", env.Get("FREEENTRY_TEST_NEXT"))
}
