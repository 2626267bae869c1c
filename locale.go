package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lang/en_US.yaml
var defaultCatalog []byte

type Locale struct {
	translations map[string]string
	locale       string
}

var (
	globalLocale *Locale

	builtinOnce   sync.Once
	builtinLocale *Locale
)

// InitLocale initializes the global locale system
func InitLocale() error {
	locale := DetectSystemLocale()

	l, err := LoadLocale(locale)
	if err != nil {
		if locale != "en_US" {
			fmt.Fprintf(os.Stderr, "Warning: Failed to load locale '%s', using built-in en_US: %v\n", locale, err)
		}
		globalLocale = builtin()
		return nil
	}

	globalLocale = l
	return nil
}

// DetectSystemLocale detects the user's system locale
func DetectSystemLocale() string {
	for _, key := range []string{"LANG", "LC_ALL", "LC_MESSAGES"} {
		if locale := os.Getenv(key); locale != "" {
			// "en_US.UTF-8" -> "en_US"
			parts := strings.Split(locale, ".")
			if parts[0] != "" && parts[0] != "C" && parts[0] != "POSIX" {
				return parts[0]
			}
		}
	}

	if runtime.GOOS == "windows" {
		if locale := os.Getenv("LANG"); locale != "" {
			return locale
		}
	}

	return "en_US"
}

// LoadLocale loads lang/<locale>.yaml next to the executable. Keys it does
// not define fall back to the built-in catalog.
func LoadLocale(locale string) (*Locale, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	return loadLocaleFile(filepath.Join(filepath.Dir(exePath), "lang", locale+".yaml"), locale)
}

func loadLocaleFile(path, locale string) (*Locale, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locale file %s: %w", path, err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse locale file %s: %w", path, err)
	}

	translations := make(map[string]string, len(builtin().translations))
	for k, v := range builtin().translations {
		translations[k] = v
	}
	for k, v := range overrides {
		translations[k] = v
	}

	return &Locale{translations: translations, locale: locale}, nil
}

func builtin() *Locale {
	builtinOnce.Do(func() {
		translations := map[string]string{}
		if err := yaml.Unmarshal(defaultCatalog, &translations); err != nil {
			panic(fmt.Sprintf("built-in catalog: %v", err))
		}
		builtinLocale = &Locale{translations: translations, locale: "en_US"}
	})
	return builtinLocale
}

// T translates a key with optional fmt parameters. Unknown keys are returned
// unchanged.
func T(key string, params ...interface{}) string {
	l := globalLocale
	if l == nil {
		l = builtin()
	}

	translation, ok := l.translations[key]
	if !ok {
		return key
	}

	if len(params) > 0 {
		return fmt.Sprintf(translation, params...)
	}

	return translation
}

// GetLocale returns the current locale code (e.g., "en_US", "ru_RU")
func GetLocale() string {
	if globalLocale == nil {
		return "en_US"
	}
	return globalLocale.locale
}
