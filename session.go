package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// loadSession restores cookies saved by a previous run. It returns the number
// of cookies restored; a missing file restores nothing.
func loadSession(ctx context.Context, page Page, path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read session state: %w", err)
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return 0, fmt.Errorf("parse session state %s: %w", path, err)
	}
	if len(cookies) == 0 {
		return 0, nil
	}

	if err := page.SetCookies(ctx, cookies); err != nil {
		return 0, fmt.Errorf("restore cookies: %w", err)
	}
	return len(cookies), nil
}

// saveSession writes every browser cookie to path.
func saveSession(ctx context.Context, page Page, path string) (int, error) {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get cookies: %w", err)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, fmt.Errorf("write session state: %w", err)
	}
	return len(cookies), nil
}
