// Package state persists duel-cli settings between runs.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// State is what the CLI remembers across sessions.
type State struct {
	BaseURL     string `json:"baseUrl,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	// RoomID is the last room the user created or joined.
	RoomID string `json:"roomId,omitempty"`
}

// Load reads path. A missing or empty file yields a zero State.
func Load(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("read state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse state failed: %w", err)
	}
	return st, nil
}

// Save writes st with owner only permissions since it holds a token.
func Save(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write state failed: %w", err)
	}
	return nil
}

// Clear removes the state file.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state failed: %w", err)
	}
	return nil
}
