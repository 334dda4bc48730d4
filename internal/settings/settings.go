// Package settings holds the user-facing presentation preferences that the
// pages and API read explicitly instead of from ambient state.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

var ErrInvalidTheme = errors.New("invalid theme")

// Settings is the explicit replacement for a global theme context.
type Settings struct {
	Theme  Theme  `json:"theme"`
	Locale string `json:"locale"`
}

// Default returns light theme with an English locale.
func Default() Settings {
	return Settings{Theme: ThemeLight, Locale: "en"}
}

// ParseTheme accepts light or dark, case-insensitively.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

func (s Settings) Validate() error {
	if _, err := ParseTheme(string(s.Theme)); err != nil {
		return err
	}
	if strings.TrimSpace(s.Locale) == "" {
		return errors.New("locale is required")
	}
	if len(s.Locale) > 35 {
		return errors.New("locale too long")
	}
	return nil
}

// Store persists settings.
type Store interface {
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// MemoryStore keeps settings in process.
type MemoryStore struct {
	mu sync.RWMutex
	s  Settings
}

func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{s: initial}
}

func (m *MemoryStore) GetSettings(_ context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}
