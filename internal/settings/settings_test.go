package settings

import (
	"context"
	"errors"
	"testing"
)

func TestParseTheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Theme
		wantErr bool
	}{
		{"light", ThemeLight, false},
		{" DARK ", ThemeDark, false},
		{"", "", true},
		{"blue", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTheme(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToggle(t *testing.T) {
	if ThemeLight.Toggle() != ThemeDark || ThemeDark.Toggle() != ThemeLight {
		t.Fatalf("toggle should flip between light and dark")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(Default())

	got, _ := m.GetSettings(ctx)
	if got != Default() {
		t.Fatalf("unexpected initial settings %+v", got)
	}
	if err := m.SaveSettings(ctx, Settings{Theme: ThemeDark, Locale: "it"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = m.GetSettings(ctx)
	if got.Theme != ThemeDark || got.Locale != "it" {
		t.Fatalf("unexpected settings %+v", got)
	}
	if err := m.SaveSettings(ctx, Settings{Theme: "neon", Locale: "it"}); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
	if err := m.SaveSettings(ctx, Settings{Theme: ThemeDark}); err == nil {
		t.Fatalf("expected locale error")
	}
}
