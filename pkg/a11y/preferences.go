package a11y

import (
	"context"
	"strings"
)

// Theme is the colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// TextSize is the base font size.
type TextSize string

const (
	TextNormal TextSize = "normal"
	TextLarge  TextSize = "large"
)

// Preferences are the display settings a patient picked at the kiosk. They
// are per session and outlive form restarts.
type Preferences struct {
	Theme        Theme
	TextSize     TextSize
	HighContrast bool
	DyslexicFont bool
}

// DefaultPreferences returns light theme, normal text and no extras.
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight, TextSize: TextNormal}
}

// ToggleTheme switches between light and dark.
func (p Preferences) ToggleTheme() Preferences {
	if p.Theme == ThemeDark {
		p.Theme = ThemeLight
	} else {
		p.Theme = ThemeDark
	}
	return p
}

// ToggleTextSize switches between normal and large text.
func (p Preferences) ToggleTextSize() Preferences {
	if p.TextSize == TextLarge {
		p.TextSize = TextNormal
	} else {
		p.TextSize = TextLarge
	}
	return p
}

// ToggleContrast flips high contrast.
func (p Preferences) ToggleContrast() Preferences {
	p.HighContrast = !p.HighContrast
	return p
}

// ToggleDyslexicFont flips the dyslexia-friendly font.
func (p Preferences) ToggleDyslexicFont() Preferences {
	p.DyslexicFont = !p.DyslexicFont
	return p
}

// Classes returns the CSS classes for the page root.
func (p Preferences) Classes() string {
	classes := make([]string, 0, 4)
	if p.Theme == ThemeDark {
		classes = append(classes, "theme-dark")
	} else {
		classes = append(classes, "theme-light")
	}
	if p.TextSize == TextLarge {
		classes = append(classes, "text-large")
	}
	if p.HighContrast {
		classes = append(classes, "high-contrast")
	}
	if p.DyslexicFont {
		classes = append(classes, "dyslexic-font")
	}
	return strings.Join(classes, " ")
}

type preferencesKey struct{}

// WithPreferences stores p in ctx for rendering.
func WithPreferences(ctx context.Context, p Preferences) context.Context {
	return context.WithValue(ctx, preferencesKey{}, p)
}

// PreferencesFromContext returns the preferences in ctx, or the defaults.
func PreferencesFromContext(ctx context.Context) Preferences {
	if p, ok := ctx.Value(preferencesKey{}).(Preferences); ok {
		return p
	}
	return DefaultPreferences()
}
