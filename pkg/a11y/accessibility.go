// Package a11y provides the kiosk's accessibility preferences and screen
// reader helpers.
package a11y

import (
	"fmt"
	"html"
	"html/template"
)

// Politeness levels for ARIA live regions.
const (
	Polite    = "polite"
	Assertive = "assertive"
)

// Client events pushed by this package.
const (
	EventAnnounce = "announce"
	EventFocus    = "focus"
)

// Pusher sends an event to the browser. *core.Socket implements it.
type Pusher interface {
	Push(event string, payload map[string]any) error
}

// LiveRegion represents an ARIA live region for announcements.
type LiveRegion struct {
	ID string

	// Politeness is "polite" (default) or "assertive".
	Politeness string

	// Atomic determines if the whole region is announced.
	Atomic bool
}

// NewLiveRegion creates a polite, atomic live region.
func NewLiveRegion(id string) *LiveRegion {
	return &LiveRegion{
		ID:         id,
		Politeness: Polite,
		Atomic:     true,
	}
}

// Announce sends message to the region with its default politeness.
func (lr *LiveRegion) Announce(p Pusher, message string) error {
	return lr.AnnounceWithPoliteness(p, message, lr.Politeness)
}

// AnnounceWithPoliteness sends message with the given politeness.
func (lr *LiveRegion) AnnounceWithPoliteness(p Pusher, message, politeness string) error {
	return p.Push(EventAnnounce, map[string]any{
		"id":         lr.ID,
		"message":    message,
		"politeness": politeness,
	})
}

// RenderHTML returns the region's markup. Render it once, outside any
// element the client replaces, so announcements are not lost.
func (lr *LiveRegion) RenderHTML() template.HTML {
	atomic := ""
	if lr.Atomic {
		atomic = ` aria-atomic="true"`
	}
	return template.HTML(fmt.Sprintf(
		`<div id="%s" role="status" aria-live="%s"%s class="sr-only"></div>`,
		html.EscapeString(lr.ID), html.EscapeString(lr.Politeness), atomic,
	))
}

// Announcer provides a simple API for screen reader announcements.
type Announcer struct {
	region *LiveRegion
	pusher Pusher
}

// NewAnnouncer creates an announcer writing to the "announcer" region.
func NewAnnouncer(p Pusher) *Announcer {
	return &Announcer{
		region: NewLiveRegion("announcer"),
		pusher: p,
	}
}

// Announce makes a polite announcement.
func (a *Announcer) Announce(message string) error {
	return a.region.AnnounceWithPoliteness(a.pusher, message, Polite)
}

// AnnounceUrgent makes an assertive announcement.
func (a *Announcer) AnnounceUrgent(message string) error {
	return a.region.AnnounceWithPoliteness(a.pusher, message, Assertive)
}

// RenderHTML returns the HTML for the announcer's region.
func (a *Announcer) RenderHTML() template.HTML {
	return a.region.RenderHTML()
}

// FocusManager moves keyboard focus in the browser.
type FocusManager struct {
	pusher Pusher
}

// NewFocusManager creates a new focus manager.
func NewFocusManager(p Pusher) *FocusManager {
	return &FocusManager{pusher: p}
}

// Focus asks the client to focus the first element matching selector.
func (fm *FocusManager) Focus(selector string) error {
	return fm.pusher.Push(EventFocus, map[string]any{"selector": selector})
}

// SkipLink renders a link that jumps keyboard users to target.
func SkipLink(target, text string) template.HTML {
	return template.HTML(fmt.Sprintf(
		`<a href="#%s" class="skip-link">%s</a>`,
		html.EscapeString(target), html.EscapeString(text),
	))
}
