package testing

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

// HTMLAssert checks rendered markup with plain substring and pattern
// matching.
type HTMLAssert struct {
	t    testing.TB
	html string
}

// NewHTMLAssert creates a new HTML assertion helper.
func NewHTMLAssert(t testing.TB, html string) *HTMLAssert {
	return &HTMLAssert{t: t, html: html}
}

// HasElement asserts that the HTML contains a <tag and every attribute
// snippet in attrs.
func (ha *HTMLAssert) HasElement(tag string, attrs ...string) *HTMLAssert {
	ha.t.Helper()

	if !strings.Contains(ha.html, "<"+tag) {
		ha.t.Errorf("element <%s> not found in HTML:\n%s", tag, ha.html)
		return ha
	}
	for _, attr := range attrs {
		if !strings.Contains(ha.html, attr) {
			ha.t.Errorf("attribute %q not found in HTML:\n%s", attr, ha.html)
		}
	}
	return ha
}

// HasText asserts that the HTML contains text.
func (ha *HTMLAssert) HasText(text string) *HTMLAssert {
	ha.t.Helper()
	if !strings.Contains(ha.html, text) {
		ha.t.Errorf("text %q not found in HTML:\n%s", text, ha.html)
	}
	return ha
}

// NoText asserts that the HTML does not contain text.
func (ha *HTMLAssert) NoText(text string) *HTMLAssert {
	ha.t.Helper()
	if strings.Contains(ha.html, text) {
		ha.t.Errorf("text %q should not be in HTML:\n%s", text, ha.html)
	}
	return ha
}

// HasClass asserts that some element carries class.
func (ha *HTMLAssert) HasClass(class string) *HTMLAssert {
	ha.t.Helper()
	pattern := fmt.Sprintf(`class="([^"]* )?%s( [^"]*)?"`, regexp.QuoteMeta(class))
	if !regexp.MustCompile(pattern).MatchString(ha.html) {
		ha.t.Errorf("class %q not found in HTML:\n%s", class, ha.html)
	}
	return ha
}

// HasID asserts that some element has the given id.
func (ha *HTMLAssert) HasID(id string) *HTMLAssert {
	ha.t.Helper()
	return ha.HasText(fmt.Sprintf(`id="%s"`, id))
}
