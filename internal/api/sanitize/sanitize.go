package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	notePolicyOnce sync.Once
	notePolicy     *bluemonday.Policy
)

// Text escapes free text that is reflected verbatim, such as search
// keywords echoed into admin listings.
func Text(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}

// Note strips every tag from admin-entered free text. Tags, assigned-user
// labels and notes are echoed back into admin tooling, so they pass through
// the strict policy rather than plain escaping.
func Note(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}
	return getNotePolicy().Sanitize(value)
}

func NotePtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := Note(*input)
	if value == "" {
		return nil
	}
	return &value
}

func getNotePolicy() *bluemonday.Policy {
	notePolicyOnce.Do(func() {
		notePolicy = bluemonday.StrictPolicy()
	})
	return notePolicy
}
