package clipboard

import (
	"github.com/atotto/clipboard"
)

// Clipboard is the injected platform capability. The sync core only ever
// sees this interface, never a concrete OS clipboard, so everything above
// it is testable with the in-memory fake.
type Clipboard interface {
	// Read returns the current clipboard text.
	Read() (string, error)

	// Write replaces the clipboard content.
	Write(content string) error
}

type system struct{}

// NewSystem returns the real platform clipboard.
func NewSystem() Clipboard {
	return &system{}
}

func (s *system) Read() (string, error) {
	return clipboard.ReadAll()
}

func (s *system) Write(content string) error {
	return clipboard.WriteAll(content)
}
