package clipboard

import "sync"

// Memory is an in-memory Clipboard for tests and headless environments.
type Memory struct {
	mu      sync.Mutex
	content string
	readErr error
}

func NewMemory(initial string) *Memory {
	return &Memory{content: initial}
}

func (m *Memory) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.content, nil
}

func (m *Memory) Write(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content = content
	return nil
}

// FailReads makes subsequent Read calls return err (nil restores reads).
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}
