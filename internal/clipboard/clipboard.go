// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility (wl-copy, xclip, xsel) is available.
var ErrUnsupported = errors.New("no clipboard utility available")

// Clipboard places text on a clipboard.
type Clipboard interface {
	SetString(text string) error
}

// System writes to the desktop clipboard.
type System struct {
	write func(string) error
}

func NewSystem() *System {
	return &System{write: clipboard.WriteAll}
}

// Available reports ErrUnsupported when no clipboard utility was found at startup.
func (s *System) Available() error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return nil
}

func (s *System) SetString(text string) error {
	if err := s.Available(); err != nil {
		return err
	}
	if err := s.write(text); err != nil {
		return fmt.Errorf("failed to write to system clipboard: %w", err)
	}
	return nil
}

// Memory keeps the last copied text in memory. Used when no desktop clipboard is available
// and in tests.
type Memory struct {
	mu     sync.Mutex
	text   string
	copies int
}

func (m *Memory) SetString(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.copies++
	return nil
}

// Text returns the last copied text.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Copies returns how often SetString was called.
func (m *Memory) Copies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies
}
