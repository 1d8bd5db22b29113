package domain

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultHomePage is the page a fresh PageSource starts on
const DefaultHomePage = "https://www.youtube.com"

// SourceProvider supplies the locator of the thing to download
type SourceProvider interface {
	CurrentLocator() (string, error)
}

// StaticSource always returns the same locator
type StaticSource string

func (s StaticSource) CurrentLocator() (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("%w: no current locator", ErrInvalidRequest)
	}
	return string(s), nil
}

// NormalizeLocator prefixes http:// onto typed input that has no scheme
func NormalizeLocator(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "http") {
		return raw
	}
	return "http://" + raw
}

// PageSource tracks the page the user currently has open
type PageSource struct {
	mu      sync.RWMutex
	home    string
	current string
}

// NewPageSource creates a page source positioned on home
func NewPageSource(home string) *PageSource {
	if home == "" {
		home = DefaultHomePage
	}
	home = NormalizeLocator(home)
	return &PageSource{home: home, current: home}
}

// Navigate opens the typed locator and returns the normalized form
func (p *PageSource) Navigate(raw string) (string, error) {
	loc := NormalizeLocator(raw)
	if loc == "" {
		return "", fmt.Errorf("%w: empty locator", ErrInvalidRequest)
	}
	p.mu.Lock()
	p.current = loc
	p.mu.Unlock()
	return loc, nil
}

// Home navigates back to the home page
func (p *PageSource) Home() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.home
	return p.current
}

func (p *PageSource) CurrentLocator() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}
