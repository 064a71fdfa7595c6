// Package platform maps platform host names to the scraper that produces
// their snapshots.
package platform

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed platforms.yaml
var builtin []byte

// Platform is one scraper and the host keywords that identify it.
type Platform struct {
	ID       string   `yaml:"id"`
	Keywords []string `yaml:"keywords"`
}

// Registry resolves a host name to a platform scraper id.
type Registry struct {
	Default   string     `yaml:"default"`
	Platforms []Platform `yaml:"platforms"`
}

// UnknownScraperError is returned when no platform matches a host and the
// registry has no default.
type UnknownScraperError struct {
	Domain string
}

func (e *UnknownScraperError) Error() string {
	return fmt.Sprintf("no scraper platform known for domain %q", e.Domain)
}

// Builtin returns the registry compiled into the binary.
func Builtin() (*Registry, error) { return Parse(builtin) }

// Load reads a registry from path, or returns the builtin one when path is empty.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML registry document.
func Parse(b []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("platform: decode registry: %w", err)
	}
	seen := make(map[string]bool, len(r.Platforms))
	for i, p := range r.Platforms {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("platform: entry %d has no id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("platform: duplicate id %q", id)
		}
		seen[id] = true
		r.Platforms[i].ID = id
		for j, kw := range p.Keywords {
			r.Platforms[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	r.Default = strings.TrimSpace(r.Default)
	return &r, nil
}

// Infer returns the scraper id for domain: the first platform with a
// keyword contained in the host, else the default.
func (r *Registry) Infer(domain string) (string, error) {
	host := strings.ToLower(domain)
	for _, p := range r.Platforms {
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(host, kw) {
				return p.ID, nil
			}
		}
	}
	if r.Default != "" {
		return r.Default, nil
	}
	return "", &UnknownScraperError{Domain: domain}
}
