package collections

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrNotFound      = errors.New("collection not found")
	ErrAlreadyExists = errors.New("collection already exists")
	ErrInvalidName   = errors.New("invalid collection name")
)

// DefaultPattern matches markdown files anywhere under the root.
const DefaultPattern = "**/*.md"

// Collection defines one indexed directory tree.
type Collection struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Pattern string `yaml:"pattern,omitempty"`
	Update  string `yaml:"update,omitempty"` // shell command run before sync
}

// Context is a path-prefix annotation attached to a collection.
type Context struct {
	Collection string `yaml:"collection"`
	Path       string `yaml:"path,omitempty"` // "" annotates the whole collection
	Context    string `yaml:"context"`
}

// Config is the full configuration file.
type Config struct {
	Collections   []Collection `yaml:"collections"`
	Contexts      []Context    `yaml:"contexts,omitempty"`
	GlobalContext string       `yaml:"global_context,omitempty"`
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "qmd", "index.yaml"), nil
}

// Load reads the config file. A missing file is an empty config, not an
// error, so first runs work without setup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range cfg.Collections {
		if cfg.Collections[i].Pattern == "" {
			cfg.Collections[i].Pattern = DefaultPattern
		}
	}
	return &cfg, nil
}

// Save writes the config file, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Get returns the named collection.
func (c *Config) Get(name string) (*Collection, error) {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Add appends a collection after validating the name and path.
func (c *Config) Add(coll Collection) error {
	if !namePattern.MatchString(coll.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, coll.Name)
	}
	if _, err := c.Get(coll.Name); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, coll.Name)
	}
	abs, err := filepath.Abs(coll.Path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	coll.Path = abs
	if coll.Pattern == "" {
		coll.Pattern = DefaultPattern
	}
	c.Collections = append(c.Collections, coll)
	return nil
}

// Remove deletes a collection and its context annotations.
func (c *Config) Remove(name string) error {
	idx := -1
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	c.Collections = append(c.Collections[:idx], c.Collections[idx+1:]...)

	kept := c.Contexts[:0]
	for _, ctx := range c.Contexts {
		if ctx.Collection != name {
			kept = append(kept, ctx)
		}
	}
	c.Contexts = kept
	return nil
}

// Rename changes a collection's name, carrying its contexts along.
func (c *Config) Rename(oldName, newName string) error {
	if !namePattern.MatchString(newName) {
		return fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	if _, err := c.Get(newName); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, newName)
	}
	coll, err := c.Get(oldName)
	if err != nil {
		return err
	}
	coll.Name = newName
	for i := range c.Contexts {
		if c.Contexts[i].Collection == oldName {
			c.Contexts[i].Collection = newName
		}
	}
	return nil
}

// SetContext upserts a context annotation.
func (c *Config) SetContext(collection, path, note string) {
	for i := range c.Contexts {
		if c.Contexts[i].Collection == collection && c.Contexts[i].Path == path {
			c.Contexts[i].Context = note
			return
		}
	}
	c.Contexts = append(c.Contexts, Context{Collection: collection, Path: path, Context: note})
}

// RemoveContext deletes a context annotation if present.
func (c *Config) RemoveContext(collection, path string) bool {
	for i := range c.Contexts {
		if c.Contexts[i].Collection == collection && c.Contexts[i].Path == path {
			c.Contexts = append(c.Contexts[:i], c.Contexts[i+1:]...)
			return true
		}
	}
	return false
}
