// Package acqconfig holds the dotted-key ("A::B::C") configuration tree the
// acquire engine reads. Keys compare case-insensitively; the spelling used
// when a key was first set is kept for dumps. Trees can be populated from
// YAML files, where nesting maps onto the "::" separator.
package acqconfig

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is one configuration tree. The zero value is not usable; create
// trees with New or Load.
type Config struct {
	entries map[string]entry
}

type entry struct {
	spelling string
	value    string
}

// New creates an empty tree.
func New() *Config {
	return &Config{entries: map[string]entry{}}
}

// Load reads a YAML file into a fresh tree. Nested mappings join with "::",
// so "acquire: {retries: 3}" becomes the key "acquire::retries". Keys may
// also be written flat, "::" included.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigRead, path, err)
	}
	var root map[string]interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	cfg := New()
	cfg.merge("", root)
	return cfg, nil
}

func (c *Config) merge(prefix string, node map[string]interface{}) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "::" + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			c.merge(key, child)
		case nil:
			c.Set(key, "")
		case bool:
			c.Set(key, strconv.FormatBool(child))
		default:
			c.Set(key, fmt.Sprint(child))
		}
	}
}

// Set stores a value under the key.
func (c *Config) Set(key, value string) {
	lk := strings.ToLower(key)
	if old, ok := c.entries[lk]; ok {
		c.entries[lk] = entry{spelling: old.spelling, value: value}
		return
	}
	c.entries[lk] = entry{spelling: key, value: value}
}

// Exists reports whether the key is set.
func (c *Config) Exists(key string) bool {
	_, ok := c.entries[strings.ToLower(key)]
	return ok
}

// Find returns the value for key, or def when unset.
func (c *Config) Find(key, def string) string {
	if e, ok := c.entries[strings.ToLower(key)]; ok {
		return e.value
	}
	return def
}

// FindB returns the value for key interpreted as a boolean, or def when
// unset or unparseable.
func (c *Config) FindB(key string, def bool) bool {
	e, ok := c.entries[strings.ToLower(key)]
	if !ok {
		return def
	}
	switch strings.ToLower(e.value) {
	case "true", "yes", "on", "1", "with", "enable":
		return true
	case "false", "no", "off", "0", "without", "disable":
		return false
	}
	return def
}

// FindI returns the value for key interpreted as an integer, or def when
// unset or unparseable.
func (c *Config) FindI(key string, def int) int {
	e, ok := c.entries[strings.ToLower(key)]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(e.value)
	if err != nil {
		return def
	}
	return n
}

// FindDir returns the value for key as a directory path with a trailing
// slash, or def when unset.
func (c *Config) FindDir(key, def string) string {
	v := c.Find(key, def)
	if v != "" && !strings.HasSuffix(v, "/") {
		v += "/"
	}
	return v
}

// Dump returns every item as "Key=Value", sorted by key. The spelling used
// when the key was first set is preserved.
func (c *Config) Dump() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.spelling+"="+e.value)
	}
	sort.Strings(out)
	return out
}

// methodsDirKey is the root of the method binary lookup.
const methodsDirKey = "Dir::Bin::Methods"

// MethodPath resolves the executable for an access scheme. The per-access
// override wins over the default directory. A configured literal "false"
// means the scheme is disabled by policy; callers get that as the typed
// disabled result instead of a magic path value.
func (c *Config) MethodPath(access string) (path string, disabled bool) {
	override := methodsDirKey + "::" + access
	if c.Exists(override) {
		v := c.Find(override, "")
		if v == "false" {
			return "", true
		}
		return v, false
	}
	return c.FindDir(methodsDirKey, "/usr/lib/apt/methods/") + access, false
}

// MethodCallingPath is the path a method believes it was invoked as: always
// the default-directory location, even when an override redirects the real
// executable elsewhere.
func (c *Config) MethodCallingPath(access string) string {
	return c.FindDir(methodsDirKey, "/usr/lib/apt/methods/") + access
}
