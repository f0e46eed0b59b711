// Package protocol implements the line-oriented record format spoken between
// the acquire engine and its method subprocesses. A record is a status line
// ("CODE Reason") followed by "Key: Value" header lines and a terminating
// blank line.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Message codes the engine understands. Inbound codes come from the method,
// outbound codes are sent to it.
const (
	CodeCapabilities   = 100
	CodeLog            = 101
	CodeStatus         = 102
	CodeRedirect       = 103
	CodeWarning        = 104
	CodeURIStart       = 200
	CodeURIDone        = 201
	CodeAuxRequest     = 351
	CodeURIFailure     = 400
	CodeGeneralFailure = 401
	CodeMediaChange    = 403
	CodeURIAcquire     = 600
	CodeConfiguration  = 601
	CodeMediaChanged   = 603
)

// Message is a single parsed record. Field keys are matched
// case-insensitively; the original spelling of the first occurrence is kept
// for encoding.
type Message struct {
	Code   int
	Reason string

	keys   []string // original spelling, encode order
	fields map[string]string
}

// NewMessage creates an empty record with the given status line.
func NewMessage(code int, reason string) *Message {
	return &Message{Code: code, Reason: reason, fields: map[string]string{}}
}

// Get returns the value for key, or "" when absent.
func (m *Message) Get(key string) string {
	return m.fields[strings.ToLower(key)]
}

// GetDefault returns the value for key, or def when the key is absent.
func (m *Message) GetDefault(key, def string) string {
	if v, ok := m.fields[strings.ToLower(key)]; ok {
		return v
	}
	return def
}

// Has reports whether the key is present.
func (m *Message) Has(key string) bool {
	_, ok := m.fields[strings.ToLower(key)]
	return ok
}

// GetBool interprets the value for key as a boolean. Unparseable or missing
// values yield def.
func (m *Message) GetBool(key string, def bool) bool {
	switch strings.ToLower(m.Get(key)) {
	case "true", "yes", "on", "1", "with", "enable":
		return true
	case "false", "no", "off", "0", "without", "disable":
		return false
	}
	return def
}

// GetUint64 interprets the value for key as an unsigned decimal. Unparseable
// or missing values yield def.
func (m *Message) GetUint64(key string, def uint64) uint64 {
	v := m.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Set stores a field, replacing any previous value under a spelling of the
// same key.
func (m *Message) Set(key, value string) {
	if m.fields == nil {
		m.fields = map[string]string{}
	}
	lk := strings.ToLower(key)
	if _, ok := m.fields[lk]; !ok {
		m.keys = append(m.keys, key)
	}
	m.fields[lk] = value
}

// Keys returns the field names in the order they were first set.
func (m *Message) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of fields.
func (m *Message) Len() int { return len(m.fields) }

// Encode renders the record in wire form, including the terminating blank
// line.
func (m *Message) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s\n", m.Code, m.Reason)
	for _, k := range m.keys {
		fmt.Fprintf(&b, "%s: %s\n", k, m.fields[strings.ToLower(k)])
	}
	b.WriteString("\n")
	return b.String()
}

// String renders the record with newlines quoted, for log output.
func (m *Message) String() string {
	return strings.ReplaceAll(strings.TrimSuffix(m.Encode(), "\n\n"), "\n", "\\n")
}

// Equal reports whether two records carry the same status line and fields.
// Field order does not matter; keys compare case-insensitively.
func (m *Message) Equal(o *Message) bool {
	if m.Code != o.Code || m.Reason != o.Reason || len(m.fields) != len(o.fields) {
		return false
	}
	for k, v := range m.fields {
		ov, ok := o.fields[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
