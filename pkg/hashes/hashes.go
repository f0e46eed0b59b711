// Package hashes models the named-digest lists used to verify fetched files.
// A list is a multiset keyed by algorithm name; algorithm names compare
// case-insensitively, digest values compare exactly.
package hashes

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cperrin88/acquire/pkg/protocol"
)

// Supported algorithm names, strongest first.
var supported = []string{"SHA512", "SHA256", "SHA1", "MD5Sum"}

// strong digests satisfy HashList.Usable.
var strong = map[string]bool{"sha512": true, "sha256": true}

// fileSizeType is the pseudo-algorithm some methods use to report the byte
// count of the transferred file.
const fileSizeType = "Checksum-FileSize"

// Hash is one named digest.
type Hash struct {
	Type  string
	Value string
}

// String renders the digest as "Type:Value".
func (h Hash) String() string { return h.Type + ":" + h.Value }

// HashList is an ordered multiset of named digests plus an optional reported
// file size.
type HashList struct {
	list     []Hash
	fileSize uint64
}

// Supported returns the algorithm names the engine can compute.
func Supported() []string {
	out := make([]string, len(supported))
	copy(out, supported)
	return out
}

// Append adds a digest to the list.
func (l *HashList) Append(h Hash) {
	l.list = append(l.list, h)
}

// SetFileSize records the reported transfer size.
func (l *HashList) SetFileSize(n uint64) { l.fileSize = n }

// FileSize returns the reported transfer size, or 0 when none was given.
func (l HashList) FileSize() uint64 { return l.fileSize }

// Empty reports whether the list carries no digests.
func (l HashList) Empty() bool { return len(l.list) == 0 }

// Hashes returns the digests in insertion order.
func (l HashList) Hashes() []Hash {
	out := make([]Hash, len(l.list))
	copy(out, l.list)
	return out
}

// Find returns the digest for the given algorithm, matching the name
// case-insensitively.
func (l HashList) Find(typ string) (Hash, bool) {
	for _, h := range l.list {
		if strings.EqualFold(h.Type, typ) {
			return h, true
		}
	}
	return Hash{}, false
}

// Usable reports whether the list carries at least one digest of required
// strength.
func (l HashList) Usable() bool {
	for _, h := range l.list {
		if strong[strings.ToLower(h.Type)] {
			return true
		}
	}
	return false
}

// Equal reports multiset equality: both lists name the same algorithms and
// agree on every digest.
func (l HashList) Equal(o HashList) bool {
	if len(l.list) != len(o.list) {
		return false
	}
	used := make([]bool, len(o.list))
	for _, h := range l.list {
		found := false
		for i, oh := range o.list {
			if used[i] {
				continue
			}
			if strings.EqualFold(h.Type, oh.Type) && h.Value == oh.Value {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FromMessage collects every "<prefix><Algo>-Hash" field of the record into a
// list. The "<prefix>Checksum-FileSize-Hash" pseudo-entry becomes the list's
// file size.
func FromMessage(prefix string, msg *protocol.Message) HashList {
	var l HashList
	for _, typ := range supported {
		if v := msg.Get(prefix + typ + "-Hash"); v != "" {
			l.Append(Hash{Type: typ, Value: v})
		}
	}
	l.fileSize = msg.GetUint64(prefix+fileSizeType+"-Hash", 0)
	return l
}

// ComputeFile reads the file and computes one digest per algorithm named in
// selector, so recomputed lists stay comparable to the expectation that
// prompted them.
func ComputeFile(path string, selector HashList) (HashList, error) {
	var out HashList
	if selector.Empty() {
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return out, WrapFileOpen(path, err)
	}
	defer f.Close()

	var hashers []hash.Hash
	var types []string
	var writers []io.Writer
	for _, want := range selector.list {
		h := newHasher(want.Type)
		if h == nil {
			continue
		}
		hashers = append(hashers, h)
		types = append(types, want.Type)
		writers = append(writers, h)
	}
	if len(hashers) == 0 {
		return out, nil
	}

	size, err := io.Copy(io.MultiWriter(writers...), f)
	if err != nil {
		return out, WrapFileRead(path, err)
	}
	for i, h := range hashers {
		out.Append(Hash{Type: types[i], Value: hex.EncodeToString(h.Sum(nil))})
	}
	out.fileSize = uint64(size)
	return out, nil
}

func newHasher(typ string) hash.Hash {
	switch strings.ToLower(typ) {
	case "sha512":
		return sha512.New()
	case "sha256":
		return sha256.New()
	case "sha1":
		return sha1.New()
	case "md5sum":
		return md5.New()
	}
	return nil
}
