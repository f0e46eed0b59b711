package acquire

import (
	"path"
	"time"

	"github.com/cperrin88/acquire/pkg/acqconfig"
	"github.com/cperrin88/acquire/pkg/hashes"
	"github.com/cperrin88/acquire/pkg/protocol"
)

// Status is the lifecycle state of one item.
type Status int

const (
	// StatusIdle means the item waits in a queue.
	StatusIdle Status = iota
	// StatusFetching means a worker holds the item.
	StatusFetching
	// StatusDone means the item completed and verified.
	StatusDone
	// StatusAuthError means verification failed; not retried on the same
	// source.
	StatusAuthError
	// StatusTransientNetworkError means the network gave out after all
	// retries.
	StatusTransientNetworkError
	// StatusError is any other terminal failure.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusDone:
		return "done"
	case StatusAuthError:
		return "auth-error"
	case StatusTransientNetworkError:
		return "transient-network-error"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// ItemDesc names one request: the URI to fetch and how to present it.
type ItemDesc struct {
	URI         string
	Description string
	ShortDesc   string
	Owner       Item
}

// TransactionState tracks the enclosing transaction of an item group.
type TransactionState int

const (
	// TransactionStarted is the only state in which completion callbacks
	// still run.
	TransactionStarted TransactionState = iota
	// TransactionAborted marks a rolled-back transaction.
	TransactionAborted
	// TransactionCommitted marks a finished transaction.
	TransactionCommitted
)

// Transaction is shared by items that succeed or fail together.
type Transaction struct {
	State TransactionState
}

// Item is one caller request riding on a fetched URI. Implementations embed
// ItemBase and override the few predicates that differ per item kind.
type Item interface {
	// GetDesc returns the mutable request description.
	GetDesc() *ItemDesc
	// Base exposes the shared bookkeeping state.
	Base() *ItemBase

	ExpectedHashes() hashes.HashList
	// HashesRequired reports whether the item refuses to complete without
	// verified digests.
	HashesRequired() bool
	// VerifyDone gives the item a veto after hash comparison succeeded.
	VerifyDone(msg *protocol.Message, cfg *MethodConfig) bool
	// MaximumSize caps the transfer, 0 meaning no cap.
	MaximumSize() uint64
	// Custom600Headers returns extra "Key: Value" lines for the acquire
	// message.
	Custom600Headers() []string
	// IsDoomed reports whether the enclosing transaction was aborted;
	// doomed items skip completion callbacks.
	IsDoomed() bool

	Start(msg *protocol.Message, totalSize uint64)
	Done(msg *protocol.Message, received hashes.HashList, cfg *MethodConfig)
	Failed(msg *protocol.Message, cfg *MethodConfig)
}

// ItemBase carries the state every item kind shares: destination, expected
// hashes, retry budget, alternate sources and the visited-URI set used for
// redirect loop detection.
type ItemBase struct {
	Desc       ItemDesc
	DestFile   string
	Status     Status
	Retries    int
	FetchAfter time.Time
	UsedMirror string
	Local      bool
	Complete   bool
	ErrorText  string
	Txn        *Transaction

	expected   hashes.HashList
	altURIs    []string
	badAltURIs map[string]bool
	pastURIs   map[string]bool
}

// GetDesc returns the mutable request description.
func (b *ItemBase) GetDesc() *ItemDesc { return &b.Desc }

// Base returns the shared state itself.
func (b *ItemBase) Base() *ItemBase { return b }

// SetExpectedHashes installs the digests the fetched file must match.
func (b *ItemBase) SetExpectedHashes(l hashes.HashList) { b.expected = l }

// ExpectedHashes returns the digests the fetched file must match.
func (b *ItemBase) ExpectedHashes() hashes.HashList { return b.expected }

// HashesRequired reports whether an expectation exists at all.
func (b *ItemBase) HashesRequired() bool { return !b.expected.Empty() }

// VerifyDone refuses completion when the expectation carries only digests
// below required strength; transfers verified by such sums are treated like
// unverified ones.
func (b *ItemBase) VerifyDone(*protocol.Message, *MethodConfig) bool {
	if !b.expected.Empty() && !b.expected.Usable() {
		return false
	}
	return true
}

// MaximumSize caps the transfer; the base has no cap.
func (b *ItemBase) MaximumSize() uint64 { return 0 }

// Custom600Headers returns extra acquire-message lines; the base has none.
func (b *ItemBase) Custom600Headers() []string { return nil }

// IsDoomed reports whether the enclosing transaction was aborted.
func (b *ItemBase) IsDoomed() bool {
	return b.Txn != nil && b.Txn.State != TransactionStarted
}

// Start marks the item in flight.
func (b *ItemBase) Start(_ *protocol.Message, _ uint64) {
	b.Status = StatusFetching
}

// Done marks the item complete.
func (b *ItemBase) Done(_ *protocol.Message, _ hashes.HashList, _ *MethodConfig) {
	b.Status = StatusDone
	b.Complete = true
}

// Failed records the failure text. Status values the worker pinned down
// beforehand (auth, transient) are kept.
func (b *ItemBase) Failed(msg *protocol.Message, _ *MethodConfig) {
	if b.Status == StatusIdle || b.Status == StatusFetching {
		b.Status = StatusError
	}
	b.ErrorText = msg.Get("Message")
	if reason := msg.Get("FailReason"); reason != "" {
		if b.ErrorText != "" {
			b.ErrorText += " "
		}
		b.ErrorText += "(" + reason + ")"
	}
}

// FailMessage records the failure text of an attempt that will be retried.
func (b *ItemBase) FailMessage(msg *protocol.Message) {
	b.ErrorText = msg.Get("Message")
}

// PushAlternativeURI adds a fallback source to the top of the stack.
func (b *ItemBase) PushAlternativeURI(uri string) {
	if uri == "" {
		return
	}
	b.altURIs = append([]string{uri}, b.altURIs...)
}

// PopAlternativeURI removes and returns the next fallback source that has
// not been ruled out yet.
func (b *ItemBase) PopAlternativeURI() (string, bool) {
	for len(b.altURIs) > 0 {
		uri := b.altURIs[0]
		b.altURIs = b.altURIs[1:]
		if b.badAltURIs[uri] {
			continue
		}
		return uri, true
	}
	return "", false
}

// IsGoodAlternativeURI reports whether the URI has not been ruled out as a
// fallback.
func (b *ItemBase) IsGoodAlternativeURI(uri string) bool {
	return !b.badAltURIs[uri]
}

// RemoveAlternativeSite rules out every fallback hosted on the given site.
func (b *ItemBase) RemoveAlternativeSite(site string) {
	if b.badAltURIs == nil {
		b.badAltURIs = map[string]bool{}
	}
	kept := b.altURIs[:0]
	for _, uri := range b.altURIs {
		if uriSiteOnly(uri) == site {
			b.badAltURIs[uri] = true
			continue
		}
		kept = append(kept, uri)
	}
	b.altURIs = kept
}

// IsRedirectionLoop reports whether the URI was visited before, recording
// the visit either way.
func (b *ItemBase) IsRedirectionLoop(uri string) bool {
	if b.pastURIs == nil {
		b.pastURIs = map[string]bool{}
		// the starting point counts as visited
		b.pastURIs[b.Desc.URI] = true
	}
	if _, seen := b.pastURIs[uri]; seen {
		return true
	}
	b.pastURIs[uri] = true
	return false
}

// FileItem fetches one URI into a destination file. This is the plain item
// kind callers use directly.
type FileItem struct {
	ItemBase
}

// NewFileItem creates an item for uri landing at dest. The retry budget
// comes from Acquire::Retries.
func NewFileItem(uri, dest string, expected hashes.HashList, conf *acqconfig.Config) *FileItem {
	it := &FileItem{}
	it.DestFile = dest
	it.SetExpectedHashes(expected)
	it.Retries = conf.FindI("Acquire::Retries", 3)
	it.Local = uriScheme(uri) == "file" || uriScheme(uri) == "copy"
	it.Desc = ItemDesc{
		URI:         uri,
		Description: archiveLabel(uriSiteOnly(uri)) + " " + path.Base(uri),
		ShortDesc:   path.Base(uri),
		Owner:       it,
	}
	return it
}
