package acquire

import (
	"github.com/cperrin88/acquire/pkg/hashes"
	"github.com/cperrin88/acquire/pkg/protocol"
)

// AuxFileItem is a resource a method requested mid-transfer, typically a
// detached signature. It rides on the requesting item's transaction and
// answers the waiting method once it settles, whichever way.
type AuxFileItem struct {
	ItemBase
	parent  Item
	worker  *Worker
	maxSize uint64
}

// NewAuxFileItem builds the sub-item for a 351 Aux Request issued while
// parent was in flight on worker.
func NewAuxFileItem(parent Item, worker *Worker, shortDesc, desc, uri string, expected hashes.HashList, maxSize uint64) *AuxFileItem {
	it := &AuxFileItem{parent: parent, worker: worker, maxSize: maxSize}
	it.DestFile = parent.Base().DestFile + ".aux"
	it.SetExpectedHashes(expected)
	it.Txn = parent.Base().Txn
	it.Desc = ItemDesc{
		URI:         uri,
		Description: desc,
		ShortDesc:   shortDesc,
		Owner:       it,
	}
	return it
}

// MaximumSize caps the transfer at what the requesting method asked for.
func (a *AuxFileItem) MaximumSize() uint64 { return a.maxSize }

// Done completes the sub-item and unblocks the waiting method.
func (a *AuxFileItem) Done(msg *protocol.Message, received hashes.HashList, cfg *MethodConfig) {
	a.ItemBase.Done(msg, received, cfg)
	a.worker.ReplyAux(&a.Desc)
}

// Failed settles the sub-item and unblocks the waiting method with a
// nonexistent path.
func (a *AuxFileItem) Failed(msg *protocol.Message, cfg *MethodConfig) {
	a.ItemBase.Failed(msg, cfg)
	a.worker.ReplyAux(&a.Desc)
}
