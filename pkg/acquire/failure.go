package acquire

import (
	"time"

	"github.com/cperrin88/acquire/internal/logger"
	"github.com/cperrin88/acquire/pkg/protocol"
)

// transientReasons are failure reasons worth retrying on the same source.
var transientReasons = map[string]bool{
	"Timeout":            true,
	"ConnectionRefused":  true,
	"ConnectionTimedOut": true,
	"ResolveFailure":     true,
	"TmpResolveFailure":  true,
}

// authReasons are failure reasons that disqualify the source, not the
// network.
var authReasons = map[string]bool{
	"HashSumMismatch":     true,
	"WeakHashSums":        true,
	"MaximumSizeExceeded": true,
}

// classifyFailure sorts a 400 record into transient, authentication or
// other.
func classifyFailure(msg *protocol.Message) (transient, auth bool) {
	if msg.GetBool("Transient-Failure", false) {
		return true, false
	}
	reason := msg.Get("FailReason")
	if transientReasons[reason] {
		return true, false
	}
	return false, authReasons[reason]
}

// handleFailure runs the retry policy for every owner of a failed item:
// back-off retry on transient errors while budget remains, then alternate
// sources, then surrender with a status matching the error class. Doomed
// owners skip the queue and their callbacks but still surface UI events.
func (w *Worker) handleFailure(owners []Item, msg *protocol.Message, errTransient, errAuth bool) {
	now := time.Now()
	for _, o := range owners {
		base := o.Base()
		switch {
		case errTransient && !w.config.LocalOnly && base.Retries > 0:
			base.Retries--
			base.FailMessage(msg)
			savedDesc := *o.GetDesc()
			if w.conf.FindB("Acquire::Retries::Delay", true) {
				attempt := w.conf.FindI("Acquire::Retries", 3) - base.Retries - 1
				maxDelay := w.conf.FindI("Acquire::Retries::Delay::Maximum", 30)
				delay := 1 << attempt
				if delay > maxDelay {
					delay = maxDelay
				}
				if w.conf.FindB("Debug::Acquire::Retries", false) {
					logger.Debugf("delaying %s by %d seconds", savedDesc.Description, delay)
				}
				base.FetchAfter = now.Add(time.Duration(delay) * time.Second)
			} else {
				base.FetchAfter = now
			}
			if w.log != nil {
				w.log.Fail(&savedDesc)
			}
			if !o.IsDoomed() {
				w.ownerQ.Owner.Enqueue(o.GetDesc())
			}

		default:
			if errAuth {
				base.RemoveAlternativeSite(uriSiteOnly(o.GetDesc().URI))
			}
			if alt, ok := base.PopAlternativeURI(); ok {
				base.FailMessage(msg)
				desc := o.GetDesc()
				if w.log != nil {
					w.log.Fail(desc)
				}
				w.changeSiteIsMirrorChange(alt, desc, o)
				desc.URI = alt
				if !o.IsDoomed() {
					w.ownerQ.Owner.Enqueue(desc)
				}
				continue
			}

			if errAuth && !o.ExpectedHashes().Empty() {
				base.Status = StatusAuthError
			} else if errTransient {
				base.Status = StatusTransientNetworkError
			}
			savedDesc := *o.GetDesc()
			if !o.IsDoomed() {
				o.Failed(msg, w.config)
			}
			if w.log != nil {
				w.log.Fail(&savedDesc)
			}
		}
	}
}
