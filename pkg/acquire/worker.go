// Package acquire drives external method processes to download URIs into
// destination files, with hash verification, retries and mirror fallback.
// One Worker supervises one method instance; the Runner multiplexes many
// workers over a readiness loop.
package acquire

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/cperrin88/acquire/internal/logger"
	"github.com/cperrin88/acquire/pkg/acqconfig"
	"github.com/cperrin88/acquire/pkg/errsink"
	"github.com/cperrin88/acquire/pkg/hashes"
	"github.com/cperrin88/acquire/pkg/method"
	"github.com/cperrin88/acquire/pkg/protocol"
)

// Worker supervises one running method process: it feeds 600 URI Acquire
// records into the method's stdin, parses the records coming back on its
// stdout and mutates queue and item state accordingly. A worker never
// blocks; the enclosing event loop calls InFdReady/OutFdReady when the
// pipes signal readiness.
type Worker struct {
	access string
	config *MethodConfig
	conf   *acqconfig.Config
	sink   *errsink.Sink
	log    Progress
	ownerQ *Queue

	proc     *method.Process
	inFd     int
	outFd    int
	parser   *protocol.Parser
	msgQueue []*protocol.Message
	outQueue []byte

	// InReady and OutReady tell the event loop which pipe directions this
	// worker currently cares about.
	InReady  bool
	OutReady bool

	currentItem *QItem
	status      string
	debug       bool
}

// NewWorker creates a worker for the queue. The progress sink may be nil.
func NewWorker(q *Queue, cfg *MethodConfig, log Progress, conf *acqconfig.Config, sink *errsink.Sink) *Worker {
	return &Worker{
		access: cfg.Access,
		config: cfg,
		conf:   conf,
		sink:   sink,
		log:    log,
		ownerQ: q,
		inFd:   -1,
		outFd:  -1,
		parser: protocol.NewParser(),
		debug:  conf.FindB("Debug::pkgAcquire::Worker", false),
	}
}

// Access returns the scheme this worker serves.
func (w *Worker) Access() string { return w.access }

// Config returns the negotiated method configuration.
func (w *Worker) Config() *MethodConfig { return w.config }

// Status returns the method's most recent 102 Status message.
func (w *Worker) Status() string { return w.status }

// CurrentItem returns the item a 200 URI Start most recently announced, or
// nil.
func (w *Worker) CurrentItem() *QItem { return w.currentItem }

// ReadFd returns the descriptor the event loop should watch for input.
func (w *Worker) ReadFd() int { return w.inFd }

// WriteFd returns the descriptor the event loop should watch for output
// readiness.
func (w *Worker) WriteFd() int { return w.outFd }

// Start resolves, spawns and handshakes the method binary. It blocks until
// the 100 Capabilities record arrived and, for queue workers, queues the
// 601 Configuration reply.
func (w *Worker) Start() error {
	res, err := method.Resolve(w.conf, w.access)
	if err != nil {
		return w.sink.Errorf("%v", err)
	}

	if w.debug {
		if res.ExecPath != res.CallingPath {
			logger.Debugf("starting method '%s' ( via %s )", res.CallingPath, res.ExecPath)
		} else {
			logger.Debugf("starting method '%s'", res.CallingPath)
		}
	}

	proc, err := method.Spawn(w.access, res)
	if err != nil {
		return w.sink.Errorf("%v", err)
	}
	w.proc = proc
	w.inFd = proc.ReadFd()
	w.outFd = proc.WriteFd()
	w.InReady = true
	w.OutReady = false

	ready, err := method.WaitFd(w.inFd, -1)
	if err != nil || !ready {
		return w.sink.Errorf("method %s did not start correctly", w.access)
	}
	if err := w.readMessages(); err != nil {
		return w.sink.Errorf("method %s did not start correctly", w.access)
	}
	if err := w.runMessages(); err != nil {
		return err
	}
	if w.config.Version != "" && !w.config.VersionAtLeast("1.0") {
		w.sink.Noticef("method %s advertises protocol version %q, expected at least 1.0",
			w.access, w.config.Version)
	}
	if w.ownerQ != nil {
		w.SendConfiguration()
	}
	return nil
}

// Shutdown terminates the method process. Methods that advertised
// Needs-Cleanup get their stdin closed instead of a SIGINT.
func (w *Worker) Shutdown() {
	if w.proc == nil {
		return
	}
	w.proc.Shutdown(w.config.NeedsCleanup)
	w.inFd = -1
	w.outFd = -1
	w.InReady = false
	w.OutReady = false
}

// InFdReady drains the inbound pipe and dispatches every completed record.
func (w *Worker) InFdReady() error {
	if err := w.readMessages(); err != nil {
		return err
	}
	return w.runMessages()
}

// OutFdReady writes as much of the outbound buffer as the pipe accepts.
func (w *Worker) OutFdReady() error {
	for len(w.outQueue) > 0 {
		n, err := syscall.Write(w.outFd, w.outQueue)
		if err == syscall.EINTR {
			continue
		}
		if err == syscall.EAGAIN {
			return nil
		}
		if err != nil || n <= 0 {
			return w.MethodFailure()
		}
		w.outQueue = w.outQueue[n:]
	}
	w.OutReady = false
	return nil
}

// readMessages pulls every available byte off the inbound pipe into the
// record queue. Hitting EOF or a pipe error means the method died.
func (w *Worker) readMessages() error {
	buf := make([]byte, 64*1024)
	for {
		n, err := syscall.Read(w.inFd, buf)
		if n > 0 {
			msgs, perr := w.parser.Feed(buf[:n])
			w.msgQueue = append(w.msgQueue, msgs...)
			if perr != nil {
				return w.sink.Errorf("%v from method %s", perr, w.access)
			}
			continue
		}
		if err == syscall.EINTR {
			continue
		}
		if err == syscall.EAGAIN {
			return nil
		}
		return w.MethodFailure()
	}
}

// runMessages dispatches the queued records in arrival order.
func (w *Worker) runMessages() error {
	for len(w.msgQueue) > 0 {
		msg := w.msgQueue[0]
		w.msgQueue = w.msgQueue[1:]

		if w.debug {
			logger.Debugf(" <- %s:%s", w.access, msg)
		}

		uri := msg.Get("URI")
		var itm *QItem
		if uri != "" && w.ownerQ != nil {
			itm = w.ownerQ.FindItem(uri, w)
		}

		if itm != nil {
			if mirror := msg.Get("UsedMirror"); mirror != "" {
				for _, o := range itm.Owners {
					o.Base().UsedMirror = mirror
				}
				itm.Description = replaceSiteLabel(itm.Description, mirror)
			}
		}

		switch msg.Code {
		case protocol.CodeCapabilities:
			w.capabilities(msg)

		case protocol.CodeLog:
			if w.debug {
				logger.Debugf(" <- (log) %s", msg.Get("Message"))
			}

		case protocol.CodeStatus:
			w.status = msg.Get("Message")

		case protocol.CodeRedirect:
			if itm == nil {
				_ = w.sink.Errorf("method gave invalid 103 Redirect message")
				break
			}
			w.redirect(itm, msg, uri)

		case protocol.CodeWarning:
			subject := w.access
			if itm != nil && len(itm.Owners) > 0 {
				subject = itm.Owners[0].GetDesc().URI
			}
			w.sink.Warningf("%s: %s", subject, msg.Get("Message"))

		case protocol.CodeURIStart:
			if itm == nil {
				_ = w.sink.Errorf("method gave invalid 200 URI Start message")
				break
			}
			w.uriStart(itm, msg)

		case protocol.CodeURIDone:
			if itm == nil {
				_ = w.sink.Errorf("method gave invalid 201 URI Done message")
				break
			}
			w.uriDone(itm, msg)

		case protocol.CodeAuxRequest:
			if itm == nil {
				_ = w.sink.Errorf("method gave invalid 351 Aux Request message")
				break
			}
			w.auxRequest(itm, msg)

		case protocol.CodeURIFailure:
			if itm == nil {
				_ = w.sink.Errorf("method gave invalid 400 URI Failure message: %s", msg.Get("Message"))
				break
			}
			w.uriFailure(itm, msg)

		case protocol.CodeGeneralFailure:
			_ = w.sink.Errorf("method %s general failure: %s", w.access, msg.Get("Message"))

		case protocol.CodeMediaChange:
			w.mediaChange(msg)

		default:
			logger.Warnf("method %s sent unknown message code %d, ignoring", w.access, msg.Code)
		}
	}
	return nil
}

// capabilities handles the 100 record: it fills the per-scheme method
// configuration exactly once.
func (w *Worker) capabilities(msg *protocol.Message) {
	w.config.ParseCapabilities(msg, w.conf)
	if w.debug {
		c := w.config
		logger.Debugf("configured access method %s: version:%s single-instance:%t pipeline:%t send-config:%t local-only:%t needs-cleanup:%t removable:%t aux-requests:%t send-uri-encoded:%t",
			c.Access, c.Version, c.SingleInstance, c.Pipeline, c.SendConfig,
			c.LocalOnly, c.NeedsCleanup, c.Removable, c.AuxRequests(), c.SendURIEncoded())
	}
}

// redirect handles a 103 record: adopt the new URI, deal with alternates
// and put every owner back in line unless a loop is detected.
func (w *Worker) redirect(itm *QItem, msg *protocol.Message, uri string) {
	got := msg.GetDefault("New-URI", uri)
	newURI := got
	if !w.config.SendURIEncoded() {
		newURI = encodeURIPath(got)
	}
	itm.URI = newURI

	var alts []string
	if raw := msg.Get("Alternate-URIs"); raw != "" {
		alts = strings.Split(raw, "\n")
	}

	w.itemDone()

	for _, o := range itm.Owners {
		o.Base().Status = StatusIdle
	}
	owners := append([]Item(nil), itm.Owners...)
	w.ownerQ.ItemDone(itm)

	for _, o := range owners {
		desc := o.GetDesc()

		// a method may redirect without a URI change for a simplified retry
		simpleRetry := false
		if w.config.SendURIEncoded() {
			for i := len(alts) - 1; i >= 0; i-- {
				o.Base().PushAlternativeURI(alts[i])
			}
			if desc.URI == got {
				simpleRetry = true
			}
		} else {
			for i := len(alts) - 1; i >= 0; i-- {
				o.Base().PushAlternativeURI(encodeURIPath(alts[i]))
			}
			if got == decodeURIPath(desc.URI) {
				simpleRetry = true
			}
		}

		if !simpleRetry {
			target := newURI
			if !o.Base().IsGoodAlternativeURI(target) {
				if alt, ok := o.Base().PopAlternativeURI(); ok {
					target = alt
				} else {
					target = ""
				}
			}
			if target == "" || o.Base().IsRedirectionLoop(target) {
				msg.Set("FailReason", "RedirectionLoop")
				o.Failed(msg, w.config)
				if w.log != nil {
					w.log.Fail(desc)
				}
				continue
			}

			if w.log != nil {
				w.log.Done(desc)
			}
			w.changeSiteIsMirrorChange(target, desc, o)
			desc.URI = target
		}
		if !o.IsDoomed() {
			w.ownerQ.Owner.Enqueue(desc)
		}
	}
}

// changeSiteIsMirrorChange relabels the description when the new URI lives
// on a different site, so the user sees which mirror serves the item now.
func (w *Worker) changeSiteIsMirrorChange(newURI string, desc *ItemDesc, o Item) {
	if uriSiteOnly(newURI) == uriSiteOnly(desc.URI) {
		return
	}
	label := archiveLabel(uriSiteOnly(newURI))
	o.Base().UsedMirror = label
	desc.Description = replaceSiteLabel(desc.Description, label)
}

// uriStart handles a 200 record.
func (w *Worker) uriStart(itm *QItem, msg *protocol.Message) {
	w.currentItem = itm
	itm.CurrentSize = 0
	itm.TotalSize = msg.GetUint64("Size", 0)
	itm.ResumePoint = msg.GetUint64("Resume-Point", 0)
	for _, o := range itm.Owners {
		o.Start(msg, itm.TotalSize)
		if w.log != nil {
			w.log.Fetch(o.GetDesc())
		}
	}
}

// uriDone handles a 201 record: harmonise destination files, settle the
// received hash list and run the verification decision for every owner.
func (w *Worker) uriDone(itm *QItem, msg *protocol.Message) {
	w.prepareFiles("uri-done", itm)

	given := msg.Get("Filename")
	filename := given
	if filename == "" {
		filename = itm.Owners[0].Base().DestFile
	}

	received := hashes.FromMessage("", msg)
	// not all methods send hashes our way
	if received.Empty() {
		expected := itm.ExpectedHashes()
		if expected.Usable() && realFileExists(filename) {
			calc, err := hashes.ComputeFile(filename, expected)
			if err != nil {
				w.sink.Warningf("%s: %v", w.access, err)
			} else {
				received = calc
			}
		}
	}

	// only remote transfers into the announced file count as fetched bytes
	first := itm.Owners[0].Base()
	if w.log != nil && !first.Complete && !first.Local && given == filename {
		w.log.Fetched(received.FileSize(), msg.GetUint64("Resume-Point", 0))
	}

	owners := append([]Item(nil), itm.Owners...)
	w.ownerQ.ItemDone(itm)

	isIMSHit := msg.GetBool("IMS-Hit", false) || msg.GetBool("Alt-IMS-Hit", false)
	forcedHash := w.conf.Find("Acquire::ForceHash", "")
	debugAuth := w.conf.FindB("Debug::pkgAcquire::Auth", false)

	for _, o := range owners {
		expected := o.ExpectedHashes()
		if debugAuth {
			logger.Debugf("201 URI Done: %s received:%v expected:%v ims:%t",
				o.GetDesc().URI, received.Hashes(), expected.Hashes(), isIMSHit)
		}

		// decide if what we got is what we expected
		okay := false
		if (forcedHash == "" && !expected.Empty()) || (forcedHash != "" && expected.Usable()) {
			if received.Empty() {
				// an IMS hit leaves us with hashes of the transferred
				// compressed bytes, not the on-disk file; trust the server
				okay = isIMSHit
			} else {
				okay = received.Equal(expected)
			}
		} else {
			okay = !o.HashesRequired()
		}

		if okay {
			// the owner may still refuse, e.g. over digest strength
			okay = o.VerifyDone(msg, w.config)
		}
		if !okay {
			o.Base().Status = StatusAuthError
		}

		if okay {
			if !o.IsDoomed() {
				o.Done(msg, received, w.config)
			}
			if w.log != nil {
				if isIMSHit {
					w.log.IMSHit(o.GetDesc())
				} else {
					w.log.Done(o.GetDesc())
				}
			}
		} else {
			savedDesc := *o.GetDesc()
			if !o.IsDoomed() {
				if !msg.Has("FailReason") {
					if !received.Equal(expected) {
						msg.Set("FailReason", "HashSumMismatch")
					} else {
						msg.Set("FailReason", "WeakHashSums")
					}
				}
				o.Failed(msg, w.config)
			}
			if w.log != nil {
				w.log.Fail(&savedDesc)
			}
		}
	}
	w.itemDone()
}

// auxRequest handles a 351 record. Methods without the negotiated
// capability get a synthetic failure plus an unblocking answer.
func (w *Worker) auxRequest(itm *QItem, msg *protocol.Message) {
	if !w.config.AuxRequests() {
		owners := append([]Item(nil), itm.Owners...)
		msg.Set("Message", "method tried to make an aux request while not being allowed to do them")
		w.ownerQ.ItemDone(itm)
		w.handleFailure(owners, msg, false, false)
		w.itemDone()

		reply := protocol.NewMessage(protocol.CodeURIAcquire, "URI Acquire")
		reply.Set("URI", msg.Get("Aux-URI"))
		reply.Set("Filename", "/nonexistent/auxrequest.blocked")
		w.queueOutbound(reply.Encode())
		return
	}

	aux := NewAuxFileItem(itm.Owners[0], w,
		msg.Get("Aux-ShortDesc"), msg.Get("Aux-Description"), msg.Get("Aux-URI"),
		hashes.FromMessage("Aux-", msg), msg.GetUint64("MaximumSize", 0))
	w.ownerQ.Owner.Enqueue(aux.GetDesc())
}

// uriFailure handles a 400 record: classify and hand off to the retry
// policy.
func (w *Worker) uriFailure(itm *QItem, msg *protocol.Message) {
	w.prepareFiles("uri-failure", itm)

	owners := append([]Item(nil), itm.Owners...)
	w.ownerQ.ItemDone(itm)

	errTransient, errAuth := classifyFailure(msg)
	w.handleFailure(owners, msg, errTransient, errAuth)
	w.itemDone()
}

// mediaChange handles a 403 record: prompt the user (directly and via the
// status descriptor) and answer the method either way.
func (w *Worker) mediaChange(msg *protocol.Message) {
	media := msg.Get("Media")
	drive := msg.Get("Drive")

	if statusFd := w.conf.FindI("APT::Status-Fd", -1); statusFd > 0 {
		prompt := fmt.Sprintf("Please insert the disc labeled: '%s' in the drive '%s' and press [Enter].", media, drive)
		line := fmt.Sprintf("media-change: %s:%s:%s\n", media, drive, prompt)
		if _, err := syscall.Write(statusFd, []byte(line)); err != nil {
			w.sink.Warningf("writing to status fd %d: %v", statusFd, err)
		}
	}

	reply := protocol.NewMessage(protocol.CodeMediaChanged, "Media Changed")
	if w.log == nil || !w.log.MediaChange(media, drive) {
		reply.Set("Failed", "true")
	}
	w.queueOutbound(reply.Encode())
}

// SendConfiguration queues the 601 Configuration dump for methods that
// asked for it.
func (w *Worker) SendConfiguration() {
	if !w.config.SendConfig || w.outFd < 0 {
		return
	}

	var b strings.Builder
	b.WriteString("601 Configuration\n")
	if !w.conf.Exists("Acquire::Send-URI-Encoded") {
		b.WriteString("Config-Item: Acquire::Send-URI-Encoded=1\n")
	}
	for _, kv := range w.conf.Dump() {
		b.WriteString("Config-Item: " + kv + "\n")
	}
	b.WriteString("\n")
	w.queueOutbound(b.String())
}

// QueueItem emits the 600 URI Acquire record handing one item to the
// method.
func (w *Worker) QueueItem(itm *QItem) bool {
	if w.outFd < 0 {
		return false
	}
	if len(itm.Owners) == 0 {
		return false
	}
	if itm.Owners[0].IsDoomed() {
		return true
	}

	itm.syncDestinationFiles(w.sink)

	msg := protocol.NewMessage(protocol.CodeURIAcquire, "URI Acquire")
	uri := itm.URI
	if !w.config.SendURIEncoded() {
		uri = decodeURIPath(uri)
	}
	msg.Set("URI", uri)
	first := itm.Owners[0]
	msg.Set("Filename", first.Base().DestFile)

	scheme := uriScheme(itm.URI)
	if scheme == "http" || scheme == "https" {
		key := "Acquire::" + scheme + "::proxy::" + uriHost(itm.URI)
		if w.conf.Exists(key) {
			msg.Set("Proxy", w.conf.Find(key, ""))
		}
	}

	expected := itm.ExpectedHashes()
	for _, h := range expected.Hashes() {
		msg.Set("Expected-"+h.Type, h.Value)
	}

	for _, hdr := range first.Custom600Headers() {
		if k, v, ok := strings.Cut(hdr, ":"); ok {
			msg.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}

	if expected.FileSize() == 0 && !msg.Has("Maximum-Size") {
		if maxSize := first.MaximumSize(); maxSize > 0 {
			msg.Set("Maximum-Size", strconv.FormatUint(maxSize, 10))
		}
	}

	// the sandboxed method must be able to read and overwrite a partial file
	if realFileExists(first.Base().DestFile) {
		changeOwnerAndPermission(w.sink, "queue-uri", first.Base().DestFile,
			w.conf.Find("APT::Sandbox::User", ""), 0o600)
	}

	w.queueOutbound(msg.Encode())
	return true
}

// ReplyAux answers the method waiting on an aux request once the sub-item
// settled.
func (w *Worker) ReplyAux(desc *ItemDesc) {
	if w.outFd < 0 || desc.Owner.IsDoomed() {
		return
	}

	msg := protocol.NewMessage(protocol.CodeURIAcquire, "URI Acquire")
	msg.Set("URI", desc.URI)
	dest := desc.Owner.Base().DestFile
	switch {
	case realFileExists(dest) && desc.Owner.Base().Status == StatusDone:
		changeOwnerAndPermission(w.sink, "reply-aux", dest,
			w.conf.Find("APT::Sandbox::User", ""), 0o600)
		msg.Set("Filename", dest)
	case realFileExists(dest):
		msg.Set("Filename", path.Join("/nonexistent", dest))
	default:
		msg.Set("Filename", dest)
	}
	w.queueOutbound(msg.Encode())
}

// MethodFailure cleans up after a dead method: reap without masking the
// child's own error, drop the pipes and clear both queues. The enclosing
// loop decides whether to reopen.
func (w *Worker) MethodFailure() error {
	_ = w.sink.Errorf("method %s has died unexpectedly", w.access)

	if w.proc != nil {
		if err := w.proc.Reap(); err != nil {
			_ = w.sink.Errorf("%v", err)
		}
		w.proc.DropPipes()
	}
	w.inFd = -1
	w.outFd = -1
	w.InReady = false
	w.OutReady = false
	w.outQueue = nil
	w.msgQueue = nil
	return fmt.Errorf("%w: %s", ErrMethodDied, w.access)
}

// Pulse refreshes the current item's byte count from the file system.
func (w *Worker) Pulse() {
	if w.currentItem == nil || len(w.currentItem.Owners) == 0 {
		return
	}
	st, err := os.Stat(w.currentItem.Owners[0].Base().DestFile)
	if err != nil {
		return
	}
	w.currentItem.CurrentSize = uint64(st.Size())
}

// itemDone resets the per-item state after a terminal message.
func (w *Worker) itemDone() {
	w.currentItem = nil
	w.status = ""
}

func (w *Worker) queueOutbound(s string) {
	if w.debug {
		logger.Debugf(" -> %s:%s", w.access, strings.ReplaceAll(strings.TrimSuffix(s, "\n\n"), "\n", "\\n"))
	}
	w.outQueue = append(w.outQueue, s...)
	w.OutReady = true
}
