package acquire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cperrin88/acquire/pkg/acqconfig"
	"github.com/cperrin88/acquire/pkg/errsink"
	"github.com/cperrin88/acquire/pkg/hashes"
)

type fakeProgress struct {
	fetches  []string
	dones    []string
	imsHits  []string
	fails    []string
	fetched  []uint64
	mediaOK  bool
	media    []string
}

func (p *fakeProgress) Fetch(desc *ItemDesc)  { p.fetches = append(p.fetches, desc.URI) }
func (p *fakeProgress) Done(desc *ItemDesc)   { p.dones = append(p.dones, desc.URI) }
func (p *fakeProgress) IMSHit(desc *ItemDesc) { p.imsHits = append(p.imsHits, desc.URI) }
func (p *fakeProgress) Fail(desc *ItemDesc)   { p.fails = append(p.fails, desc.URI) }
func (p *fakeProgress) Fetched(size, resumePoint uint64) {
	p.fetched = append(p.fetched, size-resumePoint)
}
func (p *fakeProgress) MediaChange(media, drive string) bool {
	p.media = append(p.media, media+":"+drive)
	return p.mediaOK
}

type recordingEnqueuer struct {
	descs []*ItemDesc
}

func (e *recordingEnqueuer) Enqueue(desc *ItemDesc) { e.descs = append(e.descs, desc) }

type workerEnv struct {
	t    *testing.T
	w    *Worker
	q    *Queue
	enq  *recordingEnqueuer
	prog *fakeProgress
	conf *acqconfig.Config
	sink *errsink.Sink

	methodIn  *os.File // write end feeding the worker's inbound pipe
	methodOut *os.File // read end draining the worker's outbound pipe
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()

	conf := acqconfig.New()
	sink := errsink.New()
	enq := &recordingEnqueuer{}
	prog := &fakeProgress{}
	q := NewQueue("http", enq)
	w := NewWorker(q, NewMethodConfig("http"), prog, conf, sink)

	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
	})

	w.inFd = int(inR.Fd())
	w.outFd = int(outW.Fd())
	require.NoError(t, syscall.SetNonblock(w.inFd, true))
	require.NoError(t, syscall.SetNonblock(w.outFd, true))
	w.InReady = true

	return &workerEnv{
		t: t, w: w, q: q, enq: enq, prog: prog, conf: conf, sink: sink,
		methodIn: inW, methodOut: outR,
	}
}

// feed plays a raw method message into the worker and dispatches it.
func (e *workerEnv) feed(raw string) error {
	e.t.Helper()
	_, err := e.methodIn.WriteString(raw)
	require.NoError(e.t, err)
	return e.w.InFdReady()
}

// outbound returns everything the worker queued for the method so far.
func (e *workerEnv) outbound() string {
	return string(e.w.outQueue)
}

// addItem queues a file item and assigns it to the worker, as the engine
// would after a dispatch cycle.
func (e *workerEnv) addItem(uri, dest string, expected hashes.HashList) (*FileItem, *QItem) {
	e.t.Helper()
	it := NewFileItem(uri, dest, expected, e.conf)
	itm := e.q.Add(it.GetDesc())
	itm.Worker = e.w
	return it, itm
}

func sha256List(t *testing.T, content string) hashes.HashList {
	t.Helper()
	sum := sha256.Sum256([]byte(content))
	var l hashes.HashList
	l.Append(hashes.Hash{Type: "SHA256", Value: hex.EncodeToString(sum[:])})
	return l
}

func TestCapabilitiesPopulateMethodConfig(t *testing.T) {
	env := newWorkerEnv(t)

	require.NoError(t, env.feed("100 Capabilities\nVersion: 1.2\nSend-Config: true\nPipeline: true\nNeeds-Cleanup: true\nAuxRequests: true\nSend-URI-Encoded: true\n\n"))

	cfg := env.w.Config()
	assert.Equal(t, "1.2", cfg.Version)
	assert.True(t, cfg.SendConfig)
	assert.True(t, cfg.Pipeline)
	assert.True(t, cfg.NeedsCleanup)
	assert.True(t, cfg.AuxRequests())
	assert.True(t, cfg.SendURIEncoded())
	assert.True(t, cfg.VersionAtLeast("1.0"))
}

func TestSendConfigurationDumpsEveryItem(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::Retries", "3")
	env.conf.Set("APT::Sandbox::User", "_apt")

	require.NoError(t, env.feed("100 Capabilities\nVersion: 1.2\nSend-Config: true\n\n"))
	env.w.SendConfiguration()

	out := env.outbound()
	assert.Contains(t, out, "601 Configuration\n")
	assert.Contains(t, out, "Config-Item: Acquire::Send-URI-Encoded=1\n")
	assert.Contains(t, out, "Config-Item: Acquire::Retries=3\n")
	assert.Contains(t, out, "Config-Item: APT::Sandbox::User=_apt\n")
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}

func TestSendConfigurationHonorsExistingEncodedSetting(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::Send-URI-Encoded", "false")

	require.NoError(t, env.feed("100 Capabilities\nSend-Config: true\n\n"))
	env.w.SendConfiguration()

	assert.NotContains(t, env.outbound(), "Config-Item: Acquire::Send-URI-Encoded=1\n")
	assert.Contains(t, env.outbound(), "Config-Item: Acquire::Send-URI-Encoded=false\n")
}

func TestQueueItemEmits600(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::http::proxy::a", "http://proxy:3128")
	expected := sha256List(t, "payload")
	_, itm := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), expected)

	require.True(t, env.w.QueueItem(itm))

	out := env.outbound()
	assert.Contains(t, out, "600 URI Acquire\n")
	assert.Contains(t, out, "URI: http://a/x\n")
	assert.Contains(t, out, "Filename: "+itm.Owners[0].Base().DestFile+"\n")
	assert.Contains(t, out, "Proxy: http://proxy:3128\n")
	h, _ := expected.Find("SHA256")
	assert.Contains(t, out, "Expected-SHA256: "+h.Value+"\n")
	assert.True(t, env.w.OutReady)
}

func TestQueueItemAppliesSandboxPermissions(t *testing.T) {
	env := newWorkerEnv(t)
	dest := filepath.Join(t.TempDir(), "partial")
	require.NoError(t, os.WriteFile(dest, []byte("partial"), 0o644))
	_, itm := env.addItem("http://a/x", dest, hashes.HashList{})

	require.True(t, env.w.QueueItem(itm))

	st, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestURIStartNotifiesOwners(t *testing.T) {
	env := newWorkerEnv(t)
	it, itm := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\nSize: 10\nResume-Point: 2\n\n"))

	assert.Equal(t, itm, env.w.CurrentItem())
	assert.Equal(t, uint64(10), itm.TotalSize)
	assert.Equal(t, uint64(2), itm.ResumePoint)
	assert.Equal(t, StatusFetching, it.Status)
	assert.Equal(t, []string{"http://a/x"}, env.prog.fetches)
}

func TestURIDoneHashMatch(t *testing.T) {
	env := newWorkerEnv(t)
	dest := filepath.Join(t.TempDir(), "x")
	expected := sha256List(t, "payload")
	it, _ := env.addItem("http://a/x", dest, expected)

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\nSize: 10\n\n"))
	h, _ := expected.Find("SHA256")
	require.NoError(t, env.feed(fmt.Sprintf(
		"201 URI Done\nURI: http://a/x\nFilename: %s\nSHA256-Hash: %s\nChecksum-FileSize-Hash: 10\n\n", dest, h.Value)))

	assert.Equal(t, StatusDone, it.Status)
	assert.True(t, it.Complete)
	assert.Equal(t, []string{"http://a/x"}, env.prog.dones)
	assert.Equal(t, []uint64{10}, env.prog.fetched)
	assert.Nil(t, env.w.CurrentItem())
	assert.True(t, env.q.Empty())
}

func TestURIDoneHashMismatch(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), sha256List(t, "payload"))

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\n\n"))
	require.NoError(t, env.feed("201 URI Done\nURI: http://a/x\nSHA256-Hash: deadbeef\n\n"))

	assert.Equal(t, StatusAuthError, it.Status)
	assert.Contains(t, it.ErrorText, "HashSumMismatch")
	assert.Equal(t, []string{"http://a/x"}, env.prog.fails)
	assert.Empty(t, env.prog.dones)
}

func TestURIDoneWeakHashes(t *testing.T) {
	env := newWorkerEnv(t)
	var weak hashes.HashList
	weak.Append(hashes.Hash{Type: "MD5Sum", Value: "0123456789abcdef"})
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), weak)

	require.NoError(t, env.feed("201 URI Done\nURI: http://a/x\nMD5Sum-Hash: 0123456789abcdef\n\n"))

	assert.Equal(t, StatusAuthError, it.Status)
	assert.Contains(t, it.ErrorText, "WeakHashSums")
}

func TestURIDoneIMSHitWithoutHashes(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), sha256List(t, "payload"))

	require.NoError(t, env.feed("201 URI Done\nURI: http://a/x\nIMS-Hit: true\n\n"))

	assert.Equal(t, StatusDone, it.Status)
	assert.Equal(t, []string{"http://a/x"}, env.prog.imsHits)
	assert.Empty(t, env.prog.dones)
}

func TestURIDoneRecomputesHashesFromDisk(t *testing.T) {
	env := newWorkerEnv(t)
	dest := filepath.Join(t.TempDir(), "x")
	content := "on disk content\n"
	require.NoError(t, os.WriteFile(dest, []byte(content), 0o644))
	it, _ := env.addItem("http://a/x", dest, sha256List(t, content))

	require.NoError(t, env.feed(fmt.Sprintf("201 URI Done\nURI: http://a/x\nFilename: %s\n\n", dest)))

	assert.Equal(t, StatusDone, it.Status)
}

func TestURIDoneDoomedOwnerSkipsCallbacks(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})
	it.Txn = &Transaction{State: TransactionAborted}

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\n\n"))
	require.NoError(t, env.feed("201 URI Done\nURI: http://a/x\n\n"))

	// no completion callback ran, but the UI still heard about it
	assert.Equal(t, StatusFetching, it.Status)
	assert.False(t, it.Complete)
	assert.Equal(t, []string{"http://a/x"}, env.prog.dones)
}

func TestTransientFailureBacksOffExponentially(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::Retries", "3")
	env.conf.Set("Acquire::Retries::Delay", "true")
	env.conf.Set("Acquire::Retries::Delay::Maximum", "30")
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	wantDelays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range wantDelays {
		before := time.Now()
		require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: Timeout\n\n"))

		require.Len(t, env.enq.descs, i+1)
		got := it.FetchAfter.Sub(before)
		assert.InDelta(t, want.Seconds(), got.Seconds(), 0.5, "attempt %d", i)
		assert.Equal(t, 2-i, it.Retries)

		// put it back in line the way the engine would
		itm := env.q.Add(it.GetDesc())
		itm.Worker = env.w
	}

	// budget exhausted: the next transient failure settles the item
	require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nTransient-Failure: true\n\n"))
	assert.Equal(t, StatusTransientNetworkError, it.Status)
	assert.Len(t, env.enq.descs, len(wantDelays))
}

func TestTransientBackoffSaturatesAtMaximum(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::Retries", "3")
	env.conf.Set("Acquire::Retries::Delay::Maximum", "3")
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	wantDelays := []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}
	for i, want := range wantDelays {
		before := time.Now()
		require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: ConnectionRefused\n\n"))
		got := it.FetchAfter.Sub(before)
		assert.InDelta(t, want.Seconds(), got.Seconds(), 0.5, "attempt %d", i)

		itm := env.q.Add(it.GetDesc())
		itm.Worker = env.w
	}
}

func TestTransientFailureWithoutDelayRetriesImmediately(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::Retries::Delay", "false")
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	before := time.Now()
	require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: Timeout\n\n"))
	assert.InDelta(t, 0, it.FetchAfter.Sub(before).Seconds(), 0.5)
	require.Len(t, env.enq.descs, 1)
}

func TestAuthFailureSwitchesToAlternate(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), sha256List(t, "payload"))
	it.PushAlternativeURI("http://m2/x")
	it.PushAlternativeURI("http://m1/x")

	require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: HashSumMismatch\n\n"))

	require.Len(t, env.enq.descs, 1)
	assert.Equal(t, "http://m1/x", it.Desc.URI)
	assert.Equal(t, "m1", it.UsedMirror)
	assert.True(t, strings.HasPrefix(it.Desc.Description, "m1 "))
	assert.NotEqual(t, StatusAuthError, it.Status)
}

func TestAuthFailureDropsAlternatesOnFailedSite(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), sha256List(t, "payload"))
	// the remaining alternates live on the failing site and must be ruled out
	it.PushAlternativeURI("http://a/other")

	require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: HashSumMismatch\n\n"))

	assert.Empty(t, env.enq.descs)
	assert.Equal(t, StatusAuthError, it.Status)
}

func TestTransientFailureExhaustedWithoutAlternates(t *testing.T) {
	env := newWorkerEnv(t)
	env.conf.Set("Acquire::Retries", "0")
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: Timeout\n\n"))

	assert.Equal(t, StatusTransientNetworkError, it.Status)
	assert.Empty(t, env.enq.descs)
}

func TestOtherFailureIsGenericError(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("400 URI Failure\nURI: http://a/x\nFailReason: SomethingBroke\nMessage: it broke\n\n"))

	assert.Equal(t, StatusError, it.Status)
	assert.Contains(t, it.ErrorText, "it broke")
}

func TestRedirectReenqueuesAtNewSite(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("103 Redirect\nURI: http://a/x\nNew-URI: http://b/x\n\n"))

	require.Len(t, env.enq.descs, 1)
	assert.Equal(t, "http://b/x", it.Desc.URI)
	assert.True(t, strings.HasPrefix(it.Desc.Description, "b "), "description %q should lead with the new site", it.Desc.Description)
	assert.Equal(t, "b", it.UsedMirror)
	assert.Equal(t, StatusIdle, it.Status)
	assert.True(t, env.q.Empty())
}

func TestRedirectWithoutURIChangeIsSimpleRetry(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})
	it.PushAlternativeURI("http://m1/x")

	require.NoError(t, env.feed("103 Redirect\nURI: http://a/x\nNew-URI: http://a/x\n\n"))

	require.Len(t, env.enq.descs, 1)
	assert.Equal(t, "http://a/x", it.Desc.URI)
	// a simple retry must not consume the alternate stack
	alt, ok := it.PopAlternativeURI()
	require.True(t, ok)
	assert.Equal(t, "http://m1/x", alt)
}

func TestRedirectLoopFailsOwner(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("103 Redirect\nURI: http://a/x\nNew-URI: http://b/x\n\n"))
	require.Len(t, env.enq.descs, 1)

	itm := env.q.Add(it.GetDesc())
	itm.Worker = env.w
	require.NoError(t, env.feed("103 Redirect\nURI: http://b/x\nNew-URI: http://a/x\n\n"))

	assert.Equal(t, StatusError, it.Status)
	assert.Contains(t, it.ErrorText, "RedirectionLoop")
	assert.Len(t, env.enq.descs, 1, "a looping owner must not be re-enqueued")
}

func TestRedirectPushesAlternateURIs(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("103 Redirect\nURI: http://a/x\nNew-URI: http://b/x\nAlternate-URIs: http://m1/x\n http://m2/x\n\n"))

	alt, ok := it.PopAlternativeURI()
	require.True(t, ok)
	assert.Equal(t, "http://m1/x", alt)
	alt, ok = it.PopAlternativeURI()
	require.True(t, ok)
	assert.Equal(t, "http://m2/x", alt)
}

func TestUsedMirrorRelabelsOwners(t *testing.T) {
	env := newWorkerEnv(t)
	it, itm := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\nUsedMirror: mirror.example\n\n"))

	assert.Equal(t, "mirror.example", it.UsedMirror)
	assert.True(t, strings.HasPrefix(itm.Description, "mirror.example "))
}

func TestStatusMessageTracked(t *testing.T) {
	env := newWorkerEnv(t)

	require.NoError(t, env.feed("102 Status\nMessage: Connecting to a\n\n"))
	assert.Equal(t, "Connecting to a", env.w.Status())
}

func TestWarningRecordedOnSink(t *testing.T) {
	env := newWorkerEnv(t)

	require.NoError(t, env.feed("104 Warning\nMessage: something odd\n\n"))

	entries := env.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, errsink.KindWarning, entries[0].Kind)
	assert.Contains(t, entries[0].Text, "something odd")
}

func TestGeneralFailureRecordedAndSessionContinues(t *testing.T) {
	env := newWorkerEnv(t)

	require.NoError(t, env.feed("401 General Failure\nMessage: out of cheese\n\n"))
	require.NoError(t, env.feed("102 Status\nMessage: still alive\n\n"))

	assert.True(t, env.sink.PendingError())
	assert.Equal(t, "still alive", env.w.Status())
}

func TestUnknownCodeIsTolerated(t *testing.T) {
	env := newWorkerEnv(t)

	require.NoError(t, env.feed("999 Flying Saucer\nMessage: hi\n\n"))
	require.NoError(t, env.feed("102 Status\nMessage: fine\n\n"))
	assert.Equal(t, "fine", env.w.Status())
}

func TestMediaChangeWritesStatusFdAndReplies(t *testing.T) {
	env := newWorkerEnv(t)
	statusR, statusW, err := os.Pipe()
	require.NoError(t, err)
	defer statusR.Close()
	defer statusW.Close()
	env.conf.Set("APT::Status-Fd", strconv.Itoa(int(statusW.Fd())))
	env.prog.mediaOK = true

	require.NoError(t, env.feed("403 Media Change\nMedia: Disc 1\nDrive: /dev/sr0\n\n"))

	buf := make([]byte, 4096)
	n, err := statusR.Read(buf)
	require.NoError(t, err)
	line := string(buf[:n])
	assert.True(t, strings.HasPrefix(line, "media-change: Disc 1:/dev/sr0:"))
	assert.True(t, strings.HasSuffix(line, "\n"))

	assert.Contains(t, env.outbound(), "603 Media Changed\n\n")
	assert.NotContains(t, env.outbound(), "Failed: true")
	assert.Equal(t, []string{"Disc 1:/dev/sr0"}, env.prog.media)
}

func TestMediaChangeRefusedByUser(t *testing.T) {
	env := newWorkerEnv(t)
	env.prog.mediaOK = false

	require.NoError(t, env.feed("403 Media Change\nMedia: Disc 1\nDrive: /dev/sr0\n\n"))

	assert.Contains(t, env.outbound(), "603 Media Changed\nFailed: true\n\n")
}

func TestAuxRequestBlockedWhenNotNegotiated(t *testing.T) {
	env := newWorkerEnv(t)
	it, _ := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\n\n"))
	require.NoError(t, env.feed("351 Aux Request\nURI: http://a/x\nAux-URI: http://a/x.sig\nAux-ShortDesc: sig\n\n"))

	// the owner failed through the regular pipeline
	assert.Equal(t, StatusError, it.Status)
	assert.True(t, env.q.Empty())

	// and the method got unblocked with a poisoned answer
	out := env.outbound()
	assert.Contains(t, out, "600 URI Acquire\n")
	assert.Contains(t, out, "URI: http://a/x.sig\n")
	assert.Contains(t, out, "Filename: /nonexistent/auxrequest.blocked\n")
}

func TestAuxRequestSpawnsSubItem(t *testing.T) {
	env := newWorkerEnv(t)
	require.NoError(t, env.feed("100 Capabilities\nVersion: 1.2\nAuxRequests: true\n\n"))
	_, _ = env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\n\n"))
	require.NoError(t, env.feed("351 Aux Request\nURI: http://a/x\nAux-URI: http://a/x.sig\nAux-ShortDesc: sig\nAux-Description: signature of x\nAux-SHA256-Hash: abc\nMaximumSize: 1024\n\n"))

	require.Len(t, env.enq.descs, 1)
	desc := env.enq.descs[0]
	assert.Equal(t, "http://a/x.sig", desc.URI)
	aux, ok := desc.Owner.(*AuxFileItem)
	require.True(t, ok)
	assert.Equal(t, uint64(1024), aux.MaximumSize())
	h, ok := aux.ExpectedHashes().Find("SHA256")
	require.True(t, ok)
	assert.Equal(t, "abc", h.Value)
}

func TestMethodDeathClearsWorker(t *testing.T) {
	env := newWorkerEnv(t)
	_, _ = env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})

	// the method side goes away mid-session
	env.methodIn.Close()
	err := env.w.InFdReady()
	require.ErrorIs(t, err, ErrMethodDied)

	assert.Equal(t, -1, env.w.ReadFd())
	assert.Equal(t, -1, env.w.WriteFd())
	assert.False(t, env.w.InReady)
	assert.False(t, env.w.OutReady)
	assert.True(t, env.sink.PendingError())
}

func TestInvalidStatusLineIsFatal(t *testing.T) {
	env := newWorkerEnv(t)

	_, err := env.methodIn.WriteString("garbage\nKey: Value\n\n")
	require.NoError(t, err)
	require.Error(t, env.w.InFdReady())
	assert.True(t, env.sink.PendingError())
}

func TestPulseTracksCurrentSize(t *testing.T) {
	env := newWorkerEnv(t)
	dest := filepath.Join(t.TempDir(), "x")
	_, itm := env.addItem("http://a/x", dest, hashes.HashList{})

	require.NoError(t, env.feed("200 URI Start\nURI: http://a/x\n\n"))
	require.NoError(t, os.WriteFile(dest, []byte("12345"), 0o644))

	env.w.Pulse()
	assert.Equal(t, uint64(5), itm.CurrentSize)
}

func TestOutFdReadyFlushesBuffer(t *testing.T) {
	env := newWorkerEnv(t)
	_, itm := env.addItem("http://a/x", filepath.Join(t.TempDir(), "x"), hashes.HashList{})
	require.True(t, env.w.QueueItem(itm))
	require.True(t, env.w.OutReady)

	require.NoError(t, env.w.OutFdReady())
	assert.False(t, env.w.OutReady)

	buf := make([]byte, 64*1024)
	n, err := env.methodOut.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "600 URI Acquire\n")
}
