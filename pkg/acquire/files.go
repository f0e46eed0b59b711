package acquire

import (
	"os"
	"os/user"
	"strconv"

	"github.com/cperrin88/acquire/internal/logger"
	"github.com/cperrin88/acquire/pkg/errsink"
)

// realFileExists reports whether path names an existing regular file.
func realFileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// changeOwnerAndPermission hands the file to the named user (group root)
// with the given mode. Ownership changes need root and are skipped quietly
// without it; permission changes always apply.
func changeOwnerAndPermission(sink *errsink.Sink, caller, path, username string, mode os.FileMode) {
	if path == "/dev/null" || !realFileExists(path) {
		return
	}
	if os.Geteuid() == 0 && username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			sink.Warningf("%s: cannot look up user %s: %v", caller, username, err)
		} else {
			uid, _ := strconv.Atoi(u.Uid)
			if err := os.Chown(path, uid, 0); err != nil {
				_ = sink.Errnof("chown", err, "%s: %s", caller, path)
			}
		}
	}
	if err := os.Chmod(path, mode); err != nil {
		_ = sink.Errnof("chmod", err, "%s: %s", caller, path)
	}
}

// linkOrSymlink hard-links target to linkPath, falling back to a symlink
// when the filesystem boundary (or anything else) prevents a hard link.
func linkOrSymlink(sink *errsink.Sink, target, linkPath string) bool {
	if err := os.Link(target, linkPath); err == nil {
		return true
	}
	if err := os.Symlink(target, linkPath); err != nil {
		_ = sink.Errorf("can't create (sym)link of file %s to %s: %v", target, linkPath, err)
		return false
	}
	return true
}

// prepareFiles harmonises the destinations of every owner after a transfer
// settled. A fetched file becomes root-owned 0644 and fans out to the other
// owners by hard link; with no fetched file, stale partials are removed.
func (w *Worker) prepareFiles(caller string, itm *QItem) {
	if len(itm.Owners) == 0 {
		return
	}
	master := itm.Owners[0].Base().DestFile
	if realFileExists(master) {
		changeOwnerAndPermission(w.sink, caller, master, "root", 0o644)
		for _, o := range itm.Owners[1:] {
			dest := o.Base().DestFile
			if dest == master || dest == "/dev/null" || master == "/dev/null" {
				continue
			}
			if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
				logger.Debugf("%s: removing %s: %v", caller, dest, err)
			}
			linkOrSymlink(w.sink, master, dest)
		}
		return
	}
	for _, o := range itm.Owners {
		if o.Base().DestFile == "/dev/null" {
			continue
		}
		if err := os.Remove(o.Base().DestFile); err != nil && !os.IsNotExist(err) {
			logger.Debugf("%s: removing %s: %v", caller, o.Base().DestFile, err)
		}
	}
}

// syncDestinationFiles brings co-owner destinations in line with the first
// owner's partial file before the URI goes out to the method, so a resumed
// transfer continues from shared state.
func (itm *QItem) syncDestinationFiles(sink *errsink.Sink) {
	if len(itm.Owners) < 2 {
		return
	}
	master := itm.Owners[0].Base().DestFile
	if !realFileExists(master) {
		return
	}
	for _, o := range itm.Owners[1:] {
		dest := o.Base().DestFile
		if dest == master {
			continue
		}
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			continue
		}
		linkOrSymlink(sink, master, dest)
	}
}
