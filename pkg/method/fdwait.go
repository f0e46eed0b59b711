package method

import (
	"syscall"
	"time"
)

// ReadySet names the descriptors a Poll call found ready.
type ReadySet struct {
	Read  map[int]bool
	Write map[int]bool
}

// WaitFd blocks until the descriptor is readable or the timeout passes.
func WaitFd(fd int, timeout time.Duration) (bool, error) {
	ready, err := Poll([]int{fd}, nil, timeout)
	if err != nil {
		return false, err
	}
	return ready.Read[fd], nil
}

// Poll waits until at least one of the given descriptors is ready or the
// timeout passes. A negative timeout blocks indefinitely. EINTR is retried.
func Poll(readFds, writeFds []int, timeout time.Duration) (ReadySet, error) {
	ready := ReadySet{Read: map[int]bool{}, Write: map[int]bool{}}

	var rset, wset syscall.FdSet
	nfd := 0
	for _, fd := range readFds {
		fdSet(&rset, fd)
		if fd >= nfd {
			nfd = fd + 1
		}
	}
	for _, fd := range writeFds {
		fdSet(&wset, fd)
		if fd >= nfd {
			nfd = fd + 1
		}
	}

	for {
		r, w := rset, wset
		var tvp *syscall.Timeval
		if timeout >= 0 {
			tv := syscall.NsecToTimeval(timeout.Nanoseconds())
			tvp = &tv
		}
		n, err := syscall.Select(nfd, &r, &w, nil, tvp)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return ready, err
		}
		if n == 0 {
			return ready, nil
		}
		for _, fd := range readFds {
			if fdIsSet(&r, fd) {
				ready.Read[fd] = true
			}
		}
		for _, fd := range writeFds {
			if fdIsSet(&w, fd) {
				ready.Write[fd] = true
			}
		}
		return ready, nil
	}
}

func fdSet(set *syscall.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *syscall.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
