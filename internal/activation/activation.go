// Package activation obtains the server listener, preferring a socket passed
// in by systemd over binding the configured address.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// firstFD is the first descriptor systemd passes (after stdin, stdout, stderr)
const firstFD = 3

// fdCount reads LISTEN_PID and LISTEN_FDS. It returns 0 when activation is
// absent or meant for another process.
func fdCount() (int, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		return 0, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Activated returns the first systemd-activated listener, or nil when the
// process was not socket activated. Additional sockets are closed.
func Activated() (net.Listener, error) {
	n, err := fdCount()
	if err != nil || n == 0 {
		return nil, err
	}

	var first net.Listener
	for i := 0; i < n; i++ {
		fd := firstFD + i
		file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", i))
		if file == nil {
			return nil, fmt.Errorf("failed to open fd %d", fd)
		}
		l, err := net.FileListener(file)
		_ = file.Close()
		if err != nil {
			if first != nil {
				_ = first.Close()
			}
			return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
		}
		if first == nil {
			first = l
		} else {
			_ = l.Close()
		}
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return first, nil
}

// Listen returns the activated listener when present, else binds addr.
// activated reports which of the two happened.
func Listen(addr string) (l net.Listener, activated bool, err error) {
	l, err = Activated()
	if err != nil {
		return nil, false, err
	}
	if l != nil {
		return l, true, nil
	}

	l, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return l, false, nil
}
