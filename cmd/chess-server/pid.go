package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// pidFile records the server's pid, optionally holding an exclusive flock so a
// second instance refuses to start
type pidFile struct {
	path   string
	file   *os.File
	locked bool
}

func acquirePIDFile(path string, lock bool) (*pidFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		if lock {
			if err := checkExisting(path); err != nil {
				return nil, err
			}
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	p := &pidFile{path: path, file: f}
	if lock {
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return nil, fmt.Errorf("another instance holds %s", path)
			}
			return nil, fmt.Errorf("lock pid file: %w", err)
		}
		p.locked = true
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		p.Release()
		return nil, fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		p.Release()
		return nil, fmt.Errorf("sync pid file: %w", err)
	}
	return p, nil
}

// Release unlocks and removes the file
func (p *pidFile) Release() {
	if p == nil || p.file == nil {
		return
	}
	if p.locked {
		syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN)
	}
	p.file.Close()
	os.Remove(p.path)
	p.file = nil
}

// checkExisting refuses to take over a pid file whose owner is still alive.
// A file left by a dead process is reused.
func checkExisting(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read existing pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("corrupted pid file (contains %q)", string(data))
	}

	proc, _ := os.FindProcess(pid)
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return fmt.Errorf("process %d is running but does not hold the lock", pid)
	case errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH):
		return nil
	default:
		return fmt.Errorf("process %d exists but cannot be signalled: %v", pid, err)
	}
}
