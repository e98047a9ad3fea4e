// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package host

import (
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// A keyReader puts a terminal into raw, non-blocking mode and passes every
// byte typed to a callback until it is stopped.
type keyReader struct {
	fd       int
	oldState *term.State
	stopCh   chan struct{}
	done     chan struct{}
	stopped  sync.Once
}

func startKeyReader(fd int, key func(b byte)) (*keyReader, error) {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		term.Restore(fd, oldState)
		return nil, err
	}

	kr := &keyReader{
		fd:       fd,
		oldState: oldState,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(kr.done)
		buf := make([]byte, 16)
		for {
			select {
			case <-kr.stopCh:
				return
			default:
			}

			n, err := syscall.Read(fd, buf)
			for _, b := range buf[:max(n, 0)] {
				key(b)
			}
			switch {
			case err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0:
				time.Sleep(5 * time.Millisecond)
			case err != nil:
				return
			}
		}
	}()

	return kr, nil
}

// Stop ends the reader and restores the terminal.
func (kr *keyReader) Stop() {
	kr.stopped.Do(func() { close(kr.stopCh) })
	<-kr.done
	syscall.SetNonblock(kr.fd, false)
	term.Restore(kr.fd, kr.oldState)
}
