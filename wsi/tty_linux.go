// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package wsi

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/gviegas/vkdemo/internal/logging"
)

// Console mode ioctl (linux/kd.h).
const (
	kdSetMode  = 0x4b3a
	kdText     = 0
	kdGraphics = 1
)

// TTY reads keyboard input from a terminal in raw mode.
// Backends without a window system of their own (kms,
// lease) use it.
// If the file is not a terminal, the TTY is inert: Poll
// only waits.
type TTY struct {
	fd       int
	old      *unix.Termios
	graphics bool
	buf      [256]byte
}

// OpenTTY switches fd to raw, non-blocking mode.
func OpenTTY(fd int) (*TTY, error) {
	t := &TTY{fd: fd}
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		logging.Logger().Debug("console input disabled", "fd", fd, "err", err)
		return t, nil
	}
	raw := *old
	raw.Iflag &^= unix.IXON | unix.ICRNL | unix.BRKINT | unix.INPCK | unix.ISTRIP
	raw.Lflag &^= unix.ICANON | unix.ECHO | unix.IEXTEN
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, errors.Wrap(err, "wsi: tty raw mode")
	}
	t.old = old
	return t, nil
}

// Raw returns whether the terminal is in raw mode.
func (t *TTY) Raw() bool { return t.old != nil }

// SetGraphics switches a virtual console to graphics mode,
// which stops the kernel from drawing text over scanout
// buffers. It does nothing if fd is not a virtual console.
func (t *TTY) SetGraphics() {
	if t.graphics || t.old == nil {
		return
	}
	if err := unix.IoctlSetInt(t.fd, kdSetMode, kdGraphics); err != nil {
		logging.Logger().Debug("console graphics mode unavailable", "err", err)
		return
	}
	t.graphics = true
}

// Poll waits up to timeout for input and decodes it.
// A zero timeout does not block.
func (t *TTY) Poll(timeout time.Duration) ([]Event, error) {
	if t.old == nil {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "wsi: tty poll")
		}
		if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
			if fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
				return nil, errors.Wrap(ErrDisconnected, "wsi: tty hang up")
			}
			return nil, nil
		}
		break
	}
	n, err := unix.Read(t.fd, t.buf[:])
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "wsi: tty read")
	case n == 0:
		return nil, nil
	}
	return ParseConsole(t.buf[:n]), nil
}

// Close restores the terminal.
func (t *TTY) Close() error {
	if t.graphics {
		unix.IoctlSetInt(t.fd, kdSetMode, kdText)
		t.graphics = false
	}
	if t.old == nil {
		return nil
	}
	err := unix.IoctlSetTermios(t.fd, unix.TCSETS, t.old)
	t.old = nil
	return errors.Wrap(err, "wsi: tty restore")
}
