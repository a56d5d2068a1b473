// Copyright 2023 Gustavo C. Viegas. All rights reserved.

//go:build linux

package drm

import (
	"path/filepath"
	"runtime"
	"sort"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrNoOutput means that no connected connector could be
// driven by any CRTC of the card.
var ErrNoOutput = errors.New("drm: no usable output")

// Card is an open DRM device.
type Card struct {
	fd   int
	name string
}

// Cards returns the paths of the primary DRM nodes.
func Cards() []string {
	paths, _ := filepath.Glob("/dev/dri/card*")
	sort.Strings(paths)
	return paths
}

// Open opens the DRM device at path.
func Open(path string) (*Card, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "drm: open %s", path)
	}
	return &Card{fd: fd, name: path}, nil
}

// NewCard wraps a DRM file descriptor obtained elsewhere
// (e.g., from a lease). The Card takes ownership of fd.
func NewCard(fd int, name string) *Card {
	return &Card{fd: fd, name: name}
}

// Fd returns the card's file descriptor.
func (c *Card) Fd() int { return c.fd }

// Name returns the path or description of the card.
func (c *Card) Name() string { return c.name }

// Close closes the card.
func (c *Card) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func (c *Card) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		}
		return errno
	}
}

// Cap queries a driver capability.
func (c *Card) Cap(capability uint64) (uint64, error) {
	gc := getCap{capability: capability}
	if err := c.ioctl(ioctlGetCap, unsafe.Pointer(&gc)); err != nil {
		return 0, errors.Wrap(err, "drm: DRM_IOCTL_GET_CAP")
	}
	return gc.value, nil
}

// SetMaster acquires the DRM master role.
func (c *Card) SetMaster() error {
	return errors.Wrap(c.ioctl(ioctlSetMaster, nil), "drm: DRM_IOCTL_SET_MASTER")
}

// DropMaster releases the DRM master role.
func (c *Card) DropMaster() error {
	return errors.Wrap(c.ioctl(ioctlDropMaster, nil), "drm: DRM_IOCTL_DROP_MASTER")
}

func ptr(s []uint32) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

// Resources returns the card's mode-setting resources.
func (c *Card) Resources() (*Resources, error) {
	// Counts may change between the two calls (hotplug),
	// so retry until they are stable.
	for {
		var res cardRes
		if err := c.ioctl(ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
			return nil, errors.Wrap(err, "drm: DRM_IOCTL_MODE_GETRESOURCES")
		}
		r := &Resources{
			FBs:        make([]uint32, res.countFBs),
			CRTCs:      make([]uint32, res.countCRTCs),
			Connectors: make([]uint32, res.countConns),
			Encoders:   make([]uint32, res.countEncoders),
		}
		want := res
		res.fbIDPtr = ptr(r.FBs)
		res.crtcIDPtr = ptr(r.CRTCs)
		res.connectorIDPtr = ptr(r.Connectors)
		res.encoderIDPtr = ptr(r.Encoders)
		err := c.ioctl(ioctlModeGetResources, unsafe.Pointer(&res))
		if err != nil {
			return nil, errors.Wrap(err, "drm: DRM_IOCTL_MODE_GETRESOURCES")
		}
		if res.countFBs > want.countFBs || res.countCRTCs > want.countCRTCs ||
			res.countConns > want.countConns || res.countEncoders > want.countEncoders {
			continue
		}
		r.FBs = r.FBs[:res.countFBs]
		r.CRTCs = r.CRTCs[:res.countCRTCs]
		r.Connectors = r.Connectors[:res.countConns]
		r.Encoders = r.Encoders[:res.countEncoders]
		r.MinWidth, r.MaxWidth = int(res.minWidth), int(res.maxWidth)
		r.MinHeight, r.MaxHeight = int(res.minHeight), int(res.maxHeight)
		return r, nil
	}
}

// Connector returns the connector identified by id.
func (c *Card) Connector(id uint32) (*Connector, error) {
	for {
		conn := modeGetConnector{connectorID: id}
		if err := c.ioctl(ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			return nil, errors.Wrapf(err, "drm: DRM_IOCTL_MODE_GETCONNECTOR %d", id)
		}
		want := conn
		modes := make([]modeInfo, conn.countModes)
		encs := make([]uint32, conn.countEncoders)
		// Properties are not needed.
		conn.countProps = 0
		conn.propsPtr, conn.propValuesPtr = 0, 0
		if len(modes) > 0 {
			conn.modesPtr = uint64(uintptr(unsafe.Pointer(&modes[0])))
		}
		conn.encodersPtr = ptr(encs)
		if err := c.ioctl(ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
			return nil, errors.Wrapf(err, "drm: DRM_IOCTL_MODE_GETCONNECTOR %d", id)
		}
		if conn.countModes > want.countModes || conn.countEncoders > want.countEncoders {
			continue
		}
		cn := &Connector{
			ID:         conn.connectorID,
			Type:       conn.connectorType,
			TypeID:     conn.connectorTypeID,
			Connection: Connection(conn.connection),
			Encoder:    conn.encoderID,
			Encoders:   encs[:conn.countEncoders],
			WidthMM:    int(conn.mmWidth),
			HeightMM:   int(conn.mmHeight),
		}
		for _, mi := range modes[:conn.countModes] {
			cn.Modes = append(cn.Modes, newMode(mi))
		}
		return cn, nil
	}
}

// Encoder returns the encoder identified by id.
func (c *Card) Encoder(id uint32) (*Encoder, error) {
	enc := modeGetEncoder{encoderID: id}
	if err := c.ioctl(ioctlModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return nil, errors.Wrapf(err, "drm: DRM_IOCTL_MODE_GETENCODER %d", id)
	}
	return &Encoder{
		ID:            enc.encoderID,
		Type:          enc.encoderType,
		CRTC:          enc.crtcID,
		PossibleCRTCs: enc.possibleCRTCs,
	}, nil
}

// CRTC returns the CRTC identified by id.
func (c *Card) CRTC(id uint32) (*CRTC, error) {
	crtc := modeCRTC{crtcID: id}
	if err := c.ioctl(ioctlModeGetCRTC, unsafe.Pointer(&crtc)); err != nil {
		return nil, errors.Wrapf(err, "drm: DRM_IOCTL_MODE_GETCRTC %d", id)
	}
	cr := &CRTC{ID: crtc.crtcID, FB: crtc.fbID, X: int(crtc.x), Y: int(crtc.y)}
	if crtc.modeValid != 0 {
		m := newMode(crtc.mode)
		cr.Mode = &m
	}
	return cr, nil
}

// SetCRTC sets the CRTC to scan out fb on the given
// connectors using mode.
func (c *Card) SetCRTC(crtc, fb uint32, conns []uint32, mode *Mode) error {
	mc := modeCRTC{
		setConnectorsPtr: ptr(conns),
		countConnectors:  uint32(len(conns)),
		crtcID:           crtc,
		fbID:             fb,
	}
	if mode != nil {
		mc.mode = mode.info
		mc.modeValid = 1
	}
	err := c.ioctl(ioctlModeSetCRTC, unsafe.Pointer(&mc))
	runtime.KeepAlive(conns)
	return errors.Wrapf(err, "drm: DRM_IOCTL_MODE_SETCRTC %d", crtc)
}

// RestoreCRTC sets a CRTC back to a state previously
// returned by CRTC.
func (c *Card) RestoreCRTC(saved *CRTC, conns []uint32) error {
	return c.SetCRTC(saved.ID, saved.FB, conns, saved.Mode)
}

// CreateDumb creates a dumb buffer.
func (c *Card) CreateDumb(width, height, bpp int) (*Dumb, error) {
	cd := modeCreateDumb{width: uint32(width), height: uint32(height), bpp: uint32(bpp)}
	if err := c.ioctl(ioctlModeCreateDumb, unsafe.Pointer(&cd)); err != nil {
		return nil, errors.Wrap(err, "drm: DRM_IOCTL_MODE_CREATE_DUMB")
	}
	return &Dumb{
		Handle: cd.handle,
		Width:  width,
		Height: height,
		Bpp:    bpp,
		Pitch:  int(cd.pitch),
		Size:   int64(cd.size),
	}, nil
}

// MapDumb maps a dumb buffer into host memory.
func (c *Card) MapDumb(d *Dumb) ([]byte, error) {
	md := modeMapDumb{handle: d.Handle}
	if err := c.ioctl(ioctlModeMapDumb, unsafe.Pointer(&md)); err != nil {
		return nil, errors.Wrap(err, "drm: DRM_IOCTL_MODE_MAP_DUMB")
	}
	b, err := unix.Mmap(c.fd, int64(md.offset), int(d.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "drm: mmap dumb buffer")
	}
	return b, nil
}

// UnmapDumb unmaps memory returned by MapDumb.
func (c *Card) UnmapDumb(b []byte) error {
	return unix.Munmap(b)
}

// DestroyDumb destroys a dumb buffer.
func (c *Card) DestroyDumb(d *Dumb) error {
	dd := modeDestroyDumb{handle: d.Handle}
	return errors.Wrap(c.ioctl(ioctlModeDestroyDumb, unsafe.Pointer(&dd)), "drm: DRM_IOCTL_MODE_DESTROY_DUMB")
}

// AddFB creates a framebuffer backed by a dumb buffer.
func (c *Card) AddFB(d *Dumb, depth int) (uint32, error) {
	fc := modeFBCmd{
		width:  uint32(d.Width),
		height: uint32(d.Height),
		pitch:  uint32(d.Pitch),
		bpp:    uint32(d.Bpp),
		depth:  uint32(depth),
		handle: d.Handle,
	}
	if err := c.ioctl(ioctlModeAddFB, unsafe.Pointer(&fc)); err != nil {
		return 0, errors.Wrap(err, "drm: DRM_IOCTL_MODE_ADDFB")
	}
	return fc.fbID, nil
}

// RemoveFB removes a framebuffer.
func (c *Card) RemoveFB(fb uint32) error {
	return errors.Wrap(c.ioctl(ioctlModeRmFB, unsafe.Pointer(&fb)), "drm: DRM_IOCTL_MODE_RMFB")
}

// PageFlip schedules fb to be scanned out by crtc at the
// next vblank. A flip-complete event carrying userData is
// delivered when it happens.
func (c *Card) PageFlip(crtc, fb uint32, userData uint64) error {
	pf := modeCRTCPageFlip{crtcID: crtc, fbID: fb, flags: pageFlipEvent, userData: userData}
	return errors.Wrap(c.ioctl(ioctlModePageFlip, unsafe.Pointer(&pf)), "drm: DRM_IOCTL_MODE_PAGE_FLIP")
}

// ErrTimeout means that no event arrived in time.
var ErrTimeout = errors.New("drm: timed out waiting for event")

// WaitEvents blocks until the card has events to read or
// timeout expires, then reads and decodes them.
// A negative timeout blocks indefinitely.
func (c *Card) WaitEvents(timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "drm: poll")
		}
		if n == 0 {
			return nil, ErrTimeout
		}
		break
	}
	buf := make([]byte, 1024)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		return nil, errors.Wrap(err, "drm: read event")
	}
	return ParseEvents(buf[:n])
}

// FindOutput picks the first connected connector that has
// at least one mode and a CRTC that can drive it.
// If name is not empty, only the connector with that name
// is considered.
func (c *Card) FindOutput(name string) (*Output, error) {
	res, err := c.Resources()
	if err != nil {
		return nil, err
	}
	for _, id := range res.Connectors {
		conn, err := c.Connector(id)
		if err != nil {
			return nil, err
		}
		if conn.Connection != Connected || (name != "" && conn.Name() != name) {
			continue
		}
		mode, ok := conn.PreferredMode()
		if !ok {
			continue
		}
		if crtc, ok := c.crtcFor(res, conn); ok {
			return &Output{Connector: *conn, CRTC: crtc, Mode: mode}, nil
		}
	}
	return nil, ErrNoOutput
}

// crtcFor returns a CRTC for conn, preferring the one its
// current encoder drives.
func (c *Card) crtcFor(res *Resources, conn *Connector) (uint32, bool) {
	if conn.Encoder != 0 {
		if enc, err := c.Encoder(conn.Encoder); err == nil && enc.CRTC != 0 {
			return enc.CRTC, true
		}
	}
	for _, eid := range conn.Encoders {
		enc, err := c.Encoder(eid)
		if err != nil {
			continue
		}
		if crtc, ok := PickCRTC(res.CRTCs, enc.PossibleCRTCs); ok {
			return crtc, true
		}
	}
	return 0, false
}
