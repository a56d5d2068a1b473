// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package drm

import "unsafe"

// ioctl encoding (asm-generic).
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocWrite = 1
	iocRead  = 2

	drmBase = 'd'
)

func io(nr uintptr) uintptr {
	return drmBase<<iocTypeShift | nr<<iocNRShift
}

func iowr(nr, size uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift | size<<iocSizeShift | drmBase<<iocTypeShift | nr<<iocNRShift
}

// Request numbers.
var (
	ioctlGetCap           = iowr(0x0c, unsafe.Sizeof(getCap{}))
	ioctlSetMaster        = io(0x1e)
	ioctlDropMaster       = io(0x1f)
	ioctlModeGetResources = iowr(0xa0, unsafe.Sizeof(cardRes{}))
	ioctlModeGetCRTC      = iowr(0xa1, unsafe.Sizeof(modeCRTC{}))
	ioctlModeSetCRTC      = iowr(0xa2, unsafe.Sizeof(modeCRTC{}))
	ioctlModeGetEncoder   = iowr(0xa6, unsafe.Sizeof(modeGetEncoder{}))
	ioctlModeGetConnector = iowr(0xa7, unsafe.Sizeof(modeGetConnector{}))
	ioctlModeAddFB        = iowr(0xae, unsafe.Sizeof(modeFBCmd{}))
	ioctlModeRmFB         = iowr(0xaf, unsafe.Sizeof(uint32(0)))
	ioctlModePageFlip     = iowr(0xb0, unsafe.Sizeof(modeCRTCPageFlip{}))
	ioctlModeCreateDumb   = iowr(0xb2, unsafe.Sizeof(modeCreateDumb{}))
	ioctlModeMapDumb      = iowr(0xb3, unsafe.Sizeof(modeMapDumb{}))
	ioctlModeDestroyDumb  = iowr(0xb4, unsafe.Sizeof(modeDestroyDumb{}))
)

// Capabilities.
const (
	CapDumbBuffer       = 0x1
	CapDumbPreferDepth  = 0x3
	CapDumbPreferShadow = 0x4
)

const (
	modeTypePreferred = 1 << 3
	pageFlipEvent     = 0x01
	eventVBlank       = 0x01
	eventFlipComplete = 0x02
)

type getCap struct {
	capability uint64
	value      uint64
}

type cardRes struct {
	fbIDPtr        uint64
	crtcIDPtr      uint64
	connectorIDPtr uint64
	encoderIDPtr   uint64
	countFBs       uint32
	countCRTCs     uint32
	countConns     uint32
	countEncoders  uint32
	minWidth       uint32
	maxWidth       uint32
	minHeight      uint32
	maxHeight      uint32
}

type modeInfo struct {
	clock      uint32
	hdisplay   uint16
	hsyncStart uint16
	hsyncEnd   uint16
	htotal     uint16
	hskew      uint16
	vdisplay   uint16
	vsyncStart uint16
	vsyncEnd   uint16
	vtotal     uint16
	vscan      uint16
	vrefresh   uint32
	flags      uint32
	typ        uint32
	name       [32]byte
}

type modeCRTC struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             modeInfo
}

type modeGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCRTCs  uint32
	possibleClones uint32
}

type modeGetConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

type modeFBCmd struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type modeCRTCPageFlip struct {
	crtcID   uint32
	fbID     uint32
	flags    uint32
	reserved uint32
	userData uint64
}

type modeCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type modeMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type modeDestroyDumb struct {
	handle uint32
}
