/*
DESCRIPTION
  ioctl_linux.go provides the ALSA control interface structures and ioctl
  request codes used by the mixer.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package alsa

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Control element types.
const (
	elemBoolean    = 1
	elemInteger    = 2
	elemEnumerated = 3
	elemBytes      = 4
	elemInteger64  = 6
)

// Control element access flags.
const (
	accessRead         = 1 << 0
	accessWrite        = 1 << 1
	accessTLVRead      = 1 << 4
	accessTLVWrite     = 1 << 5
	accessTLVReadWrite = accessTLVRead | accessTLVWrite
)

// Control event type and masks.
const (
	eventElem      = 0
	eventMaskValue = 1 << 0
)

// sndCtlElemID identifies a single control element.
type sndCtlElemID struct {
	Numid     uint32
	Iface     int32
	Device    uint32
	Subdevice uint32
	Name      [44]byte
	Index     uint32
}

// sndCtlElemInfo describes a control element. For enumerated controls the
// value union holds the item count at offset 0, the queried item at offset 4
// and the item name from offset 8.
type sndCtlElemInfo struct {
	ID       sndCtlElemID
	Type     int32
	Access   uint32
	Count    uint32
	Owner    int32
	Value    [128]byte
	Reserved [64]byte
}

// sndCtlElemList is used to enumerate control elements.
type sndCtlElemList struct {
	Offset   uint32
	Space    uint32
	Used     uint32
	Count    uint32
	Pids     uintptr // *sndCtlElemID
	Reserved [50]byte
}

// sndCtlEvent is a notification read from the control device.
type sndCtlEvent struct {
	Type int32
	Mask uint32
	ID   sndCtlElemID
}

// tlvHeaderSize is the size of the numid and length preceding TLV data.
const tlvHeaderSize = 8

var (
	ctlIoctlElemList        = iowr('U', 0x10, unsafe.Sizeof(sndCtlElemList{}))
	ctlIoctlElemInfo        = iowr('U', 0x11, unsafe.Sizeof(sndCtlElemInfo{}))
	ctlIoctlElemRead        = iowr('U', 0x12, unsafe.Sizeof(sndCtlElemValue{}))
	ctlIoctlElemWrite       = iowr('U', 0x13, unsafe.Sizeof(sndCtlElemValue{}))
	ctlIoctlSubscribeEvents = iowr('U', 0x16, unsafe.Sizeof(int32(0)))
	ctlIoctlTLVRead         = iowr('U', 0x1a, tlvHeaderSize)
	ctlIoctlTLVWrite        = iowr('U', 0x1b, tlvHeaderSize)
)

// ioctl performs an ioctl on fd with a pointer argument.
func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// iowr builds a read-write ioctl request code.
func iowr(typ, nr, size uintptr) uintptr {
	const (
		nrBits    = 8
		typeBits  = 8
		sizeBits  = 14
		typeShift = nrBits
		sizeShift = typeShift + typeBits
		dirShift  = sizeShift + sizeBits
		dirRW     = 3
	)
	return dirRW<<dirShift | typ<<typeShift | nr | size<<sizeShift
}

// cString returns the NUL terminated string at the start of b.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
