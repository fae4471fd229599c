//go:build linux && (amd64 || arm64 || riscv64 || ppc64le)

/*
DESCRIPTION
  types_64bit.go provides the layouts of ALSA control structures that
  depend on the size of a C long on 64 bit platforms.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package alsa

// sizeofLong is the size of a C long.
const sizeofLong = 8

// sndCtlElemValue holds the value of a control element.
type sndCtlElemValue struct {
	ID       sndCtlElemID
	_        [8]byte    // Indirect flag and padding.
	Value    [1024]byte // long value[128].
	Reserved [128]byte
}
