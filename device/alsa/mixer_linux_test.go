/*
DESCRIPTION
  mixer_linux_test.go provides tests for the ALSA control interface.

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
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/utils/logging"
)

func TestStructLayout(t *testing.T) {
	assert.EqualValues(t, 64, unsafe.Sizeof(sndCtlElemID{}))
	assert.EqualValues(t, 272, unsafe.Sizeof(sndCtlElemInfo{}))
	assert.EqualValues(t, 72, unsafe.Sizeof(sndCtlEvent{}))

	if sizeofLong == 8 {
		assert.EqualValues(t, 1224, unsafe.Sizeof(sndCtlElemValue{}))
		assert.EqualValues(t, uintptr(0xc4c85512), ctlIoctlElemRead)
		assert.EqualValues(t, uintptr(0xc4c85513), ctlIoctlElemWrite)
	} else {
		assert.EqualValues(t, 708, unsafe.Sizeof(sndCtlElemValue{}))
	}
	assert.EqualValues(t, uintptr(0xc1105511), ctlIoctlElemInfo)
	assert.EqualValues(t, uintptr(0xc0045516), ctlIoctlSubscribeEvents)
	assert.EqualValues(t, uintptr(0xc008551a), ctlIoctlTLVRead)
}

func TestLongValues(t *testing.T) {
	var b [64]byte
	putLong(b[:], 1, -5)
	putLong(b[:], 2, 1<<20)
	assert.EqualValues(t, 0, getLong(b[:], 0))
	assert.EqualValues(t, -5, getLong(b[:], 1))
	assert.EqualValues(t, 1<<20, getLong(b[:], 2))
}

func TestCString(t *testing.T) {
	assert.Equal(t, "PCM100 metadata", cString([]byte("PCM100 metadata\x00\x00junk")))
	assert.Equal(t, "full", cString([]byte("full")))
}

func TestMixer(t *testing.T) {
	l := logging.New(logging.Debug, &bytes.Buffer{}, true)
	m, err := OpenMixer(l, 0)
	// Not all testing environments will have sound cards.
	if err != nil {
		t.Skipf("could not open mixer: %v", err)
	}
	defer m.Close()

	_, err = m.Value("No Such Control")
	assert.ErrorIs(t, err, ErrNoControl)

	require.NoError(t, m.SubscribeEvents(true))
	_, err = m.WaitEvent(10 * time.Millisecond)
	assert.NoError(t, err)
	require.NoError(t, m.SubscribeEvents(false))
}
