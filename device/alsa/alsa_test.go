/*
DESCRIPTION
  alsa_test.go provides tests for the alsa package.

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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/utils/logging"
)

func TestOpenPCM(t *testing.T) {
	l := logging.New(logging.Debug, &bytes.Buffer{}, true) // Discard logs.
	p, err := OpenPCM(l, 0, 0, device.Playback, device.PCMConfig{Channels: 2, Rate: 48000, BitWidth: 16})
	// Not all testing environments will have sound cards.
	if err != nil {
		t.Skipf("could not open device: %v", err)
	}
	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Close())
	assert.Error(t, p.Start())
}

var powerTests = []struct {
	in  int
	out int
}{
	{36, 32},
	{47, 32},
	{3, 4},
	{46, 32},
	{7, 8},
	{2, 2},
	{757, 512},
	{2464, 2048},
	{18980, 16384},
	{70000, 65536},
	{8192, 8192},
	{65536, 65536},
	{-2048, 1},
	{-1, 1},
	{0, 1},
	{1, 2},
}

func TestNearestPowerOfTwo(t *testing.T) {
	for _, tt := range powerTests {
		t.Run(strconv.Itoa(tt.in), func(t *testing.T) {
			v := nearestPowerOfTwo(tt.in)
			if v != tt.out {
				t.Errorf("got %v, want %v", v, tt.out)
			}
		})
	}
}

// recMixer records the values set on it.
type recMixer struct {
	mu   sync.Mutex
	vals map[string]string
	log  []string
	fail map[string]bool
}

func newRecMixer() *recMixer {
	return &recMixer{vals: map[string]string{}, fail: map[string]bool{}}
}

func (m *recMixer) set(name, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[name] {
		return errors.New("write failed")
	}
	m.vals[name] = v
	m.log = append(m.log, name+"="+v)
	return nil
}

func (m *recMixer) Value(name string) (int, error) {
	return strconv.Atoi(m.vals[name])
}
func (m *recMixer) SetValue(name string, v int) error    { return m.set(name, strconv.Itoa(v)) }
func (m *recMixer) SetEnum(name, item string) error      { return m.set(name, item) }
func (m *recMixer) SetInts(name string, v []int32) error { return errors.New("not supported") }
func (m *recMixer) Bytes(name string) ([]byte, error)    { return nil, errors.New("not supported") }
func (m *recMixer) SetBytes(name string, b []byte) error { return errors.New("not supported") }

const mixerPaths = `<?xml version="1.0" encoding="ISO-8859-1"?>
<mixer>
  <ctl name="SpkrLeft PA Switch" value="0" />
  <ctl name="WSA RX0 MUX" value="ZERO" />
  <path name="speaker">
    <ctl name="WSA RX0 MUX" value="AIF1_PB" />
    <ctl name="SpkrLeft PA Switch" value="1" />
  </path>
  <path name="vi-feedback">
    <ctl name="SpkrLeft VISENSE Switch" value="1" />
  </path>
  <path name="speaker-protected">
    <path name="speaker" />
    <path name="vi-feedback" />
  </path>
</mixer>`

func TestRoute(t *testing.T) {
	l := logging.New(logging.Debug, &bytes.Buffer{}, true)
	m := newRecMixer()
	r, err := NewRoute(l, m, strings.NewReader(mixerPaths))
	require.NoError(t, err)

	require.NoError(t, r.EnableDevice("speaker-protected"))
	assert.True(t, r.Enabled("speaker-protected"))
	assert.Equal(t, []string{
		"WSA RX0 MUX=AIF1_PB",
		"SpkrLeft PA Switch=1",
		"SpkrLeft VISENSE Switch=1",
	}, m.log)

	// Enabling twice is a no-op.
	require.NoError(t, r.EnableDevice("speaker-protected"))
	assert.Len(t, m.log, 3)

	m.log = nil
	require.NoError(t, r.DisableDevice("speaker-protected"))
	assert.False(t, r.Enabled("speaker-protected"))
	assert.Equal(t, []string{
		"SpkrLeft VISENSE Switch=0",
		"SpkrLeft PA Switch=0",
		"WSA RX0 MUX=ZERO",
	}, m.log)

	assert.ErrorIs(t, r.EnableDevice("headphones"), ErrNoPath)
	assert.ErrorIs(t, r.DisableDevice("headphones"), ErrNoPath)
}

func TestRouteErrors(t *testing.T) {
	l := logging.New(logging.Debug, &bytes.Buffer{}, true)

	_, err := NewRoute(l, newRecMixer(), strings.NewReader(`<mixer><path name="a"><path name="b"/></path></mixer>`))
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = NewRoute(l, newRecMixer(), strings.NewReader(`<mixer><path name="a"><path name="a"/></path></mixer>`))
	assert.Error(t, err, "self reference should fail")

	_, err = NewRoute(l, newRecMixer(), strings.NewReader(`<mixer>`))
	assert.Error(t, err)

	// Every control of a path is attempted even when one fails.
	m := newRecMixer()
	m.fail["WSA RX0 MUX"] = true
	r, err := NewRoute(l, m, strings.NewReader(mixerPaths))
	require.NoError(t, err)
	err = r.EnableDevice("speaker")
	var me device.MultiError
	require.ErrorAs(t, err, &me)
	assert.Len(t, me, 1)
	assert.Equal(t, "1", m.vals["SpkrLeft PA Switch"])
}

func TestRouteCharset(t *testing.T) {
	l := logging.New(logging.Debug, &bytes.Buffer{}, true)

	// 0xe9 is e acute in ISO-8859-1.
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<mixer><path name=\"speaker\"><ctl name=\"Caf\xe9 Switch\" value=\"1\" /></path></mixer>"
	m := newRecMixer()
	r, err := NewRoute(l, m, strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, r.EnableDevice("speaker"))
	assert.Equal(t, []string{"Caf\u00e9 Switch=1"}, m.log)

	_, err = NewRoute(l, newRecMixer(), strings.NewReader(`<?xml version="1.0" encoding="x-no-such-charset"?><mixer></mixer>`))
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestResolveCard(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cards"),
		" 0 [sm8550mtp      ]: sm8550-mtp - sm8550-mtp-snd-card\n"+
			"                      sm8550-mtp-snd-card\n"+
			"100 [AGM            ]: agm - agm virtual card\n")

	n, err := ResolveCard(root, "agm")
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	n, err = ResolveCard(root, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = ResolveCard(root, "usb")
	assert.ErrorIs(t, err, ErrNoCard)
}

func TestMonitor(t *testing.T) {
	root := t.TempDir()
	status := filepath.Join(root, "card0", "pcm1p", "sub0", "status")
	writeFile(t, status, "closed\n")

	running, err := PlaybackRunning(root, 0, 1)
	require.NoError(t, err)
	assert.False(t, running)

	l := logging.New(logging.Debug, &bytes.Buffer{}, true)
	mon := NewMonitor(l, root, 0, []int{1, 2}, 5*time.Millisecond)

	changes := make(chan bool, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- mon.Run(ctx, func(r bool) { changes <- r }) }()

	writeFile(t, status, "state: RUNNING\nowner_pid   : 1234\n")
	select {
	case r := <-changes:
		assert.True(t, r)
	case <-time.After(time.Second):
		t.Fatal("did not see playback start")
	}

	writeFile(t, status, "state: SETUP\n")
	select {
	case r := <-changes:
		assert.False(t, r)
	case <-time.After(time.Second):
		t.Fatal("did not see playback stop")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
