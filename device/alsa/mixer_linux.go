/*
DESCRIPTION
  mixer_linux.go provides access to the controls of an ALSA sound card
  through the kernel control interface, /dev/snd/controlC<card>.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package alsa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ausocean/utils/logging"
)

// Mixer errors.
var (
	ErrNoControl   = errors.New("no such mixer control")
	ErrControlType = errors.New("operation not supported by control type")
	ErrEnumItem    = errors.New("no such enumerated item")
	ErrTooLarge    = errors.New("value too large for control")
)

// Mixer is an open ALSA control device. It implements device.Mixer.
type Mixer struct {
	l     logging.Logger
	mu    sync.Mutex
	file  *os.File
	card  int
	ctls  map[string]sndCtlElemInfo
	names map[uint32]string
	enums map[uint32][]string
}

// OpenMixer opens the control device of card and enumerates its controls.
func OpenMixer(l logging.Logger, card int) (*Mixer, error) {
	path := fmt.Sprintf("/dev/snd/controlC%d", card)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open mixer %s: %w", path, err)
	}
	m := &Mixer{
		l:     l,
		file:  f,
		card:  card,
		ctls:  make(map[string]sndCtlElemInfo),
		names: make(map[uint32]string),
		enums: make(map[uint32][]string),
	}
	err = m.enumerate()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not enumerate controls of card %d: %w", card, err)
	}
	l.Debug("opened mixer", "card", card, "controls", len(m.ctls))
	return m, nil
}

// Close closes the control device.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// Card returns the card number of the mixer.
func (m *Mixer) Card() int { return m.card }

func (m *Mixer) enumerate() error {
	var list sndCtlElemList
	err := ioctl(m.file.Fd(), ctlIoctlElemList, unsafe.Pointer(&list))
	if err != nil {
		return fmt.Errorf("could not count controls: %w", err)
	}
	if list.Count == 0 {
		return nil
	}

	ids := make([]sndCtlElemID, list.Count)
	list.Space = list.Count
	list.Pids = uintptr(unsafe.Pointer(&ids[0]))
	err = ioctl(m.file.Fd(), ctlIoctlElemList, unsafe.Pointer(&list))
	if err != nil {
		return fmt.Errorf("could not list controls: %w", err)
	}

	for _, id := range ids[:list.Used] {
		info := sndCtlElemInfo{ID: id}
		err = ioctl(m.file.Fd(), ctlIoctlElemInfo, unsafe.Pointer(&info))
		if err != nil {
			m.l.Debug("skipping control", "numid", id.Numid, "error", err)
			continue
		}
		name := cString(info.ID.Name[:])
		if _, ok := m.ctls[name]; ok {
			continue // Controls sharing a name are addressed by their first instance.
		}
		m.ctls[name] = info
		m.names[info.ID.Numid] = name
	}
	return nil
}

// lookup returns the info of the named control. m.mu must be held.
func (m *Mixer) lookup(name string) (sndCtlElemInfo, error) {
	if m.file == nil {
		return sndCtlElemInfo{}, os.ErrClosed
	}
	info, ok := m.ctls[name]
	if !ok {
		return sndCtlElemInfo{}, fmt.Errorf("%w: %q", ErrNoControl, name)
	}
	return info, nil
}

func (m *Mixer) read(info sndCtlElemInfo) (*sndCtlElemValue, error) {
	v := &sndCtlElemValue{ID: info.ID}
	err := ioctl(m.file.Fd(), ctlIoctlElemRead, unsafe.Pointer(v))
	if err != nil {
		return nil, fmt.Errorf("could not read control %q: %w", cString(info.ID.Name[:]), err)
	}
	return v, nil
}

func (m *Mixer) write(info sndCtlElemInfo, v *sndCtlElemValue) error {
	v.ID = info.ID
	err := ioctl(m.file.Fd(), ctlIoctlElemWrite, unsafe.Pointer(v))
	if err != nil {
		return fmt.Errorf("could not write control %q: %w", cString(info.ID.Name[:]), err)
	}
	return nil
}

// Value returns the first value of a boolean, integer or enumerated control.
func (m *Mixer) Value(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	v, err := m.read(info)
	if err != nil {
		return 0, err
	}
	switch info.Type {
	case elemBoolean, elemInteger:
		return int(getLong(v.Value[:], 0)), nil
	case elemInteger64:
		return int(int64(binary.NativeEndian.Uint64(v.Value[:]))), nil
	case elemEnumerated:
		return int(binary.NativeEndian.Uint32(v.Value[:])), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrControlType, name)
	}
}

// SetValue sets every value of a boolean, integer or enumerated control to val.
func (m *Mixer) SetValue(name string, val int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.lookup(name)
	if err != nil {
		return err
	}
	var v sndCtlElemValue
	for i := 0; i < int(info.Count); i++ {
		switch info.Type {
		case elemBoolean, elemInteger:
			putLong(v.Value[:], i, int64(val))
		case elemInteger64:
			binary.NativeEndian.PutUint64(v.Value[8*i:], uint64(val))
		case elemEnumerated:
			binary.NativeEndian.PutUint32(v.Value[4*i:], uint32(val))
		default:
			return fmt.Errorf("%w: %q", ErrControlType, name)
		}
	}
	return m.write(info, &v)
}

// SetInts sets the values of an integer array control. Values beyond the
// length of vals are left at zero.
func (m *Mixer) SetInts(name string, vals []int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.lookup(name)
	if err != nil {
		return err
	}
	if info.Type != elemInteger && info.Type != elemInteger64 {
		return fmt.Errorf("%w: %q", ErrControlType, name)
	}
	if len(vals) > int(info.Count) {
		return fmt.Errorf("%w: %q holds %d values, got %d", ErrTooLarge, name, info.Count, len(vals))
	}
	var v sndCtlElemValue
	for i, val := range vals {
		if info.Type == elemInteger64 {
			binary.NativeEndian.PutUint64(v.Value[8*i:], uint64(int64(val)))
			continue
		}
		putLong(v.Value[:], i, int64(val))
	}
	return m.write(info, &v)
}

// SetEnum selects an item of an enumerated control by name.
func (m *Mixer) SetEnum(name, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.lookup(name)
	if err != nil {
		return err
	}
	if info.Type != elemEnumerated {
		return fmt.Errorf("%w: %q", ErrControlType, name)
	}
	items, err := m.enumItems(info)
	if err != nil {
		return err
	}
	idx := -1
	for i, s := range items {
		if s == item {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q in %q", ErrEnumItem, item, name)
	}
	var v sndCtlElemValue
	for i := 0; i < int(info.Count); i++ {
		binary.NativeEndian.PutUint32(v.Value[4*i:], uint32(idx))
	}
	return m.write(info, &v)
}

// enumItems returns the item names of an enumerated control, caching them.
func (m *Mixer) enumItems(info sndCtlElemInfo) ([]string, error) {
	if items, ok := m.enums[info.ID.Numid]; ok {
		return items, nil
	}
	n := binary.NativeEndian.Uint32(info.Value[0:])
	items := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		q := sndCtlElemInfo{ID: info.ID}
		binary.NativeEndian.PutUint32(q.Value[4:], i)
		err := ioctl(m.file.Fd(), ctlIoctlElemInfo, unsafe.Pointer(&q))
		if err != nil {
			return nil, fmt.Errorf("could not read item %d of %q: %w", i, cString(info.ID.Name[:]), err)
		}
		items = append(items, cString(q.Value[8:72]))
	}
	m.enums[info.ID.Numid] = items
	return items, nil
}

// Bytes returns the contents of a byte or TLV control.
func (m *Mixer) Bytes(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	if info.Access&accessTLVRead != 0 {
		buf := make([]byte, tlvHeaderSize+int(info.Count))
		binary.NativeEndian.PutUint32(buf[0:], info.ID.Numid)
		binary.NativeEndian.PutUint32(buf[4:], info.Count)
		err = ioctl(m.file.Fd(), ctlIoctlTLVRead, unsafe.Pointer(&buf[0]))
		if err != nil {
			return nil, fmt.Errorf("could not read TLV control %q: %w", name, err)
		}
		n := min(int(binary.NativeEndian.Uint32(buf[4:])), int(info.Count))
		return buf[tlvHeaderSize : tlvHeaderSize+n], nil
	}

	if info.Type != elemBytes {
		return nil, fmt.Errorf("%w: %q", ErrControlType, name)
	}
	v, err := m.read(info)
	if err != nil {
		return nil, err
	}
	b := make([]byte, min(int(info.Count), len(v.Value)))
	copy(b, v.Value[:])
	return b, nil
}

// SetBytes writes the contents of a byte or TLV control.
func (m *Mixer) SetBytes(name string, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, err := m.lookup(name)
	if err != nil {
		return err
	}
	if len(b) > int(info.Count) {
		return fmt.Errorf("%w: %q holds %d bytes, got %d", ErrTooLarge, name, info.Count, len(b))
	}

	if info.Access&accessTLVWrite != 0 {
		buf := make([]byte, tlvHeaderSize+len(b))
		binary.NativeEndian.PutUint32(buf[0:], info.ID.Numid)
		binary.NativeEndian.PutUint32(buf[4:], uint32(len(b)))
		copy(buf[tlvHeaderSize:], b)
		err = ioctl(m.file.Fd(), ctlIoctlTLVWrite, unsafe.Pointer(&buf[0]))
		if err != nil {
			return fmt.Errorf("could not write TLV control %q: %w", name, err)
		}
		return nil
	}

	if info.Type != elemBytes {
		return fmt.Errorf("%w: %q", ErrControlType, name)
	}
	var v sndCtlElemValue
	if len(b) > len(v.Value) {
		return fmt.Errorf("%w: %q", ErrTooLarge, name)
	}
	copy(v.Value[:], b)
	return m.write(info, &v)
}

// SubscribeEvents enables or disables delivery of control change events.
func (m *Mixer) SubscribeEvents(enable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return os.ErrClosed
	}
	var val int32
	if enable {
		val = 1
	}
	err := ioctl(m.file.Fd(), ctlIoctlSubscribeEvents, unsafe.Pointer(&val))
	if err != nil {
		return fmt.Errorf("could not subscribe to events: %w", err)
	}
	return nil
}

// WaitEvent waits up to timeout for a control event. It returns true if an
// event is ready to be read.
func (m *Mixer) WaitEvent(timeout time.Duration) (bool, error) {
	m.mu.Lock()
	if m.file == nil {
		m.mu.Unlock()
		return false, os.ErrClosed
	}
	fd := int32(m.file.Fd())
	m.mu.Unlock()

	pfd := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if pfd[0].Revents&unix.POLLIN == 0 {
		return false, fmt.Errorf("unexpected poll events: %#x", pfd[0].Revents)
	}
	return true, nil
}

// ReadEvent reads a pending control event and returns the name of the
// control whose value changed. An empty name is returned for events other
// than value changes.
func (m *Mixer) ReadEvent() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return "", os.ErrClosed
	}
	var ev sndCtlEvent
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
	n, err := unix.Read(int(m.file.Fd()), buf)
	if err != nil {
		return "", fmt.Errorf("could not read event: %w", err)
	}
	if n < len(buf) {
		return "", fmt.Errorf("short event read: %d bytes", n)
	}
	if ev.Type != eventElem || ev.Mask&eventMaskValue == 0 {
		return "", nil
	}
	return m.names[ev.ID.Numid], nil
}

func getLong(b []byte, i int) int64 {
	if sizeofLong == 4 {
		return int64(int32(binary.NativeEndian.Uint32(b[4*i:])))
	}
	return int64(binary.NativeEndian.Uint64(b[8*i:]))
}

func putLong(b []byte, i int, v int64) {
	if sizeofLong == 4 {
		binary.NativeEndian.PutUint32(b[4*i:], uint32(v))
		return
	}
	binary.NativeEndian.PutUint64(b[8*i:], uint64(v))
}
