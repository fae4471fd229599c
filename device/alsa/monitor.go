/*
DESCRIPTION
  monitor.go provides discovery of sound cards and a monitor reporting when
  playback PCM devices start and stop running, both using the ALSA procfs
  interface.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package alsa

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
)

// ProcRoot is the default location of the ALSA procfs tree.
const ProcRoot = "/proc/asound"

// ErrNoCard is returned when a named sound card cannot be found.
var ErrNoCard = errors.New("no such sound card")

// Each card has a line like: " 0 [Loopback       ]: Loopback - Loopback".
var cardLine = regexp.MustCompile(`^\s*(\d+)\s+\[(\S+?)\s*\]`)

// ResolveCard returns the number of the card with the given ID. A numeric
// name is returned as is.
func ResolveCard(root, name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	f, err := os.Open(filepath.Join(root, "cards"))
	if err != nil {
		return 0, fmt.Errorf("could not read card list: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		m := cardLine.FindStringSubmatch(s.Text())
		if m != nil && strings.EqualFold(m[2], name) {
			n, _ := strconv.Atoi(m[1])
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNoCard, name)
}

// PlaybackRunning reports whether the first substream of playback device dev
// on card is running.
func PlaybackRunning(root string, card, dev int) (bool, error) {
	path := filepath.Join(root, fmt.Sprintf("card%d", card), fmt.Sprintf("pcm%dp", dev), "sub0", "status")
	b, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	s := bufio.NewScanner(strings.NewReader(string(b)))
	for s.Scan() {
		k, v, ok := strings.Cut(s.Text(), ":")
		if ok && strings.TrimSpace(k) == "state" {
			return strings.TrimSpace(v) == "RUNNING", nil
		}
	}
	return false, nil // "closed".
}

// Monitor watches a set of playback devices and reports when any of them
// starts running and when all of them have stopped.
type Monitor struct {
	l        logging.Logger
	root     string
	card     int
	devs     []int
	interval time.Duration
}

// NewMonitor returns a Monitor polling playback devices devs of card every
// interval, reading procfs under root.
func NewMonitor(l logging.Logger, root string, card int, devs []int, interval time.Duration) *Monitor {
	return &Monitor{l: l, root: root, card: card, devs: devs, interval: interval}
}

// Run polls until ctx is cancelled, calling onChange with true when playback
// starts and false when it stops.
func (m *Monitor) Run(ctx context.Context, onChange func(running bool)) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	var was bool
	for {
		now := m.running()
		if now != was {
			m.l.Debug("playback state changed", "running", now)
			onChange(now)
			was = now
		}
		select {
		case <-ctx.Done():
			if was {
				onChange(false)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (m *Monitor) running() bool {
	for _, d := range m.devs {
		ok, err := PlaybackRunning(m.root, m.card, d)
		if err != nil {
			m.l.Debug("could not read playback state", "card", m.card, "device", d, "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
