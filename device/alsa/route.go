/*
DESCRIPTION
  route.go provides an audio route controller that enables and disables
  named device paths described by a mixer paths XML file.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package alsa

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/ausocean/spkrprot/device"
	"github.com/ausocean/utils/logging"
)

// ErrNoPath is returned when a route path is not defined.
var ErrNoPath = errors.New("no such route path")

// maxPathDepth bounds nesting of path references.
const maxPathDepth = 8

// The mixer paths file has the form:
//
//	<mixer>
//	  <ctl name="SpkrLeft PA Switch" value="0" />
//	  <path name="speaker">
//	    <ctl name="SpkrLeft PA Switch" value="1" />
//	  </path>
//	  <path name="speaker-and-vi">
//	    <path name="speaker" />
//	    <ctl name="VI Feedback Switch" value="1" />
//	  </path>
//	</mixer>
//
// Top level controls are the reset values restored when a path is disabled.
type xmlMixer struct {
	Ctls  []xmlCtl  `xml:"ctl"`
	Paths []xmlPath `xml:"path"`
}

type xmlPath struct {
	Name  string    `xml:"name,attr"`
	Ctls  []xmlCtl  `xml:"ctl"`
	Paths []xmlPath `xml:"path"`
}

type xmlCtl struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// setting is a single control value applied by a path.
type setting struct {
	ctl   string
	value string
}

// Route enables and disables named paths of mixer settings. It implements
// device.Router.
type Route struct {
	l        logging.Logger
	m        device.Mixer
	mu       sync.Mutex
	defaults map[string]string
	paths    map[string][]setting
	enabled  map[string]bool
}

// LoadRoute reads the mixer paths file at path.
func LoadRoute(l logging.Logger, m device.Mixer, path string) (*Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open mixer paths: %w", err)
	}
	defer f.Close()
	return NewRoute(l, m, f)
}

// NewRoute parses mixer paths XML from r. Nested path elements with only a
// name refer to other top level paths and are expanded in place.
func NewRoute(l logging.Logger, m device.Mixer, r io.Reader) (*Route, error) {
	var x xmlMixer
	d := xml.NewDecoder(r)
	d.CharsetReader = charsetReader
	err := d.Decode(&x)
	if err != nil {
		return nil, fmt.Errorf("could not parse mixer paths: %w", err)
	}

	rt := &Route{
		l:        l,
		m:        m,
		defaults: make(map[string]string),
		paths:    make(map[string][]setting),
		enabled:  make(map[string]bool),
	}
	for _, c := range x.Ctls {
		rt.defaults[c.Name] = c.Value
	}

	top := make(map[string]xmlPath)
	for _, p := range x.Paths {
		top[p.Name] = p
	}
	for name, p := range top {
		var s []setting
		s, err = expand(p, top, 0)
		if err != nil {
			return nil, fmt.Errorf("could not expand path %q: %w", name, err)
		}
		rt.paths[name] = s
	}
	l.Debug("loaded mixer paths", "paths", len(rt.paths), "defaults", len(rt.defaults))
	return rt, nil
}

// charsetReader converts documents declaring a non UTF-8 encoding, usually
// ISO-8859-1 in mixer paths files, to UTF-8.
func charsetReader(label string, r io.Reader) (io.Reader, error) {
	e, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	if e == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return e.NewDecoder().Reader(r), nil
}

func expand(p xmlPath, top map[string]xmlPath, depth int) ([]setting, error) {
	if depth > maxPathDepth {
		return nil, errors.New("path references nested too deeply")
	}
	var s []setting
	for _, sub := range p.Paths {
		ref, ok := top[sub.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoPath, sub.Name)
		}
		subs, err := expand(ref, top, depth+1)
		if err != nil {
			return nil, err
		}
		s = append(s, subs...)
	}
	for _, c := range p.Ctls {
		s = append(s, setting{ctl: c.Name, value: c.Value})
	}
	return s, nil
}

// EnableDevice applies the settings of the named path. Enabling an enabled
// path does nothing.
func (r *Route) EnableDevice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.paths[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPath, name)
	}
	if r.enabled[name] {
		return nil
	}
	var errs device.MultiError
	for _, c := range s {
		errs.Add(r.apply(c.ctl, c.value))
	}
	r.enabled[name] = true
	r.l.Debug("enabled route path", "path", name)
	return errs.Err()
}

// DisableDevice restores the controls touched by the named path to their
// reset values. Controls without a reset value are set to zero.
func (r *Route) DisableDevice(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.paths[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPath, name)
	}
	if !r.enabled[name] {
		return nil
	}
	var errs device.MultiError
	for i := len(s) - 1; i >= 0; i-- {
		v, ok := r.defaults[s[i].ctl]
		if !ok {
			v = "0"
		}
		errs.Add(r.apply(s[i].ctl, v))
	}
	delete(r.enabled, name)
	r.l.Debug("disabled route path", "path", name)
	return errs.Err()
}

// Enabled reports whether the named path is enabled.
func (r *Route) Enabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[name]
}

// apply sets ctl to value, treating numeric values as integers and anything
// else as an enumerated item name.
func (r *Route) apply(ctl, value string) error {
	n, err := strconv.Atoi(value)
	if err == nil {
		return r.m.SetValue(ctl, n)
	}
	return r.m.SetEnum(ctl, value)
}
