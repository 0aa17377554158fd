// Package ports finds the two destinations the inbound dispatcher needs:
// the first input atom port that accepts patch messages and the first input
// atom or event port that accepts MIDI events.
//
// Port declarations come from a TOML manifest:
//
//	[[plugin]]
//	uri = "urn:example:synth"
//
//	[[plugin.port]]
//	index    = 0
//	symbol   = "control"
//	classes  = ["lv2:InputPort", "atom:AtomPort"]
//	supports = ["patch:Message", "midi:MidiEvent"]
package ports

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// None marks an absent destination.
const None = -1

const (
	LV2Prefix   = "http://lv2plug.in/ns/lv2core#"
	EventPrefix = "http://lv2plug.in/ns/ext/event#"

	URIInputPort  = LV2Prefix + "InputPort"
	URIOutputPort = LV2Prefix + "OutputPort"
	URIAtomPort   = "http://lv2plug.in/ns/ext/atom#AtomPort"
	URIEventPort  = EventPrefix + "EventPort"
	URIPatchMsg   = "http://lv2plug.in/ns/ext/patch#Message"
	URIMidiEvent  = "http://lv2plug.in/ns/ext/midi#MidiEvent"
)

var prefixes = map[string]string{
	"lv2":   LV2Prefix,
	"atom":  "http://lv2plug.in/ns/ext/atom#",
	"ev":    EventPrefix,
	"patch": "http://lv2plug.in/ns/ext/patch#",
	"midi":  "http://lv2plug.in/ns/ext/midi#",
}

var ErrUnknownPlugin = errors.New("ports: unknown plugin")

// Destinations are port indices, None when the plugin has no such port.
type Destinations struct {
	Patch int
	MIDI  int
}

// Absent is the result for a plugin with neither destination.
func Absent() Destinations {
	return Destinations{Patch: None, MIDI: None}
}

// Classifier yields the destinations of a plugin.
type Classifier interface {
	Destinations(pluginURI string) (Destinations, error)
}

type Port struct {
	Index    int      `toml:"index"`
	Symbol   string   `toml:"symbol"`
	Classes  []string `toml:"classes"`
	Supports []string `toml:"supports"`
}

func (p Port) Is(class string) bool      { return contains(p.Classes, class) }
func (p Port) Accepts(event string) bool { return contains(p.Supports, event) }

type Plugin struct {
	URI   string `toml:"uri"`
	Ports []Port `toml:"port"`
}

// Manifest is a set of plugin port declarations. It implements Classifier.
type Manifest struct {
	Plugins []Plugin `toml:"plugin"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ports: read manifest: %w", err)
	}
	return ParseManifest(string(data))
}

// ParseManifest decodes a manifest and expands prefixed names to full URIs.
func ParseManifest(data string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(data, &m); err != nil {
		return nil, fmt.Errorf("ports: decode manifest: %w", err)
	}
	for i := range m.Plugins {
		pl := &m.Plugins[i]
		pl.URI = Expand(pl.URI)
		for j := range pl.Ports {
			p := &pl.Ports[j]
			for k := range p.Classes {
				p.Classes[k] = Expand(p.Classes[k])
			}
			for k := range p.Supports {
				p.Supports[k] = Expand(p.Supports[k])
			}
		}
	}
	return &m, nil
}

func (m *Manifest) Destinations(pluginURI string) (Destinations, error) {
	uri := Expand(pluginURI)
	for _, pl := range m.Plugins {
		if pl.URI == uri {
			return Classify(pl.Ports), nil
		}
	}
	return Absent(), fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginURI)
}

// Classify scans input ports in declaration order and stops once both
// destinations are found.
func Classify(ports []Port) Destinations {
	d := Absent()
	for _, p := range ports {
		if !p.Is(URIInputPort) {
			continue
		}
		if d.Patch == None && p.Is(URIAtomPort) && p.Accepts(URIPatchMsg) {
			d.Patch = p.Index
		}
		if d.MIDI == None && (p.Is(URIAtomPort) || p.Is(URIEventPort)) && p.Accepts(URIMidiEvent) {
			d.MIDI = p.Index
		}
		if d.Patch != None && d.MIDI != None {
			break
		}
	}
	return d
}

// Expand turns a prefixed name such as "atom:AtomPort" into its URI. Other
// strings are returned unchanged.
func Expand(name string) string {
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return name
	}
	if ns, known := prefixes[prefix]; known {
		return ns + local
	}
	return name
}

// Static always yields the same destinations.
type Static Destinations

func (s Static) Destinations(string) (Destinations, error) { return Destinations(s), nil }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
