// Package dat persists the rumor state to a single file, the node's
// canonical cold-start state. The layout is a fixed header of section
// lengths followed by one section per rumor kind, each a sequence of
// length-framed wire envelopes. All integers are little-endian u64.
package dat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/fleetops/butterfly/pkg/rumor"
)

// HeaderVersion identifies the current file layout. Version 1 files
// predate the departure section and cannot be read.
const HeaderVersion uint64 = 2

// Section order within the file.
var sections = []string{
	"membership",
	"service",
	"service-config",
	"service-file",
	"election",
	"election-update",
	"departure",
}

// IncompatibleDatFileError is fatal at startup: the snapshot was written
// by an unsupported layout version.
type IncompatibleDatFileError struct {
	Version uint64
}

func (e *IncompatibleDatFileError) Error() string {
	return fmt.Sprintf("unsupported dat file version: %d", e.Version)
}

// CorruptDatFileError is fatal at startup: a section's claimed length
// exceeds the bytes actually present.
type CorruptDatFileError struct {
	Section string
}

func (e *CorruptDatFileError) Error() string {
	return fmt.Sprintf("dat file truncated in section: %s", e.Section)
}

// Contents holds the decoded rumors of a dat file, one slice per
// section.
type Contents struct {
	Memberships     []*rumor.Membership
	Services        []*rumor.Service
	ServiceConfigs  []*rumor.ServiceConfig
	ServiceFiles    []*rumor.ServiceFile
	Elections       []*rumor.Election
	ElectionUpdates []*rumor.ElectionUpdate
	Departures      []*rumor.Departure
}

// RestoreInto atomically replaces st's stores with the file contents.
func (c *Contents) RestoreInto(st *rumor.State) {
	st.Memberships.Restore(c.Memberships)
	st.Services.Restore(c.Services)
	st.ServiceConfigs.Restore(c.ServiceConfigs)
	st.ServiceFiles.Restore(c.ServiceFiles)
	st.Elections.Restore(c.Elections)
	st.ElectionUpdates.Restore(c.ElectionUpdates)
	st.Departures.Restore(c.Departures)
}

// MergeInto offers every rumor to st through the normal merge path. Used
// for anti-entropy, where remote state must not clobber newer local
// rumors.
func (c *Contents) MergeInto(st *rumor.State) {
	for _, m := range c.Memberships {
		st.InsertMembership(m)
	}
	for _, d := range c.Departures {
		st.InsertDeparture(d)
	}
	for _, s := range c.Services {
		st.Services.Insert(s)
	}
	for _, sc := range c.ServiceConfigs {
		st.ServiceConfigs.Insert(sc)
	}
	for _, sf := range c.ServiceFiles {
		st.ServiceFiles.Insert(sf)
	}
	for _, e := range c.Elections {
		st.Elections.Insert(e)
	}
	for _, e := range c.ElectionUpdates {
		st.ElectionUpdates.Insert(e)
	}
}

// Marshal serializes the full state. Each store is walked in sorted key
// order, so two states holding the same rumors produce identical bytes.
func Marshal(st *rumor.State) ([]byte, error) {
	framed := make([][]byte, 0, len(sections))
	for _, encode := range []func() ([][]byte, error){
		st.Memberships.EncodeAll,
		st.Services.EncodeAll,
		st.ServiceConfigs.EncodeAll,
		st.ServiceFiles.EncodeAll,
		st.Elections.EncodeAll,
		st.ElectionUpdates.EncodeAll,
		st.Departures.EncodeAll,
	} {
		rumors, err := encode()
		if err != nil {
			return nil, err
		}
		framed = append(framed, frameSection(rumors))
	}

	var buf bytes.Buffer
	writeU64(&buf, HeaderVersion)
	for _, section := range framed {
		writeU64(&buf, uint64(len(section)))
	}
	for _, section := range framed {
		buf.Write(section)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses dat-file bytes, validating the header version and
// every section's framing.
func Unmarshal(data []byte) (*Contents, error) {
	r := bytes.NewReader(data)
	version, err := readU64(r)
	if err != nil {
		return nil, errors.WithStack(&CorruptDatFileError{Section: "header"})
	}
	if version != HeaderVersion {
		return nil, errors.WithStack(&IncompatibleDatFileError{Version: version})
	}
	lengths := make([]uint64, len(sections))
	for i := range lengths {
		n, err := readU64(r)
		if err != nil {
			return nil, errors.WithStack(&CorruptDatFileError{Section: "header"})
		}
		lengths[i] = n
	}

	c := &Contents{}
	for i, name := range sections {
		section := make([]byte, lengths[i])
		if _, err := io.ReadFull(r, section); err != nil {
			return nil, errors.WithStack(&CorruptDatFileError{Section: name})
		}
		envelopes, err := deframeSection(name, section)
		if err != nil {
			return nil, err
		}
		for _, data := range envelopes {
			env, err := rumor.DecodeEnvelope(data)
			if err != nil {
				return nil, errors.Wrapf(err, "cannot decode rumor in section: %s", name)
			}
			switch env.Type {
			case rumor.KindMember:
				c.Memberships = append(c.Memberships, env.Membership)
			case rumor.KindService:
				c.Services = append(c.Services, env.Service)
			case rumor.KindServiceConfig:
				c.ServiceConfigs = append(c.ServiceConfigs, env.ServiceConfig)
			case rumor.KindServiceFile:
				c.ServiceFiles = append(c.ServiceFiles, env.ServiceFile)
			case rumor.KindElection:
				c.Elections = append(c.Elections, env.Election)
			case rumor.KindElectionUpdate:
				c.ElectionUpdates = append(c.ElectionUpdates, env.ElectionUpdate)
			case rumor.KindDeparture:
				c.Departures = append(c.Departures, env.Departure)
			}
		}
	}
	return c, nil
}

func frameSection(rumors [][]byte) []byte {
	var buf bytes.Buffer
	for _, data := range rumors {
		writeU64(&buf, uint64(len(data)))
		buf.Write(data)
	}
	return buf.Bytes()
}

func deframeSection(name string, section []byte) ([][]byte, error) {
	var out [][]byte
	r := bytes.NewReader(section)
	for r.Len() > 0 {
		n, err := readU64(r)
		if err != nil {
			return nil, errors.WithStack(&CorruptDatFileError{Section: name})
		}
		if n > uint64(r.Len()) {
			return nil, errors.WithStack(&CorruptDatFileError{Section: name})
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, errors.WithStack(&CorruptDatFileError{Section: name})
		}
		out = append(out, frame)
	}
	return out, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
