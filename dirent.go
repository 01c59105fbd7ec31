package rofat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/aligator/rofat/checkpoint"
)

// rawEntry is one decoded 32 byte directory record.
// It is either a shortEntry or a longNameFragment.
type rawEntry interface {
	isRawEntry()
}

type shortEntry struct {
	EntryHeader
}

type longNameFragment struct {
	LongFilenameEntry
}

func (shortEntry) isRawEntry()       {}
func (longNameFragment) isRawEntry() {}

// parseRawEntry looks at the attribute byte first and decodes the record accordingly.
func parseRawEntry(record []byte) (rawEntry, error) {
	if len(record) < dirEntrySize {
		return nil, fmt.Errorf("directory record has only %d bytes", len(record))
	}

	if record[11]&AttrLongNameMask == AttrLongName {
		fragment := longNameFragment{}
		err := binary.Read(bytes.NewReader(record[:dirEntrySize]), binary.LittleEndian, &fragment.LongFilenameEntry)
		return fragment, checkpoint.From(err)
	}

	entry := shortEntry{}
	err := binary.Read(bytes.NewReader(record[:dirEntrySize]), binary.LittleEndian, &entry.EntryHeader)
	return entry, checkpoint.From(err)
}

// dirEntry is a terminal directory entry together with its reconstructed name.
type dirEntry struct {
	name   string
	header EntryHeader
}

// dirDecoder turns directory clusters into named entries.
// Long name fragments may span two clusters of the same directory, so one
// decoder is used for all clusters of a directory, in chain order.
type dirDecoder struct {
	fragments []LongFilenameEntry

	// label is the volume label if the directory contained a volume ID entry.
	label string
}

func (d *dirDecoder) reset() {
	d.fragments = d.fragments[:0]
}

// decode scans all records of a cluster. It returns the terminal entries in
// on-disk order and the recovered problems, which are never fatal.
// A free record ends the scan of this cluster, not the directory.
func (d *dirDecoder) decode(cluster []byte) ([]dirEntry, []error) {
	var (
		entries     []dirEntry
		diagnostics []error
	)

	for offset := 0; offset+dirEntrySize <= len(cluster); offset += dirEntrySize {
		record := cluster[offset : offset+dirEntrySize]

		switch record[0] {
		case entryFree:
			d.reset()
			return entries, diagnostics
		case entryDeleted:
			d.reset()
			continue
		}

		raw, err := parseRawEntry(record)
		if err != nil {
			d.reset()
			diagnostics = append(diagnostics, err)
			continue
		}

		switch e := raw.(type) {
		case longNameFragment:
			d.addFragment(e.LongFilenameEntry)

		case shortEntry:
			if !d.visible(e.EntryHeader) {
				d.reset()
				continue
			}

			name, err := d.name(e.EntryHeader)
			if err != nil {
				diagnostics = append(diagnostics, err)
			}
			d.reset()

			if !validName(name) {
				diagnostics = append(diagnostics, checkpoint.Wrap(fmt.Errorf("short name %q", name), ErrInvalidName))
				continue
			}

			entries = append(entries, dirEntry{
				name:   name,
				header: e.EntryHeader,
			})
		}
	}

	return entries, diagnostics
}

// visible filters the entries which are not files or directories.
// Hidden and system entries are listed like any other.
func (d *dirDecoder) visible(h EntryHeader) bool {
	switch {
	case h.Name[0] == entryDot:
		return false
	case h.Attribute&attrUnused != 0:
		return false
	case h.Attribute&AttrVolumeID != 0:
		if d.label == "" {
			d.label = strings.TrimRight(decodeOEM(h.Name[:]), " ")
		}
		return false
	}
	return true
}

// addFragment collects a long name fragment. The fragment flagged as last
// starts a new name, so orphaned fragments of a previous name are dropped.
func (d *dirDecoder) addFragment(fragment LongFilenameEntry) {
	if fragment.Sequence&lfnLast != 0 {
		d.reset()
	}
	d.fragments = append(d.fragments, fragment)
}

// name returns the long name collected for h if its checksum matches,
// the short name otherwise.
func (d *dirDecoder) name(h EntryHeader) (string, error) {
	if len(d.fragments) == 0 {
		return shortName(h), nil
	}

	sum := Checksum(h.Name)
	for _, fragment := range d.fragments {
		if fragment.Checksum != sum {
			short := shortName(h)
			return short, checkpoint.Wrap(
				fmt.Errorf("entry %q: fragment %d has checksum %#02x, want %#02x", short, fragment.Order(), fragment.Checksum, sum),
				ErrChecksumMismatch,
			)
		}
	}

	// Fragments are stored highest order first.
	ordered := make([]LongFilenameEntry, len(d.fragments))
	copy(ordered, d.fragments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order() < ordered[j].Order()
	})

	var units []uint16
	for _, fragment := range ordered {
		units = append(units, fragment.units()...)
	}

	long, err := decodeUTF16(units)
	if err != nil {
		return shortName(h), checkpoint.From(err)
	}
	if !validName(long) {
		short := shortName(h)
		return short, checkpoint.Wrap(fmt.Errorf("entry %q: long name %q", short, long), ErrInvalidName)
	}
	return long, nil
}

// validName reports whether name can be used as a path component.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\x00")
}

// DirectoryEntry is a visible entry of a directory with its reconstructed name.
type DirectoryEntry struct {
	Name   string
	Header EntryHeader
}

// DecodeDirectory decodes the clusters of one directory, given in chain order.
// Deleted entries, "." and "..", volume labels and entries with reserved
// attribute bits are skipped. The returned errors are recovered problems like
// ErrChecksumMismatch, the affected entries are still returned with their short name.
func DecodeDirectory(clusters ...[]byte) ([]DirectoryEntry, []error) {
	var (
		decoder     dirDecoder
		result      []DirectoryEntry
		diagnostics []error
	)

	for _, cluster := range clusters {
		entries, errs := decoder.decode(cluster)
		diagnostics = append(diagnostics, errs...)
		for _, e := range entries {
			result = append(result, DirectoryEntry{Name: e.name, Header: e.header})
		}
	}
	return result, diagnostics
}
