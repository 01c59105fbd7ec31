package rofat

import (
	"os"
	"path"
	"time"
)

// Permissions of all entries. The write bit is removed for read-only entries.
const (
	permDefault  os.FileMode = 0o755
	permReadOnly os.FileMode = 0o555
)

// Entry is a resolved file or directory with the metadata synthesized from its directory entry.
type Entry struct {
	Name    string
	Header  EntryHeader
	Cluster ClusterID

	// Size is always 0 for directories as FAT32 does not record it.
	Size  int64
	Mode  os.FileMode
	UID   uint32
	GID   uint32
	Nlink uint32

	ModTime    time.Time
	AccessTime time.Time
	CreateTime time.Time
}

func (e Entry) IsDir() bool {
	return e.Mode.IsDir()
}

// FileInfo returns the entry as os.FileInfo. Sys returns the Entry.
func (e Entry) FileInfo() os.FileInfo {
	return entryFileInfo{e}
}

// newEntry translates a decoded directory entry into an Entry.
func (fs *Fs) newEntry(d dirEntry) Entry {
	h := d.header

	mode := permDefault
	if h.Attribute&AttrReadOnly != 0 {
		mode = permReadOnly
	}

	size := int64(h.FileSize)
	if h.IsDir() {
		mode |= os.ModeDir
		size = 0
	}

	loc := fs.options.Location
	return Entry{
		Name:       d.name,
		Header:     h,
		Cluster:    h.FirstCluster(),
		Size:       size,
		Mode:       mode,
		UID:        fs.options.UID,
		GID:        fs.options.GID,
		Nlink:      1,
		ModTime:    ParseDateTime(h.WriteDate, h.WriteTime, 0, loc),
		AccessTime: ParseDateTime(h.LastAccessDate, 0, 0, loc),
		CreateTime: ParseDateTime(h.CreateDate, h.CreateTime, h.CreateTimeTenth, loc),
	}
}

// rootEntry synthesizes the entry of the root directory which has no directory entry on disk.
func (fs *Fs) rootEntry() Entry {
	return Entry{
		Name:       "/",
		Header:     EntryHeader{Attribute: AttrDirectory},
		Cluster:    fs.geometry.RootCluster,
		Mode:       os.ModeDir | permReadOnly,
		UID:        fs.options.UID,
		GID:        fs.options.GID,
		Nlink:      1,
		ModTime:    fs.options.MountTime,
		AccessTime: fs.options.MountTime,
		CreateTime: fs.options.MountTime,
	}
}

type entryFileInfo struct {
	entry Entry
}

func (e entryFileInfo) Name() string {
	return path.Base(e.entry.Name)
}

func (e entryFileInfo) Size() int64 {
	return e.entry.Size
}

func (e entryFileInfo) Mode() os.FileMode {
	return e.entry.Mode
}

func (e entryFileInfo) ModTime() time.Time {
	return e.entry.ModTime
}

func (e entryFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e entryFileInfo) Sys() interface{} {
	return e.entry
}
