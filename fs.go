package rofat

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/aligator/rofat/checkpoint"
)

// Fs is a mounted, read-only FAT32 volume.
//
// All reads are positional reads on the underlying io.ReaderAt and the
// geometry never changes after New, so an Fs can be used from several goroutines.
type Fs struct {
	reader   io.ReaderAt
	geometry Geometry
	fat      *fatTable
	options  Options
	log      logrus.FieldLogger

	label        string
	freeClusters uint32
}

// New opens a FAT32 volume from the given reader.
// It fails with ErrInvalidFilesystem if the boot sector does not describe a FAT32 volume.
func New(reader io.ReaderAt, opts ...Option) (*Fs, error) {
	return newFs(reader, false, opts)
}

// NewSkipChecks opens a FAT32 volume just like New but it skips some filesystem
// validations which may allow you to open not perfectly standard volumes.
// Use with caution!
func NewSkipChecks(reader io.ReaderAt, opts ...Option) (*Fs, error) {
	return newFs(reader, true, opts)
}

func newFs(reader io.ReaderAt, skipChecks bool, opts []Option) (*Fs, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	options.skipChecks = skipChecks

	fs := &Fs{
		reader:  reader,
		options: options,
		log:     options.Logger,
	}

	if err := fs.initialize(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *Fs) initialize() error {
	// The boot sector is always in the first 512 bytes, whatever the sector size is.
	sector := make([]byte, 512)
	n, err := fs.reader.ReadAt(sector, 0)
	if n < bootSectorSize {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return checkpoint.Wrap(err, ErrInvalidFilesystem)
	}

	if fs.options.skipChecks {
		fs.geometry, err = LoadGeometrySkipChecks(sector[:n])
	} else {
		fs.geometry, err = LoadGeometry(sector[:n])
	}
	if err != nil {
		return err
	}

	fs.fat, err = newFATTable(fs.reader, fs.geometry, fs.options.FATCacheSize)
	if err != nil {
		return err
	}

	fs.freeClusters = fs.readFreeClusters()
	fs.label = fs.readLabel()

	fs.log.WithFields(logrus.Fields{
		"label":        fs.label,
		"clusters":     fs.geometry.TotalClusters,
		"cluster_size": fs.geometry.ClusterSize,
	}).Debug("opened FAT32 volume")

	return nil
}

// readFreeClusters reads the free cluster hint of the FSInfo sector.
// It returns 0 if the sector is missing or the hint is unknown.
func (fs *Fs) readFreeClusters() uint32 {
	if fs.geometry.FSInfoSector == 0 || fs.geometry.FSInfoSector >= fs.geometry.ReservedSectors {
		return 0
	}

	raw := make([]byte, binary.Size(FSInfo{}))
	if err := readFull(fs.reader, raw, int64(fs.geometry.FSInfoSector)*int64(fs.geometry.BytesPerSector)); err != nil {
		fs.log.WithError(err).Debug("could not read FSInfo sector")
		return 0
	}

	info := FSInfo{}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &info); err != nil {
		return 0
	}

	if info.LeadSignature != fsInfoLeadSignature ||
		info.StructSignature != fsInfoStructSignature ||
		info.TrailSignature != fsInfoTrailSignature ||
		info.FreeCount == fsInfoUnknown ||
		info.FreeCount > fs.geometry.TotalClusters {
		return 0
	}
	return info.FreeCount
}

// readLabel prefers the volume ID entry of the root directory over the boot sector label,
// as only the first one is updated by most systems.
func (fs *Fs) readLabel() string {
	decoder := &dirDecoder{}
	err := fs.walkDir(fs.geometry.RootCluster, decoder, func(dirEntry) bool {
		return decoder.label == ""
	})
	if err != nil {
		fs.log.WithError(err).Warn("could not read the volume label from the root directory")
	}

	if decoder.label != "" {
		return decoder.label
	}
	return fs.geometry.VolumeLabel
}

// Geometry returns the layout of the volume.
func (fs *Fs) Geometry() Geometry {
	return fs.geometry
}

// Label returns the volume label.
func (fs *Fs) Label() string {
	return fs.label
}

// FSType always returns "FAT32" as nothing else can be opened.
func (fs *Fs) FSType() string {
	return "FAT32"
}

// Statfs describes the size of the volume.
type Statfs struct {
	BlockSize   int64
	Blocks      uint64
	FreeBlocks  uint64
	MaxNameLen  uint64
	VolumeID    uint32
	VolumeLabel string
}

func (fs *Fs) Statfs() Statfs {
	return Statfs{
		BlockSize:   fs.geometry.ClusterSize,
		Blocks:      uint64(fs.geometry.TotalClusters),
		FreeBlocks:  uint64(fs.freeClusters),
		MaxNameLen:  255,
		VolumeID:    fs.geometry.VolumeID,
		VolumeLabel: fs.label,
	}
}

// walkDir decodes all clusters of the directory starting at start and calls fn
// for each entry until fn returns false.
// On a corrupt chain the entries read so far have already been passed to fn.
func (fs *Fs) walkDir(start ClusterID, decoder *dirDecoder, fn func(dirEntry) bool) error {
	buffer := make([]byte, fs.geometry.ClusterSize)

	it := fs.Chain(start)
	for it.Next() {
		cluster := it.Cluster()
		if err := readFull(fs.reader, buffer, fs.geometry.ClusterOffset(cluster)); err != nil {
			return err
		}

		entries, diagnostics := decoder.decode(buffer)
		for _, diagnostic := range diagnostics {
			fs.log.WithError(diagnostic).WithField("cluster", cluster).Warn("damaged directory entry")
		}

		for _, entry := range entries {
			if !fn(entry) {
				return nil
			}
		}
	}

	return it.Err()
}

// ReadDir lists the directory at the given path.
// If the directory is cut short by a corrupt chain, the entries found until then are
// returned together with the error.
func (fs *Fs) ReadDir(name string) ([]Entry, error) {
	dir, err := fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, checkpoint.From(ErrNotDirectory)
	}
	return fs.readDir(dir.Cluster)
}

func (fs *Fs) readDir(cluster ClusterID) ([]Entry, error) {
	var entries []Entry
	err := fs.walkDir(cluster, &dirDecoder{}, func(d dirEntry) bool {
		entries = append(entries, fs.newEntry(d))
		return true
	})
	return entries, err
}

// Getattr returns the metadata of the file or directory at path.
func (fs *Fs) Getattr(name string) (Entry, error) {
	return fs.Resolve(name)
}

// Readdir calls emit for each entry of the directory at path together with the
// starting cluster of the entry, until emit returns false.
// A corrupt directory chain is logged and the listing ends with what was read.
func (fs *Fs) Readdir(name string, emit func(name string, entry Entry, cluster ClusterID) bool) error {
	dir, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	if !dir.IsDir() {
		return checkpoint.From(ErrNotDirectory)
	}

	err = fs.walkDir(dir.Cluster, &dirDecoder{}, func(d dirEntry) bool {
		entry := fs.newEntry(d)
		return emit(entry.Name, entry, entry.Cluster)
	})
	if err != nil {
		fs.log.WithError(err).WithField("path", name).Warn("directory listing is incomplete")
	}
	return nil
}

// Read reads up to len(buf) bytes of the file at path, starting at offset.
// It returns the number of bytes read, which is less than len(buf) at the end of
// the file or if the chain of the file ends early.
func (fs *Fs) Read(name string, buf []byte, offset int64) (int, error) {
	entry, err := fs.Resolve(name)
	if err != nil {
		return 0, err
	}
	return fs.ReadEntry(entry, buf, offset)
}

// ReadEntry works like Read for an already resolved entry.
func (fs *Fs) ReadEntry(entry Entry, buf []byte, offset int64) (int, error) {
	if entry.IsDir() {
		return 0, checkpoint.From(ErrIsDirectory)
	}

	data, err := fs.ReadContent(entry.Cluster, entry.Size, offset, int64(len(buf)))
	n := copy(buf, data)
	if err != nil {
		if n == 0 {
			return 0, err
		}
		fs.log.WithError(err).WithField("name", entry.Name).Warn("short read")
	}
	return n, nil
}

// The following methods implement afero.Fs.

// Open opens a file or directory for reading.
func (fs *Fs) Open(name string) (afero.File, error) {
	entry, err := fs.Resolve(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}

	return &File{
		fs:           fs,
		path:         name,
		isDirectory:  entry.IsDir(),
		isReadOnly:   entry.Header.Attribute&AttrReadOnly != 0,
		isHidden:     entry.Header.Attribute&AttrHidden != 0,
		isSystem:     entry.Header.Attribute&AttrSystem != 0,
		firstCluster: entry.Cluster,
		stat:         entry.FileInfo(),
	}, nil
}

// OpenFile only supports opening for reading.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: ErrReadOnly}
	}
	return fs.Open(name)
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	entry, err := fs.Resolve(name)
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return entry.FileInfo(), nil
}

func (fs *Fs) Name() string {
	return "rofat"
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "create", Path: name, Err: ErrReadOnly}
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: name, Err: ErrReadOnly}
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: path, Err: ErrReadOnly}
}

func (fs *Fs) Remove(name string) error {
	return &os.PathError{Op: "remove", Path: name, Err: ErrReadOnly}
}

func (fs *Fs) RemoveAll(path string) error {
	return &os.PathError{Op: "remove", Path: path, Err: ErrReadOnly}
}

func (fs *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrReadOnly}
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: ErrReadOnly}
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return &os.PathError{Op: "chown", Path: name, Err: ErrReadOnly}
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return &os.PathError{Op: "chtimes", Path: name, Err: ErrReadOnly}
}
