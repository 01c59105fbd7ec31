package nfsserve

import (
	"hash/fnv"
	"io"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	nfsfile "github.com/willscott/go-nfs/file"

	"github.com/aligator/rofat"
)

// Filesystem adapts a volume to billy.Filesystem as needed by go-nfs.
// Every modifying method fails with billy.ErrReadOnly.
type Filesystem struct {
	volume *rofat.Fs
}

var (
	_ billy.Filesystem = (*Filesystem)(nil)
	_ billy.Capable    = (*Filesystem)(nil)
	_ billy.File       = (*File)(nil)
)

func NewFilesystem(volume *rofat.Fs) *Filesystem {
	return &Filesystem{volume: volume}
}

// pathError converts errors of the volume into errors os.IsNotExist and friends understand,
// as go-nfs uses them to pick the NFS status.
func pathError(op, name string, err error) error {
	return &os.PathError{Op: op, Path: name, Err: rofat.Errno(err)}
}

func clean(name string) string {
	return path.Clean("/" + name)
}

func (b *Filesystem) Create(filename string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

func (b *Filesystem) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *Filesystem) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, billy.ErrReadOnly
	}

	entry, err := b.volume.Resolve(filename)
	if err != nil {
		return nil, pathError("open", filename, err)
	}

	return &File{
		volume: b.volume,
		entry:  entry,
		name:   filename,
	}, nil
}

func (b *Filesystem) Stat(filename string) (os.FileInfo, error) {
	entry, err := b.volume.Resolve(filename)
	if err != nil {
		return nil, pathError("stat", filename, err)
	}
	return newFileInfo(clean(filename), entry), nil
}

// Lstat is the same as Stat as FAT has no symlinks.
func (b *Filesystem) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

func (b *Filesystem) ReadDir(dirname string) ([]os.FileInfo, error) {
	dir := clean(dirname)

	var result []os.FileInfo
	err := b.volume.Readdir(dir, func(name string, entry rofat.Entry, _ rofat.ClusterID) bool {
		result = append(result, newFileInfo(path.Join(dir, name), entry))
		return true
	})
	if err != nil {
		return nil, pathError("readdir", dirname, err)
	}
	return result, nil
}

func (b *Filesystem) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *Filesystem) Rename(oldpath, newpath string) error             { return billy.ErrReadOnly }
func (b *Filesystem) Remove(filename string) error                     { return billy.ErrReadOnly }
func (b *Filesystem) MkdirAll(filename string, perm os.FileMode) error { return billy.ErrReadOnly }
func (b *Filesystem) Symlink(target, link string) error                { return billy.ErrReadOnly }

func (b *Filesystem) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrReadOnly
}

func (b *Filesystem) Readlink(link string) (string, error) {
	return "", &os.PathError{Op: "readlink", Path: link, Err: os.ErrInvalid}
}

func (b *Filesystem) Chroot(path string) (billy.Filesystem, error) {
	return nil, billy.ErrNotSupported
}

func (b *Filesystem) Root() string {
	return "/"
}

// Capabilities lacks billy.WriteCapability, so go-nfs answers writes with NFS3ERR_ROFS.
func (b *Filesystem) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// File is an open file of the volume.
type File struct {
	volume *rofat.Fs
	entry  rofat.Entry
	name   string
	offset int64
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// ReadAt returns io.EOF together with the last bytes of the file.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.entry.Size && !f.entry.IsDir() {
		return 0, io.EOF
	}

	n, err := f.volume.ReadEntry(f.entry, p, off)
	if err != nil {
		return n, pathError("read", f.name, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.offset
	case io.SeekEnd:
		offset += f.entry.Size
	default:
		return f.offset, os.ErrInvalid
	}

	if offset < 0 {
		return f.offset, os.ErrInvalid
	}
	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (int, error) { return 0, billy.ErrReadOnly }
func (f *File) Truncate(size int64) error   { return billy.ErrReadOnly }
func (f *File) Close() error                { return nil }
func (f *File) Lock() error                 { return nil }
func (f *File) Unlock() error               { return nil }

// fileInfo reports the metadata of an entry in the form go-nfs expects from Sys.
type fileInfo struct {
	os.FileInfo
	name   string
	entry  rofat.Entry
	fileID uint64
}

func newFileInfo(fullPath string, entry rofat.Entry) *fileInfo {
	return &fileInfo{
		FileInfo: entry.FileInfo(),
		name:     path.Base(fullPath),
		entry:    entry,
		fileID:   fileID(fullPath),
	}
}

func (fi *fileInfo) Name() string {
	return fi.name
}

func (fi *fileInfo) ModTime() time.Time {
	return fi.entry.ModTime
}

// Sys must return a go-nfs file.FileInfo, otherwise owner and link count are lost.
func (fi *fileInfo) Sys() interface{} {
	return &nfsfile.FileInfo{
		Nlink:  fi.entry.Nlink,
		UID:    fi.entry.UID,
		GID:    fi.entry.GID,
		Fileid: fi.fileID,
	}
}

// fileID derives a stable inode number from the path, as FAT has no inodes
// and empty files share the first cluster 0. The root always gets 1.
func fileID(fullPath string) uint64 {
	if fullPath == "/" {
		return 1
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(fullPath))
	id := h.Sum64()
	if id <= 1 {
		id += 2
	}
	return id
}
