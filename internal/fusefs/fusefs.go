// Package fusefs serves a FAT32 volume through FUSE.
//
// Building it needs cgo and the FUSE headers (libfuse on Linux, macFUSE or
// FUSE-T on macOS, WinFsp on Windows).
package fusefs

import (
	"fmt"
	"path"
	"strings"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/aligator/rofat"
)

type Options struct {
	// PathCacheSize is the number of resolved paths kept in memory. 0 disables the cache.
	PathCacheSize int
	Logger        logrus.FieldLogger
}

// FS implements fuse.FileSystemInterface on top of a volume.
// All methods which would change the volume fail with EROFS.
type FS struct {
	fuse.FileSystemBase

	volume *rofat.Fs
	cache  *lru.Cache[string, rofat.Entry]
	log    logrus.FieldLogger
}

var _ fuse.FileSystemInterface = (*FS)(nil)

func New(volume *rofat.Fs, opts Options) (*FS, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	fs := &FS{
		volume: volume,
		log:    opts.Logger,
	}

	if opts.PathCacheSize > 0 {
		cache, err := lru.New[string, rofat.Entry](opts.PathCacheSize)
		if err != nil {
			return nil, err
		}
		fs.cache = cache
	}

	return fs, nil
}

// errc converts an error into the negative errno expected by FUSE.
func errc(err error) int {
	switch rofat.Errno(err) {
	case 0:
		return 0
	case syscall.ENOENT:
		return -fuse.ENOENT
	case syscall.ENOTDIR:
		return -fuse.ENOTDIR
	case syscall.EISDIR:
		return -fuse.EISDIR
	case syscall.EROFS:
		return -fuse.EROFS
	default:
		return -fuse.EIO
	}
}

// resolve returns the entry at p, from the cache if possible.
// The volume never changes, so cached entries stay valid.
func (fs *FS) resolve(p string) (rofat.Entry, error) {
	p = path.Clean("/" + p)

	if fs.cache != nil {
		if entry, ok := fs.cache.Get(p); ok {
			return entry, nil
		}
	}

	entry, err := fs.volume.Resolve(p)
	if err != nil {
		return rofat.Entry{}, err
	}

	if fs.cache != nil {
		fs.cache.Add(p, entry)
	}
	return entry, nil
}

func fillStat(stat *fuse.Stat_t, entry rofat.Entry, blockSize int64) {
	*stat = fuse.Stat_t{}

	stat.Mode = uint32(entry.Mode.Perm())
	if entry.IsDir() {
		stat.Mode |= fuse.S_IFDIR
	} else {
		stat.Mode |= fuse.S_IFREG
	}

	stat.Nlink = entry.Nlink
	stat.Uid = entry.UID
	stat.Gid = entry.GID
	stat.Size = entry.Size
	stat.Blksize = blockSize
	stat.Blocks = (entry.Size + 511) / 512
	stat.Mtim = fuse.NewTimespec(entry.ModTime)
	stat.Ctim = fuse.NewTimespec(entry.ModTime)
	stat.Atim = fuse.NewTimespec(entry.AccessTime)
	stat.Birthtim = fuse.NewTimespec(entry.CreateTime)
}

func (fs *FS) Getattr(p string, stat *fuse.Stat_t, fh uint64) int {
	entry, err := fs.resolve(p)
	if err != nil {
		return fs.fail("getattr", p, err)
	}

	fillStat(stat, entry, fs.volume.Geometry().ClusterSize)
	return 0
}

func (fs *FS) Opendir(p string) (int, uint64) {
	entry, err := fs.resolve(p)
	if err != nil {
		return fs.fail("opendir", p, err), ^uint64(0)
	}
	if !entry.IsDir() {
		return -fuse.ENOTDIR, ^uint64(0)
	}
	return 0, 0
}

func (fs *FS) Readdir(p string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	dir, err := fs.resolve(p)
	if err != nil {
		return fs.fail("readdir", p, err)
	}

	dirStat := &fuse.Stat_t{}
	fillStat(dirStat, dir, fs.volume.Geometry().ClusterSize)
	if !fill(".", dirStat, 0) || !fill("..", nil, 0) {
		return 0
	}

	blockSize := fs.volume.Geometry().ClusterSize
	base := path.Clean("/" + p)
	err = fs.volume.Readdir(base, func(name string, entry rofat.Entry, cluster rofat.ClusterID) bool {
		// The first entry of a name wins, just like in a lookup.
		if fs.cache != nil {
			fs.cache.ContainsOrAdd(path.Join(base, name), entry)
		}

		stat := &fuse.Stat_t{}
		fillStat(stat, entry, blockSize)
		return fill(name, stat, 0)
	})
	if err != nil {
		return fs.fail("readdir", p, err)
	}
	return 0
}

func (fs *FS) Open(p string, flags int) (int, uint64) {
	if flags&fuse.O_ACCMODE != fuse.O_RDONLY || flags&(fuse.O_CREAT|fuse.O_TRUNC|fuse.O_APPEND) != 0 {
		return -fuse.EROFS, ^uint64(0)
	}

	entry, err := fs.resolve(p)
	if err != nil {
		return fs.fail("open", p, err), ^uint64(0)
	}
	if entry.IsDir() {
		return -fuse.EISDIR, ^uint64(0)
	}
	return 0, 0
}

func (fs *FS) Read(p string, buff []byte, ofst int64, fh uint64) int {
	entry, err := fs.resolve(p)
	if err != nil {
		return fs.fail("read", p, err)
	}

	n, err := fs.volume.ReadEntry(entry, buff, ofst)
	if err != nil {
		return fs.fail("read", p, err)
	}
	return n
}

func (fs *FS) Statfs(p string, stat *fuse.Statfs_t) int {
	s := fs.volume.Statfs()

	*stat = fuse.Statfs_t{
		Bsize:   uint64(s.BlockSize),
		Frsize:  uint64(s.BlockSize),
		Blocks:  s.Blocks,
		Bfree:   s.FreeBlocks,
		Bavail:  s.FreeBlocks,
		Fsid:    uint64(s.VolumeID),
		Flag:    1, // ST_RDONLY
		Namemax: s.MaxNameLen,
	}
	return 0
}

// fail logs err unless it is an expected answer like ENOENT and returns the errno for FUSE.
func (fs *FS) fail(op, p string, err error) int {
	code := errc(err)
	if code == -fuse.EIO {
		fs.log.WithError(err).WithFields(logrus.Fields{
			"op":   op,
			"path": p,
		}).Error("request failed")
	}
	return code
}

// The volume is read-only.

func (fs *FS) Mknod(p string, mode uint32, dev uint64) int { return -fuse.EROFS }
func (fs *FS) Mkdir(p string, mode uint32) int             { return -fuse.EROFS }
func (fs *FS) Unlink(p string) int                         { return -fuse.EROFS }
func (fs *FS) Rmdir(p string) int                          { return -fuse.EROFS }
func (fs *FS) Link(oldpath, newpath string) int            { return -fuse.EROFS }
func (fs *FS) Symlink(target, newpath string) int          { return -fuse.EROFS }
func (fs *FS) Rename(oldpath, newpath string) int          { return -fuse.EROFS }
func (fs *FS) Chmod(p string, mode uint32) int             { return -fuse.EROFS }
func (fs *FS) Chown(p string, uid, gid uint32) int         { return -fuse.EROFS }
func (fs *FS) Truncate(p string, size int64, fh uint64) int {
	return -fuse.EROFS
}
func (fs *FS) Utimens(p string, tmsp []fuse.Timespec) int {
	return -fuse.EROFS
}
func (fs *FS) Create(p string, flags int, mode uint32) (int, uint64) {
	return -fuse.EROFS, ^uint64(0)
}
func (fs *FS) Write(p string, buff []byte, ofst int64, fh uint64) int {
	return -fuse.EROFS
}
func (fs *FS) Setxattr(p string, name string, value []byte, flags int) int {
	return -fuse.EROFS
}
func (fs *FS) Removexattr(p string, name string) int {
	return -fuse.EROFS
}

// Mount serves fs at mountpoint until it is unmounted, for example by SIGINT.
func Mount(fs *FS, mountpoint string, options []string) error {
	opts := []string{"-o", strings.Join(append([]string{"ro", "fsname=rofat", "subtype=" + strings.ToLower(fs.volume.FSType())}, options...), ",")}

	host := fuse.NewFileSystemHost(fs)
	host.SetCapReaddirPlus(true)

	fs.log.WithFields(logrus.Fields{
		"mountpoint": mountpoint,
		"label":      fs.volume.Label(),
	}).Info("mounting")

	if !host.Mount(mountpoint, opts) {
		return fmt.Errorf("failed to mount at %s", mountpoint)
	}
	return nil
}
