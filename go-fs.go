package rofat

import (
	"errors"
	"io"
	"io/fs"
)

type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

type GoFile struct {
	*File
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.File.Stat()
}

func (g GoFile) Read(bytes []byte) (int, error) {
	return g.File.Read(bytes)
}

func (g GoFile) Close() error {
	return g.File.Close()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs wraps the afero FAT32 implementation to be compatible with fs.FS.
type GoFs struct {
	*Fs
}

var _ fs.FS = GoFs{}

// NewGoFS opens a FAT32 volume from the given reader as fs.FS compatible filesystem.
func NewGoFS(reader io.ReaderAt, opts ...Option) (*GoFs, error) {
	fat, err := New(reader, opts...)
	if err != nil {
		return nil, err
	}

	return &GoFs{fat}, nil
}

// NewGoFSSkipChecks opens a FAT32 volume just like NewGoFS but it skips some filesystem
// validations which may allow you to open not perfectly standard volumes.
// Use with caution!
func NewGoFSSkipChecks(reader io.ReaderAt, opts ...Option) (*GoFs, error) {
	fat, err := NewSkipChecks(reader, opts...)
	if err != nil {
		return nil, err
	}

	return &GoFs{fat}, nil
}

// Open follows the fs.FS naming rules: names are unrooted and "." is the root.
func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	file, err := g.Fs.Open(name)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}

	if name == "." {
		f.stat = rootInfo{f.stat}
	}

	return GoFile{f}, nil
}

// ReadDir implements fs.ReadDirFS.
func (g GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errors.New("not implemented")}
	}
	return dir.ReadDir(-1)
}

// rootInfo names the root "." as required by fs.FS.
type rootInfo struct {
	fs.FileInfo
}

func (r rootInfo) Name() string {
	return "."
}
