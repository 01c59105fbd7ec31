package rofat

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"

	"github.com/aligator/rofat/checkpoint"
)

// fatFileFs provides all methods needed from a fat filesystem for File.
// It mainly exists to be able to mock the Fs in tests.
// Generated mock using mockgen:
//  mockgen -source=file.go -destination=file_mock.go -package rofat
type fatFileFs interface {
	readFileAt(cluster ClusterID, fileSize int64, offset int64, readSize int64) ([]byte, error)
	readDir(cluster ClusterID) ([]Entry, error)
}

// File is an open file or directory of the volume. It implements afero.File.
type File struct {
	fs   fatFileFs
	path string

	isDirectory bool
	isReadOnly  bool
	isHidden    bool
	isSystem    bool

	firstCluster ClusterID
	stat         os.FileInfo

	// offset is a byte offset for files and an entry index for directories.
	offset int64
}

var _ afero.File = (*File)(nil)

func (f *File) Close() error {
	*f = File{}
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.isDirectory {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.stat.Size() <= f.offset {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.firstCluster, f.stat.Size(), f.offset, int64(len(p)))
	n = copy(p, data)

	// Seek even if an error occurred, errors from reading are used even if seek also errors.
	_, seekErr := f.Seek(int64(n), io.SeekCurrent)

	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}

	if seekErr != nil {
		return n, checkpoint.Wrap(seekErr, ErrReadFile)
	}

	return n, nil
}

// ReadAt reads len(p) bytes at off without changing the offset used by Read.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.isDirectory {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}

	// Reading over the end makes no sense.
	if f.stat.Size() <= off {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.firstCluster, f.stat.Size(), off, int64(len(p)))
	n = copy(p, data)

	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}

	// io.ReaderAt requires an error for short reads.
	if n < len(p) {
		return n, checkpoint.Wrap(io.ErrUnexpectedEOF, ErrReadFile)
	}
	return n, nil
}

// Seek jumps to a specific offset in the file. This affects all Read operation except ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.stat.Size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.stat.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	return 0, checkpoint.From(ErrReadOnly)
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, checkpoint.From(ErrReadOnly)
}

func (f *File) Name() string {
	return f.stat.Name()
}

// Readdir reads the contents of a directory.
// With count > 0 at most count entries are returned and io.EOF once all are read.
// With count <= 0 all remaining entries are returned.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	// TODO: Support the count param directly in readDir to avoid decoding the whole directory on every call.
	content, err := f.fs.readDir(f.firstCluster)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	start := int(f.offset)
	if start > len(content) {
		start = len(content)
	}
	end := len(content)

	if count > 0 {
		if start == end {
			return nil, io.EOF
		}
		if start+count < end {
			end = start + count
		}
	}

	f.offset = int64(end)

	result := make([]os.FileInfo, 0, end-start)
	for _, entry := range content[start:end] {
		result = append(result, entry.FileInfo())
	}

	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.stat, nil
}

func (f *File) Sync() error {
	return nil
}

func (f *File) Truncate(size int64) error {
	return checkpoint.From(ErrReadOnly)
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}
