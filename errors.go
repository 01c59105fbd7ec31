package rofat

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// These errors describe what can be wrong with a volume.
var (
	// ErrInvalidFilesystem is returned by New if the boot sector does not describe a FAT32 volume.
	ErrInvalidFilesystem = errors.New("invalid FAT32 filesystem")

	// ErrCorruptChain is returned if a cluster chain loops or links to a cluster outside the volume.
	ErrCorruptChain = errors.New("corrupt cluster chain")

	// ErrChecksumMismatch is reported when long name fragments do not belong to their short entry.
	// The short name is used instead, so it never fails a request.
	ErrChecksumMismatch = errors.New("long file name checksum mismatch")

	// ErrInvalidName is reported for names which cannot be a path component, like ".." or "a/b".
	// A long name falls back to the short name, an entry without a usable name is skipped.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNotFound matches os.ErrNotExist.
	ErrNotFound = fmt.Errorf("no such file or directory: %w", os.ErrNotExist)
)

// These errors may occur while processing a file.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

var (
	// ErrReadOnly is returned by every operation which would modify the volume.
	ErrReadOnly = syscall.EROFS

	ErrNotDirectory = syscall.ENOTDIR
	ErrIsDirectory  = syscall.EISDIR
)

// Errno maps an error of this package to the errno a filesystem host should report.
// A nil error maps to 0.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	switch {
	case err == nil:
		return 0
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.As(err, &errno):
		return errno
	default:
		return syscall.EIO
	}
}
