package rofat

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFATCacheSize is the number of FAT sectors kept in memory by default.
const DefaultFATCacheSize = 1024

// Options of a mounted volume. Use the With... functions to change them.
type Options struct {
	// UID and GID own every file. They default to the user running the process.
	UID, GID uint32

	// Logger receives the diagnostics about recovered corruptions.
	Logger logrus.FieldLogger

	// FATCacheSize is the number of cached FAT sectors. 0 disables the cache.
	FATCacheSize int

	// Location the on-disk timestamps are interpreted in. FAT stores local time without a zone.
	Location *time.Location

	// MountTime is used as timestamps of the root directory.
	MountTime time.Time

	skipChecks bool
}

type Option func(o *Options)

func defaultOptions() Options {
	return Options{
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
		Logger:       logrus.StandardLogger(),
		FATCacheSize: DefaultFATCacheSize,
		Location:     time.UTC,
		MountTime:    time.Now(),
	}
}

// WithOwner sets the owner reported for all files.
func WithOwner(uid, gid uint32) Option {
	return func(o *Options) {
		o.UID = uid
		o.GID = gid
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func WithFATCacheSize(sectors int) Option {
	return func(o *Options) {
		o.FATCacheSize = sectors
	}
}

func WithLocation(loc *time.Location) Option {
	return func(o *Options) {
		if loc != nil {
			o.Location = loc
		}
	}
}

func WithMountTime(t time.Time) Option {
	return func(o *Options) {
		o.MountTime = t
	}
}
