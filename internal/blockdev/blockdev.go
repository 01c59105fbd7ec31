// Package blockdev opens disk images and block devices for reading.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrLocked is returned if another process holds an exclusive lock on the image,
// usually because it is writing to it.
var ErrLocked = errors.New("image is locked by another process")

type Options struct {
	// Lock takes a shared lock on the image while it is open.
	// It only has an effect for images on the OS filesystem.
	Lock bool

	// RetryAttempts is the number of tries for a read interrupted by EINTR or EAGAIN.
	RetryAttempts uint
	RetryDelay    time.Duration

	Logger logrus.FieldLogger
}

func (o Options) retryOptions() []retry.Option {
	attempts := o.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	return []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(o.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	}
}

// Device is an opened image. It implements io.ReaderAt and can be used
// concurrently as long as the underlying file supports concurrent ReadAt.
type Device struct {
	path   string
	reader io.ReaderAt
	closer io.Closer
	lock   *flock.Flock
	size   int64

	retry []retry.Option
	log   logrus.FieldLogger
}

// Open opens the image at path on fs.
func Open(fs afero.Fs, path string, opts Options) (*Device, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	var lock *flock.Flock
	if _, isOS := fs.(*afero.OsFs); isOS && opts.Lock {
		lock = flock.New(path, flock.SetFlag(os.O_RDONLY))
		locked, err := lock.TryRLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if !locked {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
	}

	file, err := fs.Open(path)
	if err != nil {
		unlock(lock)
		return nil, err
	}

	size, err := imageSize(file)
	if err != nil {
		file.Close()
		unlock(lock)
		return nil, fmt.Errorf("failed to get the size of %s: %w", path, err)
	}

	d := newDevice(file, size, opts)
	d.path = path
	d.closer = file
	d.lock = lock

	d.log.WithFields(logrus.Fields{
		"path":   path,
		"size":   size,
		"locked": lock != nil,
	}).Debug("opened image")

	return d, nil
}

func newDevice(reader io.ReaderAt, size int64, opts Options) *Device {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Device{
		reader: reader,
		size:   size,
		retry:  opts.retryOptions(),
		log:    opts.Logger,
	}
}

func unlock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

// imageSize returns the size of a regular file or, on Linux, of a block device.
func imageSize(file afero.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}

	if info.Mode()&os.ModeDevice != 0 {
		if osFile, ok := file.(*os.File); ok {
			return deviceSize(osFile)
		}
	}
	return info.Size(), nil
}

// ReadAt reads len(p) bytes at off and retries reads which were interrupted.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	attempt := 0
	n, err := retry.DoWithData(func() (int, error) {
		attempt++
		n, err := d.reader.ReadAt(p, off)
		if isTransient(err) {
			d.log.WithError(err).WithFields(logrus.Fields{
				"offset":  off,
				"attempt": attempt,
			}).Debug("read interrupted")
		}
		if err != nil && !isTransient(err) {
			// A permanent error keeps the bytes read so far.
			return n, retry.Unrecoverable(&readError{n: n, err: err})
		}
		return n, err
	}, d.retry...)

	var re *readError
	if errors.As(err, &re) {
		return re.n, re.err
	}
	return n, err
}

// readError carries a partial read through retry.DoWithData, which drops the data on error.
type readError struct {
	n   int
	err error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

// Size of the image in bytes.
func (d *Device) Size() int64 {
	return d.size
}

func (d *Device) Path() string {
	return d.path
}

// Close closes the image and releases the lock.
func (d *Device) Close() error {
	var err error
	if d.closer != nil {
		err = d.closer.Close()
	}
	unlock(d.lock)
	return err
}
