// Package checkpoint decorates errors with the file and line where they passed
// through, which gives something close to a stacktrace when the error is printed.
// Every error attached to a checkpoint stays reachable through errors.Is and errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err in a checkpoint carrying the caller location.
// It returns nil if err is nil.
func From(err error) error {
	if err == nil || isSentinelIO(err) {
		return err
	}

	return newCheckpoint(err, nil)
}

// Wrap adds a checkpoint on top of prev which is further described by err.
// Returns nil if prev is nil.
//
// This allows predefined errors to be attached to whatever went wrong below:
//  var ErrBadVolume = errors.New("bad volume")
//
//  func load() error {
//  	err := parse()
//  	return checkpoint.Wrap(err, ErrBadVolume)
//  }
// errors.Is(load(), ErrBadVolume) holds, and so does errors.Is for the error
// returned by parse.
func Wrap(prev, err error) error {
	if prev == nil || prev == io.EOF {
		return prev
	}

	return newCheckpoint(err, prev)
}

// Trace returns the recorded locations of all checkpoints in err, outermost first.
func Trace(err error) []string {
	var locations []string
	for err != nil {
		var c *checkpoint
		if !errors.As(err, &c) {
			break
		}
		locations = append(locations, c.location())
		err = c.prev
	}
	return locations
}

// isSentinelIO reports errors which callers compare with == and therefore
// must never be wrapped.
// https://github.com/golang/go/issues/39155
func isSentinelIO(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func newCheckpoint(err, prev error) *checkpoint {
	// Skip newCheckpoint and the exported wrapper.
	_, file, line, ok := runtime.Caller(2)

	if err == nil {
		err, prev = prev, nil
	}

	return &checkpoint{
		err:      err,
		prev:     prev,
		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

func (c *checkpoint) location() string {
	if !c.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", c.file, c.line)
}

func (c *checkpoint) Error() string {
	head := fmt.Sprintf("File: %s\n\t%v", c.location(), c.err)
	if c.prev == nil {
		return head
	}

	prev := c.prev.Error()
	if _, ok := c.prev.(*checkpoint); !ok {
		prev = "File: unknown\n\t" + strings.ReplaceAll(prev, "\n", "\n\t")
	}
	return head + "\n" + prev
}

func (c *checkpoint) Unwrap() error {
	return c.prev
}

func (c *checkpoint) Is(target error) bool {
	return errors.Is(c.err, target)
}

func (c *checkpoint) As(target interface{}) bool {
	return errors.As(c.err, target)
}
