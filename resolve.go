package rofat

import (
	"fmt"
	"strings"

	"github.com/aligator/rofat/checkpoint"
)

// splitPath splits a slash separated path into its components.
// Empty components and "." are dropped, so "", "/" and "." all mean the root.
func splitPath(name string) []string {
	var parts []string
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

// Resolve walks the path from the root directory down and returns the entry it names.
// Names are compared exactly as decoded from disk, without case folding.
// If a component does not exist ErrNotFound is returned without looking at the remaining components.
func (fs *Fs) Resolve(name string) (Entry, error) {
	current := fs.rootEntry()

	for _, part := range splitPath(name) {
		if !current.IsDir() {
			return Entry{}, checkpoint.Wrap(fmt.Errorf("%q is not a directory", current.Name), ErrNotDirectory)
		}

		// ".." is stored on disk but hidden by the decoder. Paths are absolute,
		// so it is not resolved here either.
		if part == ".." {
			return Entry{}, checkpoint.Wrap(fmt.Errorf("path %q contains ..", name), ErrNotFound)
		}

		next, err := fs.lookup(current.Cluster, part)
		if err != nil {
			return Entry{}, err
		}
		current = next
	}

	return current, nil
}

// lookup searches the directory starting at cluster for the first entry called name.
func (fs *Fs) lookup(cluster ClusterID, name string) (Entry, error) {
	var (
		found bool
		match dirEntry
	)

	err := fs.walkDir(cluster, &dirDecoder{}, func(d dirEntry) bool {
		if d.name == name {
			found = true
			match = d
			return false
		}
		return true
	})

	if found {
		return fs.newEntry(match), nil
	}

	// A directory which could not be read completely may still contain the name.
	if err != nil {
		return Entry{}, checkpoint.Wrap(err, fmt.Errorf("looking up %q", name))
	}
	return Entry{}, checkpoint.Wrap(fmt.Errorf("%q", name), ErrNotFound)
}
