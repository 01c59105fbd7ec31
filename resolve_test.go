package rofat

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aligator/rofat/internal/fattest"
)

func Test_splitPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "empty", path: "", want: nil},
		{name: "root", path: "/", want: nil},
		{name: "dot", path: ".", want: nil},
		{name: "absolute", path: "/a/b", want: []string{"a", "b"}},
		{name: "relative", path: "a/b", want: []string{"a", "b"}},
		{name: "double slashes and dots", path: "//a/./b/", want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitPath(tt.path))
		})
	}
}

func TestFs_Resolve(t *testing.T) {
	volume := testTree().Build()
	fs, _ := testingNew(t, volume)

	tests := []struct {
		name        string
		path        string
		wantName    string
		wantCluster ClusterID
		wantErr     error
	}{
		{
			name:        "root",
			path:        "/",
			wantName:    "/",
			wantCluster: 2,
		},
		{
			name:        "short name",
			path:        "/README.MD",
			wantName:    "README.MD",
			wantCluster: ClusterID(volume.Cluster("README.MD")),
		},
		{
			name:        "long name",
			path:        "/HelloWorldThisIsALoongFileName.txt",
			wantName:    "HelloWorldThisIsALoongFileName.txt",
			wantCluster: ClusterID(volume.Cluster("HelloWorldThisIsALoongFileName.txt")),
		},
		{
			name:        "nested",
			path:        "/docs/sub/deep.bin",
			wantName:    "deep.bin",
			wantCluster: ClusterID(volume.Cluster("docs/sub/deep.bin")),
		},
		{
			name:        "without leading slash",
			path:        "docs/notes.txt",
			wantName:    "notes.txt",
			wantCluster: ClusterID(volume.Cluster("docs/notes.txt")),
		},
		{
			name:        "directory",
			path:        "/docs/",
			wantName:    "docs",
			wantCluster: ClusterID(volume.Cluster("docs")),
		},
		{
			name:    "names are case sensitive",
			path:    "/readme.md",
			wantErr: os.ErrNotExist,
		},
		{
			name:    "short alias of a long name",
			path:    "/HELLOW~1.TXT",
			wantErr: os.ErrNotExist,
		},
		{
			name:    "missing parents",
			path:    "/a/b/c",
			wantErr: os.ErrNotExist,
		},
		{
			name:    "file as directory",
			path:    "/README.MD/x",
			wantErr: syscall.ENOTDIR,
		},
		{
			name:    "parent references are not followed",
			path:    "/docs/../README.MD",
			wantErr: os.ErrNotExist,
		},
		{
			name:    "dot entries are hidden",
			path:    "/docs/..",
			wantErr: os.ErrNotExist,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.Resolve(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantCluster, got.Cluster)
		})
	}
}

func TestFs_Resolve_firstMatchWins(t *testing.T) {
	volume := fattest.New().
		File("dup.txt", []byte("first")).
		File("dup.txt", []byte("second")).
		Build()
	fs, _ := testingNew(t, volume)

	buf := make([]byte, 10)
	n, err := fs.Read("/dup.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", string(buf[:n]))
}

func TestFs_Resolve_corruptDirectory(t *testing.T) {
	volume := testTree().Build()

	// The root directory links to reserved cluster 1 after its first cluster.
	volume.SetFAT(2, 1)
	fs, _ := testingNew(t, volume)

	// Entries before the corruption are still found.
	entry, err := fs.Resolve("/README.MD")
	require.NoError(t, err)
	assert.Equal(t, "README.MD", entry.Name)

	// A missing name may have been behind the corruption, so it is no NotFound.
	_, err = fs.Resolve("/missing")
	assert.ErrorIs(t, err, ErrCorruptChain)
	assert.False(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, syscall.EIO, Errno(err))
}
