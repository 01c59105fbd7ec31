package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aligator/rofat/internal/config"
	"github.com/aligator/rofat/internal/fattest"
)

const imagePath = "/images/test.img"

// testingFs returns a filesystem containing a small image at imagePath.
func testingFs(t *testing.T) afero.Fs {
	t.Helper()

	volume := fattest.New().
		File("README.MD", []byte("# Hello\n")).
		File("HelloWorldThisIsALoongFileName.txt", []byte("long name")).
		File("docs/notes.txt", []byte("some notes")).
		File("docs/sub/deep.bin", []byte{1, 2, 3}).
		Build()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, imagePath, volume.Bytes(), 0o644))
	return fs
}

func run(t *testing.T, fs afero.Fs, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand(fs)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestInfo(t *testing.T) {
	out, _, err := run(t, testingFs(t), "info", imagePath)
	require.NoError(t, err)

	assert.Contains(t, out, "Label:           TESTVOL\n")
	assert.Contains(t, out, "Type:            FAT32\n")
	assert.Contains(t, out, "Volume ID:       1234ABCD\n")
	assert.Contains(t, out, "Cluster size:    512\n")
	assert.Contains(t, out, "Clusters:        65600\n")
}

func TestInfo_errors(t *testing.T) {
	fs := testingFs(t)
	require.NoError(t, afero.WriteFile(fs, "/images/garbage.img", make([]byte, 1024), 0o644))

	_, _, err := run(t, fs, "info", "/images/missing.img")
	assert.Error(t, err)

	_, _, err = run(t, fs, "info", "/images/garbage.img")
	assert.Error(t, err)

	_, _, err = run(t, fs, "info")
	assert.Error(t, err)
}

func TestLs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "root",
			args: []string{"ls", imagePath},
			want: "README.MD\nHelloWorldThisIsALoongFileName.txt\ndocs/\n",
		},
		{
			name: "subdirectory",
			args: []string{"ls", imagePath, "docs"},
			want: "notes.txt\nsub/\n",
		},
		{
			name: "recursive",
			args: []string{"ls", "-R", imagePath, "/docs"},
			want: "/docs/notes.txt\n/docs/sub/\n/docs/sub/deep.bin\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, testingFs(t), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestLs_long(t *testing.T) {
	out, _, err := run(t, testingFs(t), "ls", "-l", imagePath, "docs")
	require.NoError(t, err)
	assert.Equal(t,
		"-rwxr-xr-x         10 2021-03-04 05:06:08 notes.txt\n"+
			"drwxr-xr-x          0 2021-03-04 05:06:08 sub/\n",
		out)
}

func TestLs_missing(t *testing.T) {
	_, _, err := run(t, testingFs(t), "ls", imagePath, "/nope")
	assert.Error(t, err)
}

func TestCat(t *testing.T) {
	out, _, err := run(t, testingFs(t), "cat", imagePath, "README.MD", "docs/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "# Hello\nsome notes", out)

	_, _, err = run(t, testingFs(t), "cat", imagePath, "docs")
	assert.Error(t, err)

	_, _, err = run(t, testingFs(t), "cat", imagePath, "missing.txt")
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	fs := testingFs(t)
	require.NoError(t, afero.WriteFile(fs, "/etc/rofat.yaml", []byte("uid: 42\ngid: 7\nlog_level: debug\n"), 0o644))

	_, stderr, err := run(t, fs, "--config", "/etc/rofat.yaml", "ls", imagePath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "opened FAT32 volume")

	_, _, err = run(t, fs, "--config", "/etc/missing.yaml", "ls", imagePath)
	assert.Error(t, err)

	_, _, err = run(t, fs, "--log-level", "loud", "ls", imagePath)
	assert.Error(t, err)
}

func TestFuseOptions(t *testing.T) {
	a := &app{cfg: config.Default()}
	a.cfg.Fuse.Options = []string{"uid=1"}
	a.cfg.Fuse.AllowOther = true

	assert.Equal(t, []string{"uid=1", "allow_other", "debug"}, a.fuseOptions([]string{"debug"}))
}
