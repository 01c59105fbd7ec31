package rofat

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/aligator/rofat/internal/fattest"
)

var testMountTime = time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)

// longFileContent spans three clusters of 512 bytes.
var longFileContent = pattern(1500)

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return data
}

// testTree returns the builder for the volume used by most tests.
func testTree() *fattest.Builder {
	return fattest.New().
		File("README.MD", []byte("# Hello\n")).
		File("HelloWorldThisIsALoongFileName.txt", longFileContent).
		File("empty.txt", nil).
		FileAttr("RO.TXT", []byte("read only"), fattest.AttrReadOnly).
		File("docs/notes.txt", []byte("some notes")).
		File("docs/sub/deep.bin", []byte{1, 2, 3}).
		Dir("emptydir")
}

// testingNew opens the volume and fails the test on error.
// The returned hook records everything logged by the Fs.
func testingNew(t *testing.T, volume *fattest.Volume, opts ...Option) (*Fs, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts = append([]Option{
		WithLogger(logger),
		WithOwner(1000, 100),
		WithMountTime(testMountTime),
	}, opts...)

	fs, err := New(volume, opts...)
	if err != nil {
		t.Fatalf("could not open the test volume: %v", err)
	}
	return fs, hook
}

func warnings(hook *logtest.Hook) []string {
	var messages []string
	for _, entry := range hook.AllEntries() {
		if entry.Level <= logrus.WarnLevel {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}
