package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aligator/rofat/internal/fattest"
)

// main writes a small FAT32 image to play with rofat, e.g.
//
//	go run ./cmd/generate testdata/sample.img
//	go run ./cmd/rofat ls -R testdata/sample.img
func main() {
	cmd := &cobra.Command{
		Use:   "generate IMAGE",
		Short: "Write a sample FAT32 image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(afero.NewOsFs(), args[0])
		},
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func generate(fs afero.Fs, dest string) error {
	volume := fattest.New().
		File("README.md", []byte("# rofat\n\nA sample volume.\n")).
		File("HelloWorldThisIsALoongFileName.txt", []byte("Hello World!\n")).
		FileAttr("READONLY.TXT", []byte("read only\n"), fattest.AttrReadOnly).
		FileAttr("hidden.txt", []byte("hidden\n"), fattest.AttrHidden|fattest.AttrArchive).
		File("docs/notes.txt", []byte("some notes\n")).
		File("docs/sub/deep.bin", []byte{1, 2, 3}).
		Dir("empty").
		Build()

	if err := fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	file, err := fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := file.Write(volume.Bytes()); err != nil {
		file.Close()
		return err
	}

	// Truncate to the full size so the file is sparse where the volume is empty.
	if err := file.Truncate(volume.Size()); err != nil {
		file.Close()
		return err
	}

	if err := file.Close(); err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d bytes)\n", dest, volume.Size())
	return nil
}
