package commands

import (
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aligator/rofat"
)

func newLsCommand(a *app) *cobra.Command {
	var recursive, long bool

	cmd := &cobra.Command{
		Use:   "ls IMAGE [PATH]",
		Short: "List a directory of a volume",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) > 1 {
				dir = path.Clean("/" + args[1])
			}

			v, err := a.openVolume(args[0])
			if err != nil {
				return err
			}
			defer v.Close()

			out := cmd.OutOrStdout()
			if recursive {
				return afero.Walk(v.Fs, dir, func(p string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if p == dir {
						return nil
					}
					printEntry(out, p, info, long)
					return nil
				})
			}

			return v.Readdir(dir, func(name string, entry rofat.Entry, _ rofat.ClusterID) bool {
				printEntry(out, name, entry.FileInfo(), long)
				return true
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "list subdirectories recursively")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show mode, size and modification time")
	return cmd
}

func printEntry(out io.Writer, name string, info os.FileInfo, long bool) {
	if info.IsDir() {
		name += "/"
	}
	if !long {
		printf(out, "%s\n", name)
		return
	}
	printf(out, "%s %10d %s %s\n", info.Mode(), info.Size(), info.ModTime().Format("2006-01-02 15:04:05"), name)
}
