// Package commands implements the rofat command line interface.
package commands

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aligator/rofat"
	"github.com/aligator/rofat/internal/blockdev"
	"github.com/aligator/rofat/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersion sets the version info for --version.
func SetVersion(v, c string) {
	version = v
	commit = c
}

// app holds the state shared by all subcommands.
type app struct {
	fs afero.Fs

	configPath string
	logLevel   string
	skipChecks bool

	cfg *config.Config
	log *logrus.Logger
}

// NewRootCommand builds the command tree. Images and config files are read from fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	a := &app{
		fs:  fs,
		cfg: config.Default(),
		log: logrus.New(),
	}

	root := &cobra.Command{
		Use:   "rofat",
		Short: "Read-only access to FAT32 images",
		Long: `rofat reads FAT32 disk images and block devices without ever writing to them.

The volume can be inspected directly, mounted with FUSE or exported over NFSv3.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate("rofat version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvPath+")")
	flags.StringVar(&a.logLevel, "log-level", "", "log level, overrides the config file")
	flags.BoolVar(&a.skipChecks, "skip-checks", false, "open volumes which fail some validations of the boot sector")

	root.AddCommand(
		newInfoCommand(a),
		newLsCommand(a),
		newCatCommand(a),
		newMountCommand(a),
		newServeNFSCommand(a),
	)
	return root
}

// Execute runs the command line against the OS filesystem.
func Execute() error {
	return NewRootCommand(afero.NewOsFs()).Execute()
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.fs, a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.skipChecks {
		cfg.SkipChecks = true
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetLevel(level)
	return nil
}

// volume is an opened image together with the device backing it.
type volume struct {
	*rofat.Fs
	device *blockdev.Device
}

func (v *volume) Close() error {
	return v.device.Close()
}

func (a *app) openVolume(image string) (*volume, error) {
	device, err := blockdev.Open(a.fs, image, blockdev.Options{
		Lock:          !a.cfg.Device.NoLock,
		RetryAttempts: a.cfg.Device.RetryAttempts,
		RetryDelay:    a.cfg.Device.RetryDelay,
		Logger:        a.log,
	})
	if err != nil {
		return nil, err
	}

	opts, err := a.cfg.VolumeOptions(a.log)
	if err != nil {
		device.Close()
		return nil, err
	}

	var fat *rofat.Fs
	if a.cfg.SkipChecks {
		fat, err = rofat.NewSkipChecks(device, opts...)
	} else {
		fat, err = rofat.New(device, opts...)
	}
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("could not open %s: %w", image, err)
	}

	return &volume{Fs: fat, device: device}, nil
}

// printf writes to the output of cmd. Write errors on stdout are not actionable.
func printf(w io.Writer, format string, a ...interface{}) {
	_, _ = fmt.Fprintf(w, format, a...)
}
