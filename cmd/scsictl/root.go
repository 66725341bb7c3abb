package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	scsi "github.com/willgorman/goscsi"
)

const iqnPrefix = "iqn.2024-10.com.github.willgorman.goscsi"

type cli struct {
	v   *viper.Viper
	log *logrus.Logger
	out io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	return newCLI(out).command()
}

func newCLI(out io.Writer) *cli {
	return &cli{v: viper.New(), log: logrus.New(), out: out}
}

func (c *cli) command() *cobra.Command {
	var cfgFile string
	var cmd = &cobra.Command{
		Use:          "scsictl",
		Short:        "Send SCSI commands to sg devices and iSCSI targets",
		Long:         `Addresses are either sg device nodes (/dev/sg0) or libiscsi URLs (iscsi://host[:port]/target-iqn/lun).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cfgFile)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.scsictl/config.yaml)")
	flags.String("transport", "", "transport to use (sg, iscsi), detected from the address when empty")
	flags.Bool("rw", false, "open sg devices read/write")
	flags.Duration("timeout", scsi.DefaultTimeout, "per command timeout")
	flags.String("initiator", "", "iSCSI initiator IQN, a unique one is generated when empty")
	flags.Uint("connect-attempts", scsi.DefaultConnectAttempts, "iSCSI login attempts")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", "text", "output format (text, yaml, dump)")
	_ = c.v.BindPFlags(flags)

	cmd.AddCommand(
		newExecCommand(c),
		newTURCommand(c),
		newInquiryCommand(c),
		newCapacityCommand(c),
		newReadCommand(c),
		newFillCommand(c),
		newVersionCommand(c),
	)
	return cmd
}

func (c *cli) init(cfgFile string) error {
	c.v.SetEnvPrefix("SCSICTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
		if home, err := homedir.Dir(); err == nil {
			c.v.AddConfigPath(filepath.Join(home, ".scsictl"))
		}
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	level, err := logrus.ParseLevel(c.v.GetString("log-level"))
	if err != nil {
		return err
	}
	c.log.SetOutput(os.Stderr)
	c.log.SetLevel(level)
	scsi.SetLogger(c.log)
	if f := c.v.ConfigFileUsed(); f != "" {
		c.log.WithField("file", f).Debug("using config file")
	}
	return nil
}

func (c *cli) options() scsi.Options {
	iqn := c.v.GetString("initiator")
	if iqn == "" {
		iqn = generateIQN()
	}
	return scsi.Options{
		Transport:       scsi.Kind(c.v.GetString("transport")),
		ReadWrite:       c.v.GetBool("rw"),
		Timeout:         c.v.GetDuration("timeout"),
		InitiatorIQN:    iqn,
		ConnectAttempts: c.v.GetUint("connect-attempts"),
	}
}

// generateIQN returns an initiator name that will not collide with another
// session, so parallel handles can log in to the same target.
func generateIQN() string {
	return iqnPrefix + ":" + uuid.NewV4().String()
}

func (c *cli) open(address string) (*scsi.Device, error) {
	opts := c.options()
	kind := opts.Transport
	if kind == "" {
		kind = scsi.DetectKind(address)
	}
	if kind == scsi.KindSG {
		checkCaps(c.log)
	}
	return scsi.Open(address, opts)
}
