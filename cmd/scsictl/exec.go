package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	scsi "github.com/willgorman/goscsi"
)

func newExecCommand(c *cli) *cobra.Command {
	var (
		inLen    int
		senseLen int
		dataHex  string
		dataFile string
		outFile  string
	)
	var cmd = &cobra.Command{
		Use:   "exec ADDRESS CDB",
		Short: "Execute a raw CDB given in hex",
		Long: `Execute a single command descriptor block. At most one of --in (data-in
length) and --data/--data-file (data-out) may be given.`,
		Example: `  scsictl exec /dev/sg0 12000000240000 --in 36
  scsictl exec iscsi://10.0.0.1/iqn.2024-10.com.example:disk/0 000000000000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inLen < 0 || senseLen < 0 {
				return fmt.Errorf("--in and --sense must not be negative")
			}
			cdb, err := parseHex(args[1])
			if err != nil {
				return fmt.Errorf("invalid CDB: %w", err)
			}
			command := &scsi.Command{CDB: cdb, Sense: make([]byte, senseLen)}
			switch {
			case dataHex != "" && dataFile != "":
				return fmt.Errorf("--data and --data-file are mutually exclusive")
			case dataHex != "":
				if command.DataOut, err = parseHex(dataHex); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			case dataFile != "":
				if command.DataOut, err = os.ReadFile(dataFile); err != nil {
					return err
				}
			}
			if inLen > 0 {
				command.DataIn = make([]byte, inLen)
			}

			dev, err := c.open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()

			res, err := dev.Execute(command)
			if err != nil {
				return err
			}
			out := &execOutput{
				Status:       res.Status.String(),
				TargetStatus: fmt.Sprintf("%#02x", res.TargetStatus),
				DataLen:      res.DataLen,
				SenseLen:     res.SenseLen,
				Took:         res.Duration.String(),
			}
			if res.DataLen > 0 {
				out.data = command.DataIn[:res.DataLen]
				out.Data = hex.EncodeToString(out.data)
				if outFile != "" {
					if err := os.WriteFile(outFile, out.data, 0o644); err != nil {
						return err
					}
				}
			}
			raw := command.Sense[:res.SenseLen]
			if res.Status == scsi.StatusCheckCondition {
				out.Sense = newSenseOutput(raw)
			}
			if err := c.print(out); err != nil {
				return err
			}
			if res.Status == scsi.StatusCheckCondition {
				s, _ := scsi.ParseSense(raw)
				return &scsi.CheckConditionError{Opcode: cdb[0], Sense: s, Raw: raw}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&inLen, "in", 0, "length of the data-in buffer")
	flags.IntVar(&senseLen, "sense", scsi.SenseLength, "length of the sense buffer")
	flags.StringVar(&dataHex, "data", "", "data-out bytes in hex")
	flags.StringVar(&dataFile, "data-file", "", "file holding the data-out bytes")
	flags.StringVar(&outFile, "out-file", "", "write data-in bytes to this file")
	return cmd
}

// parseHex accepts hex with optional spaces, colons or a 0x prefix, e.g.
// "12 00 00 00 24 00" or "0x120000002400".
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("no bytes given")
	}
	return hex.DecodeString(s)
}
