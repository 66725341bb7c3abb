package main

import (
	"github.com/spf13/cobra"
)

func newTURCommand(c *cli) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "tur ADDRESS",
		Short: "Send TEST UNIT READY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := c.open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			if err := dev.TestUnitReady(); err != nil {
				return err
			}
			return c.print(&messageOutput{Message: "ready"})
		},
	}
	return cmd
}

func newInquiryCommand(c *cli) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "inquiry ADDRESS",
		Short: "Print the standard INQUIRY page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := c.open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			inq, err := dev.Inquiry()
			if err != nil {
				return err
			}
			return c.print(&inquiryOutput{
				PeripheralQualifier: inq.PeripheralQualifier,
				DeviceType:          inq.DeviceType,
				Removable:           inq.Removable,
				Version:             inq.Version,
				Vendor:              inq.Vendor,
				Product:             inq.Product,
				Revision:            inq.Revision,
			})
		},
	}
	return cmd
}

func newCapacityCommand(c *cli) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "capacity ADDRESS",
		Short: "Print the block count and size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := c.open(args[0])
			if err != nil {
				return err
			}
			defer dev.Close()
			cap, err := dev.Capacity()
			if err != nil {
				return err
			}
			return c.print(&capacityOutput{
				LastLBA:   cap.LBA,
				Blocks:    cap.Blocks(),
				BlockSize: cap.BlockSize,
				Bytes:     cap.Size(),
			})
		},
	}
	return cmd
}
