package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sanity-io/litter"
	"gopkg.in/yaml.v2"

	scsi "github.com/willgorman/goscsi"
)

type execOutput struct {
	Status       string       `yaml:"status"`
	TargetStatus string       `yaml:"target_status"`
	DataLen      int          `yaml:"data_len"`
	SenseLen     int          `yaml:"sense_len"`
	Took         string       `yaml:"took"`
	Data         string       `yaml:"data,omitempty"`
	Sense        *senseOutput `yaml:"sense,omitempty"`

	data []byte
}

type senseOutput struct {
	Raw         string `yaml:"raw"`
	Key         string `yaml:"key"`
	ASC         string `yaml:"asc"`
	ASCQ        string `yaml:"ascq"`
	Description string `yaml:"description,omitempty"`
	Deferred    bool   `yaml:"deferred,omitempty"`
	Information uint32 `yaml:"information,omitempty"`
}

func newSenseOutput(raw []byte) *senseOutput {
	out := &senseOutput{Raw: hex.EncodeToString(raw)}
	s, err := scsi.ParseSense(raw)
	if err != nil {
		out.Description = err.Error()
		return out
	}
	out.Key = s.Key.String()
	out.ASC = fmt.Sprintf("%#02x", s.ASC)
	out.ASCQ = fmt.Sprintf("%#02x", s.ASCQ)
	out.Description = s.Description()
	out.Deferred = s.Deferred
	out.Information = s.Information
	return out
}

type inquiryOutput struct {
	PeripheralQualifier byte   `yaml:"peripheral_qualifier"`
	DeviceType          byte   `yaml:"device_type"`
	Removable           bool   `yaml:"removable"`
	Version             byte   `yaml:"version"`
	Vendor              string `yaml:"vendor"`
	Product             string `yaml:"product"`
	Revision            string `yaml:"revision"`
}

type capacityOutput struct {
	LastLBA   uint64 `yaml:"last_lba"`
	Blocks    uint64 `yaml:"blocks"`
	BlockSize int    `yaml:"block_size"`
	Bytes     int64  `yaml:"bytes"`
}

// printer knows how to render itself for the text output format.
type printer interface {
	text(w io.Writer)
}

func (c *cli) print(v printer) error {
	switch format := c.v.GetString("output"); format {
	case "text", "":
		v.text(c.out)
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = c.out.Write(b)
		return err
	case "dump":
		fmt.Fprintln(c.out, litter.Sdump(v))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

func (o *execOutput) text(w io.Writer) {
	fmt.Fprintf(w, "status: %s (target status %s) in %s\n", o.Status, o.TargetStatus, o.Took)
	if len(o.data) > 0 {
		fmt.Fprintf(w, "data (%d bytes):\n%s", o.DataLen, hex.Dump(o.data))
	}
	if o.Sense != nil {
		o.Sense.text(w)
	}
}

func (o *senseOutput) text(w io.Writer) {
	if o.Key == "" {
		fmt.Fprintf(w, "sense: %s (%s)\n", o.Raw, o.Description)
		return
	}
	fmt.Fprintf(w, "sense: %s ASC %s ASCQ %s %s\n", o.Key, o.ASC, o.ASCQ, o.Description)
}

func (o *inquiryOutput) text(w io.Writer) {
	fmt.Fprintf(w, "vendor:   %s\nproduct:  %s\nrevision: %s\ntype:     %#02x (qualifier %d)\nversion:  %#02x\nremovable: %t\n",
		o.Vendor, o.Product, o.Revision, o.DeviceType, o.PeripheralQualifier, o.Version, o.Removable)
}

func (o *capacityOutput) text(w io.Writer) {
	fmt.Fprintf(w, "%d blocks of %d bytes (%d bytes), last LBA %d\n", o.Blocks, o.BlockSize, o.Bytes, o.LastLBA)
}

type messageOutput struct {
	Message string `yaml:"message"`
}

func (o *messageOutput) text(w io.Writer) {
	fmt.Fprintln(w, o.Message)
}
