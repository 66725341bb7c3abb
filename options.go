package scsi

import "time"

const (
	// DefaultTimeout bounds a single command when neither the handle nor the
	// command sets one.
	DefaultTimeout = 20 * time.Second

	// DefaultInitiatorIQN is the initiator name used for iSCSI sessions when
	// Options.InitiatorIQN is empty.
	DefaultInitiatorIQN = "iqn.2007-10.com.github:sahlberg:python-libiscsi"

	DefaultConnectAttempts = 20
	DefaultConnectMaxDelay = 500 * time.Millisecond
)

// Options configure Open. The zero value is usable.
type Options struct {
	// Transport forces a transport kind. When empty the kind is detected
	// from the address.
	Transport Kind

	// ReadWrite opens generic SCSI devices O_RDWR instead of O_RDONLY.
	ReadWrite bool

	// Timeout is the default per-command timeout.
	Timeout time.Duration

	// InitiatorIQN names the iSCSI initiator.
	InitiatorIQN string

	// ConnectAttempts and ConnectMaxDelay bound the iSCSI login retries.
	ConnectAttempts uint
	ConnectMaxDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.InitiatorIQN == "" {
		o.InitiatorIQN = DefaultInitiatorIQN
	}
	if o.ConnectAttempts == 0 {
		o.ConnectAttempts = DefaultConnectAttempts
	}
	if o.ConnectMaxDelay <= 0 {
		o.ConnectMaxDelay = DefaultConnectMaxDelay
	}
	return o
}
