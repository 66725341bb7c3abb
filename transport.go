package scsi

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind names a transport.
type Kind string

const (
	KindSG    Kind = "sg"
	KindISCSI Kind = "iscsi"
)

// OpenFunc opens a transport for address. On error it must have released
// everything it acquired.
type OpenFunc func(address string, opts Options) (Transport, error)

var (
	transportsMu sync.RWMutex
	transports   = map[Kind]OpenFunc{}
)

// RegisterTransport makes a transport available to Open. It is meant to be
// called from the transport package's init and panics on duplicates.
func RegisterTransport(kind Kind, open OpenFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	if open == nil {
		panic("scsi: RegisterTransport open func is nil")
	}
	if _, dup := transports[kind]; dup {
		panic(fmt.Sprintf("scsi: RegisterTransport called twice for %q", kind))
	}
	transports[kind] = open
}

// Transports lists the registered transport kinds.
func Transports() []Kind {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	kinds := make([]Kind, 0, len(transports))
	for k := range transports {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DetectKind picks the transport for an address: iscsi:// URLs go to
// libiscsi, everything else is treated as a device node.
func DetectKind(address string) Kind {
	if strings.HasPrefix(strings.ToLower(address), "iscsi://") {
		return KindISCSI
	}
	return KindSG
}

func lookupTransport(kind Kind) (OpenFunc, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	open, ok := transports[kind]
	return open, ok
}
