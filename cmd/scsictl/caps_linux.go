package main

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// checkCaps warns when neither CAP_SYS_RAWIO nor CAP_SYS_ADMIN is in
// effect, in which case most sg commands will be refused. Running as root
// grants both.
func checkCaps(log logrus.FieldLogger) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		log.WithError(err).Debug("capget failed")
		return
	}
	const want = 1<<unix.CAP_SYS_RAWIO | 1<<unix.CAP_SYS_ADMIN
	if data[0].Effective&want == 0 {
		log.Warn("neither cap_sys_rawio nor cap_sys_admin are in effect, device access will probably fail")
	}
}
