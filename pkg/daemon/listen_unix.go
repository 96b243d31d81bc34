//go:build !windows

package daemon

import (
	"net"
	"syscall"
)

// listenPrivate creates the socket readable by the owner only.
func listenPrivate(network, address string) (net.Listener, error) {
	oldUmask := syscall.Umask(0077)
	defer syscall.Umask(oldUmask)
	return net.Listen(network, address)
}
