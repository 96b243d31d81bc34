//go:build windows

package daemon

import "net"

// listenPrivate relies on the default ACL of the socket directory.
func listenPrivate(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}
