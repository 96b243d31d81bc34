//go:build !linux

package device

import "errors"

// newPlatformSource returns a polling Source.
func newPlatformSource(cfg SourceConfig) Source {
	return NewPollSource(cfg)
}

func newNetlinkSource(SourceConfig) (Source, error) {
	return nil, newError(SetupFailure, "netlink source", errors.New("netlink uevents are only available on linux"))
}
