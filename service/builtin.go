// Package service wires the built-in service descriptors into one
// lookup used by the CLI and the monitors.
package service

import (
	"fmt"
	"strings"

	"github.com/stephnangue/nxauth/credential"
	"github.com/stephnangue/nxauth/service/coral"
	"github.com/stephnangue/nxauth/service/moon"
	"github.com/stephnangue/nxauth/service/nooklink"
	"github.com/stephnangue/nxauth/service/splatnet2"
	"github.com/stephnangue/nxauth/service/splatnet3"
)

// Names lists the built-in services
func Names() []string {
	return []string{
		coral.ServiceName,
		moon.ServiceName,
		splatnet2.ServiceName,
		splatnet3.ServiceName,
		nooklink.ServiceName,
	}
}

// New returns the descriptor for name. An empty address selects the
// service's production endpoint; config can override it for testing.
func New(name, address string) (credential.Service, error) {
	switch name {
	case coral.ServiceName:
		return coral.New(address), nil
	case moon.ServiceName:
		return moon.New(address), nil
	case splatnet2.ServiceName:
		return splatnet2.New(address), nil
	case splatnet3.ServiceName:
		return splatnet3.New(address), nil
	case nooklink.ServiceName:
		return nooklink.New(address), nil
	default:
		return nil, fmt.Errorf("unknown service %q, expected one of: %s", name, strings.Join(Names(), ", "))
	}
}
