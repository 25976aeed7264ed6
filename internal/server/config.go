package server

import (
	"net"
	"strconv"
)

type HttpConfig struct {
	// Host is the interface to listen on
	Host string `conf:"host"`

	// Port is the port to listen on. 0 disables the server.
	Port int `conf:"port"`

	// H2c serves HTTP/2 without TLS
	H2c bool `conf:"h2c"`
}

func (c HttpConfig) Enabled() bool {
	return c.Port > 0
}

func (c HttpConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
