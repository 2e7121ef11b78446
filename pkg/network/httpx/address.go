package httpx

import (
	"net"
	"strconv"
)

type Address string

// SplitHostPort splits the address into a host and a numeric port.
// The port is 0 when absent or malformed.
func (a Address) SplitHostPort() (string, int) {
	host, p, err := net.SplitHostPort(string(a))
	if err != nil {
		return string(a), 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}

// buildAddress joins the host of the address with the port of the listener.
//
// As example, address host.com:8080 and listener 123.123.123.123:8888 will be
// transformed to host.com:8888.
func buildAddress(address string, l Listener) string {
	addr, _, err := net.SplitHostPort(address)
	if err != nil {
		addr = address
	}
	if addr == "" {
		addr = "localhost"
	}

	port := l.GetPort()
	if port > 0 && port != 80 && port != 443 {
		addr += ":" + strconv.Itoa(port)
	}
	return addr
}

func extractHost(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err == nil {
		return host
	}
	return address
}
