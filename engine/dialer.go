/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"context"
	"net"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Dialer abstracts the TCP dial so tests can substitute net.Pipe or an
// in-memory listener instead of a real socket.
type Dialer interface {
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// tcpDialer is the production Dialer: a plain TCP connection tuned the
// way a long-lived low-latency streaming client wants it tuned -
// TCP_NODELAY, OS-level keepalive, and an optional DSCP marking on
// outgoing packets.
type tcpDialer struct {
	dscp int
}

// NewTCPDialer returns a Dialer that applies the given DSCP codepoint
// (0 to leave it untouched) to every connection it opens.
func NewTCPDialer(dscp int) Dialer {
	return &tcpDialer{dscp: dscp}
}

func (d *tcpDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	nd := net.Dialer{
		Timeout: 30 * time.Second,
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if d.dscp != 0 {
					ctrlErr = setDSCP(int(fd), d.dscp)
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			log.WithError(err).Debug("setting TCP_NODELAY failed, continuing without it")
		}
		if err := tc.SetKeepAlive(true); err != nil {
			log.WithError(err).Debug("enabling SO_KEEPALIVE failed, continuing without it")
		}
		if err := tc.SetKeepAlivePeriod(60 * time.Second); err != nil {
			log.WithError(err).Debug("setting keepalive period failed, continuing without it")
		}
	}
	return conn, nil
}

// setDSCP marks outgoing packets on fd with the given DiffServ
// codepoint, trying both the IPv4 and IPv6 socket option so the same
// call works regardless of which family the dial resolved to. Either
// option failing silently (ENOPROTOOPT on a socket of the other
// family) is expected and not reported.
func setDSCP(fd int, dscp int) error {
	tos := dscp << 2
	err4 := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos)
	err6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	if err4 != nil && err6 != nil {
		return err4
	}
	return nil
}
