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

// Package engine implements the SeedLink connection state machine: the
// DOWN -> UP -> DATA lifecycle, HELLO/BATCH/STATION/SELECT/DATA-FETCH
// negotiation, network-timeout and keepalive timers, reconnection with
// a fixed delay, and the frame decode loop built on top of
// github.com/geoseis/slink/protocol.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/rs/xid"

	"github.com/geoseis/slink/protocol"
	"github.com/geoseis/slink/registry"
)

// Engine drives one SeedLink connection through its lifecycle. It is
// not safe for concurrent use: call Step/StepNB/Collect/CollectNB from
// a single goroutine.
type Engine struct {
	cfg    *Config
	dialer Dialer
	reg    *registry.Registry

	conn   net.Conn
	reader *bufio.Reader

	state     State
	queryMode QueryMode
	batchMode BatchMode
	serverVer serverVersion

	buf *ringBuffer

	netTimer       *armableTimer
	keepaliveTimer *armableTimer
	reconnectTimer *armableTimer
	needReconnect  bool

	infoAcc infoAccumulator

	pendingPacket *Packet
	terminated    bool
	termErr       error

	stats        StatsServer
	lastPacketAt time.Time

	log *log.Entry
}

// SetStats attaches a StatsServer that the engine reports delivered
// packets, INFO requests, and reconnects against. It is a no-op to
// call Step without ever calling SetStats.
func (e *Engine) SetStats(s StatsServer) {
	e.stats = s
}

// NewEngine builds an Engine from cfg. The registry of streams is
// populated from cfg.Streams immediately; resume sequence numbers can
// be seeded afterward with SeedResume before the first Step call.
func NewEngine(cfg *Config, dialer Dialer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg := registry.New()
	for _, s := range cfg.Streams {
		if s.Net == registry.UniNet && s.Sta == registry.UniSta {
			if _, err := reg.SetUni(s.Selectors, protocol.SeqUnset, ""); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
			}
			continue
		}
		if _, err := reg.Add(s.Net, s.Sta, s.Selectors, protocol.SeqUnset, ""); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
	}

	e := &Engine{
		cfg:            cfg,
		dialer:         dialer,
		reg:            reg,
		buf:            newRingBuffer(cfg.BufferCapacity),
		netTimer:       newArmableTimer(cfg.NetworkTimeout),
		reconnectTimer: newArmableTimer(cfg.ReconnectDelay),
		log:            log.WithField("conn_id", xid.New().String()),
	}
	if cfg.KeepaliveInterval > 0 {
		e.keepaliveTimer = newArmableTimer(cfg.KeepaliveInterval)
	}
	return e, nil
}

// SeedResume preloads a stream's last-delivered sequence number and
// timestamp, e.g. from a previously saved statefile, so negotiation
// issues DATA <seq> <timestamp> (FETCH in dial-up mode) instead of
// starting from the beginning.
func (e *Engine) SeedResume(net, sta string, seq int32, timestamp string) bool {
	entry := e.reg.Find(net, sta)
	if entry == nil {
		return false
	}
	entry.Seqnum = seq
	entry.Timestamp = timestamp
	return true
}

// Streams returns the current registry entries, useful for persisting
// state between runs.
func (e *Engine) Streams() []*registry.Entry {
	return e.reg.Iter()
}

// Packet returns the packet produced by the most recent Step/StepNB
// call that returned ResultPacket.
func (e *Engine) Packet() *Packet {
	return e.pendingPacket
}

// Err returns the reason the engine terminated, if any.
func (e *Engine) Err() error {
	return e.termErr
}

// Terminate sends BYE (best-effort) and shuts the connection down.
// Subsequent Step calls return ResultTerminated.
func (e *Engine) Terminate() {
	if e.terminated {
		return
	}
	if e.conn != nil {
		_, _ = e.conn.Write(protocol.ByeCmd())
	}
	e.terminate(nil)
}

func (e *Engine) terminate(err error) {
	e.terminated = true
	e.termErr = err
	e.closeConn()
}

func (e *Engine) closeConn() {
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	e.reader = nil
	e.state = StateDown
}

// Step blocks up to roughly half a second waiting for the next frame.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	return e.step(ctx, true)
}

// StepNB polls with a short read wait: it waits at most 10ms for data
// instead of Step's half second, and returns ResultNoPacket if nothing
// arrived in that time.
func (e *Engine) StepNB(ctx context.Context) (StepResult, error) {
	return e.step(ctx, false)
}

// Collect loops Step until a packet is produced or the engine
// terminates.
func (e *Engine) Collect(ctx context.Context) (*Packet, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := e.Step(ctx)
		switch res {
		case ResultPacket:
			return e.pendingPacket, nil
		case ResultTerminated:
			return nil, err
		}
	}
}

// CollectNB is the non-blocking counterpart of Collect: it returns
// (nil, nil) if nothing was ready this tick.
func (e *Engine) CollectNB(ctx context.Context) (*Packet, error) {
	res, err := e.StepNB(ctx)
	switch res {
	case ResultPacket:
		return e.pendingPacket, nil
	case ResultTerminated:
		return nil, err
	default:
		return nil, nil
	}
}

func (e *Engine) step(ctx context.Context, blocking bool) (StepResult, error) {
	if e.terminated {
		return ResultTerminated, e.termErr
	}
	now := time.Now()

	if e.state == StateDown {
		if e.needReconnect && !e.reconnectTimer.Evaluate(now) {
			return ResultNoPacket, nil
		}
		e.needReconnect = false
		if err := e.connectAndNegotiate(ctx); err != nil {
			if Recoverable(err) {
				e.log.WithError(err).Warn("connect/negotiate failed, will retry")
				e.scheduleReconnect()
				return ResultNoPacket, nil
			}
			e.terminate(err)
			return ResultTerminated, err
		}
	}

	if e.netTimer.Evaluate(now) {
		e.log.Warn("network timeout, reconnecting")
		e.closeConn()
		e.scheduleReconnect()
		return ResultNoPacket, nil
	}
	if e.keepaliveTimer != nil && e.keepaliveTimer.Evaluate(now) {
		if err := e.sendKeepalive(); err != nil {
			e.log.WithError(err).Warn("keepalive failed, reconnecting")
			e.closeConn()
			e.scheduleReconnect()
			return ResultNoPacket, nil
		}
		e.keepaliveTimer.Arm()
	}

	if pkt, ok, err := e.decodeOne(); err != nil {
		e.terminate(err)
		return ResultTerminated, err
	} else if ok {
		return e.deliver(pkt)
	}

	readTimeout := 500 * time.Millisecond
	if !blocking {
		readTimeout = 10 * time.Millisecond
	}
	if err := e.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		e.terminate(fmt.Errorf("%w: %v", ErrConnectFailed, err))
		return ResultTerminated, e.termErr
	}
	e.buf.EnsureFree(minBufferCapacity)
	slot := e.buf.WriteSlot(e.buf.Free())
	n, err := e.reader.Read(slot)
	if n > 0 {
		e.buf.Advance(n)
		e.netTimer.Arm()
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ResultNoPacket, nil
		}
		e.log.WithError(err).Warn("read failed, reconnecting")
		e.closeConn()
		e.scheduleReconnect()
		return ResultNoPacket, nil
	}
	if n == 0 {
		return ResultNoPacket, nil
	}

	if pkt, ok, err := e.decodeOne(); err != nil {
		e.terminate(err)
		return ResultTerminated, err
	} else if ok {
		return e.deliver(pkt)
	}
	return ResultNoPacket, nil
}

// scheduleReconnect arms the reconnect-delay timer and reports the
// disconnect to stats, if attached.
func (e *Engine) scheduleReconnect() {
	e.needReconnect = true
	e.reconnectTimer.Arm()
	if e.stats != nil {
		e.stats.IncReconnects()
	}
}

// deliver records a decoded packet as pending, updating the
// inter-arrival stats before returning ResultPacket.
func (e *Engine) deliver(pkt *Packet) (StepResult, error) {
	e.pendingPacket = pkt
	if e.stats != nil {
		now := time.Now()
		if !pkt.IsInfo {
			e.stats.IncPacketsDelivered()
			if !e.lastPacketAt.IsZero() {
				e.stats.ObserveInterarrival(now.Sub(e.lastPacketAt))
			}
			e.lastPacketAt = now
		}
	}
	return ResultPacket, nil
}

// decodeOne tries to pull exactly one complete frame out of the
// unconsumed buffer. It reports (packet, true, nil) on a delivered
// packet, (nil, false, nil) if more bytes are needed, and a non-nil
// error if the stream signalled termination or contained unrecoverable
// garbage.
func (e *Engine) decodeOne() (*Packet, bool, error) {
	e.buf.Compact()
	data := e.buf.Bytes()

	if e.buf.Equals("END") || e.buf.Equals("END\r\n") {
		e.buf.Discard(len(data))
		return nil, false, ErrServerEnd
	}
	if e.buf.Equals("ERROR\r\n") {
		e.buf.Discard(len(data))
		return nil, false, ErrServerError
	}
	if len(data) < protocol.HeaderSize {
		return nil, false, nil
	}

	hdr, err := protocol.DecodeHeader(data[:protocol.HeaderSize])
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrDecodeFatal, err)
	}
	body := data[protocol.HeaderSize:]
	reclen := protocol.DetectRecord(body)
	if reclen == protocol.Incomplete {
		return nil, false, nil
	}
	if reclen == protocol.Invalid {
		return nil, false, fmt.Errorf("%w: could not locate a record boundary", ErrDecodeFatal)
	}
	total := protocol.HeaderSize + reclen
	if len(data) < total {
		return nil, false, nil
	}
	record := data[protocol.HeaderSize:total]

	var pkt *Packet
	switch hdr.Kind {
	case protocol.FrameInfo:
		if !e.infoAcc.active {
			e.infoAcc.begin()
		}
		e.infoAcc.append(record)
		if hdr.Terminator {
			raw := append([]byte(nil), e.infoAcc.buf...)
			e.infoAcc.reset()
			keepalive := e.queryMode == QueryKeepAlive
			e.queryMode = QueryNone
			if !keepalive {
				pkt = &Packet{IsInfo: true, InfoEnd: true, Raw: raw}
			}
		}
	case protocol.FrameData:
		fields, ferr := protocol.ParseRecordFields(record)
		if ferr != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrDecodeFatal, ferr)
		}
		e.reg.MatchAndUpdate(fields.Net, fields.Sta, hdr.Seqnum, protocol.FormatTime(fields.StartTime()))
		pkt = &Packet{Seqnum: hdr.Seqnum, Raw: append([]byte(nil), record...), Fields: fields}
	}
	e.buf.Discard(total)
	return pkt, pkt != nil, nil
}

func (e *Engine) sendKeepalive() error {
	e.queryMode = QueryKeepAlive
	if e.stats != nil {
		e.stats.IncInfoRequests()
	}
	_, err := e.conn.Write(protocol.InfoCmd("ID"))
	return err
}

// RequestInfo issues an INFO request at the given level ("ID",
// "STATIONS", "STREAMS", "GAPS", "CONNECTIONS", ...). Unlike the
// keepalive's own INFO ID request, the reply is delivered to the
// caller: the next Step/Collect call returns it as a Packet with
// IsInfo set once the server has sent every continuation frame.
func (e *Engine) RequestInfo(level string) error {
	e.queryMode = QueryInfo
	if e.stats != nil {
		e.stats.IncInfoRequests()
	}
	_, err := e.conn.Write(protocol.InfoCmd(level))
	return err
}

// Ping dials the server, performs the HELLO handshake only, and
// returns the negotiated server version string without subscribing to
// any stream. The connection is closed before Ping returns either way.
func (e *Engine) Ping(ctx context.Context) (string, error) {
	conn, err := e.dialer.Dial(ctx, e.cfg.Address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()
	e.conn = conn
	e.reader = bufio.NewReader(conn)
	defer func() {
		e.conn = nil
		e.reader = nil
	}()

	if err := conn.SetDeadline(time.Now().Add(e.cfg.NetworkTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if err := e.sendHello(); err != nil {
		return "", err
	}
	return e.serverVer.String(), nil
}

// ListStreams dials the server, performs the HELLO handshake, and
// requests its full stream catalog with CAT. It returns the raw INFO
// response body once fully accumulated - an XML document whose
// element schema is server-defined, so it is handed back unparsed for
// the caller to render or filter. The connection is closed before
// ListStreams returns either way.
func (e *Engine) ListStreams(ctx context.Context) (string, error) {
	conn, err := e.dialer.Dial(ctx, e.cfg.Address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()
	e.conn = conn
	e.reader = bufio.NewReader(conn)
	defer func() {
		e.conn = nil
		e.reader = nil
	}()

	if err := conn.SetDeadline(time.Now().Add(e.cfg.NetworkTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if err := e.sendHello(); err != nil {
		return "", err
	}

	e.queryMode = QueryInfo
	if _, err := conn.Write(protocol.CatCmd()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		pkt, ok, err := e.decodeOne()
		if err != nil {
			return "", err
		}
		if ok && pkt.IsInfo {
			return string(pkt.Raw), nil
		}
		e.buf.EnsureFree(minBufferCapacity)
		slot := e.buf.WriteSlot(e.buf.Free())
		n, err := e.reader.Read(slot)
		if n > 0 {
			e.buf.Advance(n)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
	}
}

// connectAndNegotiate dials and runs the full HELLO/BATCH/STATION/
// SELECT/DATA-FETCH/END negotiation sequence described in the wire
// protocol, leaving the connection ready to stream on success.
func (e *Engine) connectAndNegotiate(ctx context.Context) error {
	conn, err := e.dialer.Dial(ctx, e.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	e.conn = conn
	e.reader = bufio.NewReader(conn)
	e.state = StateUp

	if err := e.conn.SetDeadline(time.Now().Add(e.cfg.NetworkTimeout)); err != nil {
		e.closeConn()
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	e.log.WithField("address", e.cfg.Address).Info("connected, negotiating")

	if err := e.sendHello(); err != nil {
		e.closeConn()
		return err
	}

	e.batchMode = BatchNone
	if e.cfg.Batchmode && e.serverVer.SupportsBatch() {
		if err := e.sendCommandExpectOK(protocol.BatchCmd()); err != nil {
			e.closeConn()
			return err
		}
		e.batchMode = BatchActivated
	}

	if err := e.negotiateStreams(); err != nil {
		e.closeConn()
		return err
	}
	if err := e.sendCommand(protocol.EndCmd(), false); err != nil {
		e.closeConn()
		return err
	}

	if err := e.conn.SetDeadline(time.Time{}); err != nil {
		e.closeConn()
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	e.state = StateData
	e.netTimer.Arm()
	if e.keepaliveTimer != nil {
		e.keepaliveTimer.Arm()
	}
	e.log.Info("negotiation complete, streaming")
	return nil
}

func (e *Engine) sendHello() error {
	if _, err := e.conn.Write(protocol.HelloCmd()); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	banner, err := e.readLine()
	if err != nil {
		return fmt.Errorf("%w: reading HELLO banner: %v", ErrNegotiationFailed, err)
	}
	if _, err := e.readLine(); err != nil {
		return fmt.Errorf("%w: reading HELLO organization line: %v", ErrNegotiationFailed, err)
	}
	e.serverVer = parseServerVersion(banner)
	e.log.WithField("server_version", e.serverVer.String()).Debug("received HELLO")
	return nil
}

func (e *Engine) readLine() (string, error) {
	line, err := e.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (e *Engine) sendCommandExpectOK(cmd []byte) error {
	return e.sendCommand(cmd, true)
}

func (e *Engine) sendCommand(cmd []byte, expectAck bool) error {
	if _, err := e.conn.Write(cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	if !expectAck {
		return nil
	}
	line, err := e.readLine()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	if line != "OK" {
		return fmt.Errorf("%w: server replied %q", ErrNegotiationFailed, line)
	}
	return nil
}

// negotiateStreams walks the registry, issuing STATION/SELECT/DATA-
// FETCH for every configured stream (or just SELECT/DATA-FETCH in
// uni-station mode). Once batch mode is activated the server no
// longer acknowledges these commands individually.
func (e *Engine) negotiateStreams() error {
	ackExpected := e.batchMode != BatchActivated

	if e.reg.IsUniStation() {
		entries := e.reg.Iter()
		if len(entries) == 0 {
			return nil
		}
		return e.negotiateEntry(entries[0], ackExpected, false)
	}

	entries := e.reg.Iter()
	if len(entries) > 0 && !e.serverVer.SupportsMultiStation() {
		return fmt.Errorf("%w: server version %s does not support multi-station mode", ErrNegotiationFailed, e.serverVer.String())
	}
	for _, entry := range entries {
		if err := e.negotiateEntry(entry, ackExpected, true); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) negotiateEntry(entry *registry.Entry, ackExpected bool, sendStation bool) error {
	if sendStation {
		if err := e.sendCommand(protocol.StationCmd(entry.Sta, entry.Net), ackExpected); err != nil {
			return err
		}
	}
	for _, sel := range entry.Selectors {
		if err := e.sendCommand(protocol.SelectCmd(sel), ackExpected); err != nil {
			return err
		}
	}
	if e.cfg.BeginTime != "" || e.cfg.EndTime != "" {
		return e.sendCommand(protocol.TimeCmd(e.cfg.BeginTime, e.cfg.EndTime), ackExpected)
	}

	cmd := protocol.DataCmd(entry.Seqnum, entry.Timestamp)
	if e.cfg.Dialup {
		cmd = protocol.FetchCmd(entry.Seqnum, entry.Timestamp)
	}
	return e.sendCommand(cmd, ackExpected)
}
