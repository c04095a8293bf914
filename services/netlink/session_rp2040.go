//go:build rp2040

package netlink

import (
	"io"
	"net"
	"net/netip"
	"runtime"
	"sync"
	"time"

	"log/slog"

	"github.com/soypat/cyw43439"
	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"

	"envnode-go/errcode"
)

const (
	mtu          = cyw43439.MTU
	joinAttempts = 3
	joinBackoff  = 2 * time.Second
	pollInterval = 5 * time.Millisecond
	dhcpTimeout  = 3 * time.Second
	dnsTimeout   = 5 * time.Second
)

// Session is an open WiFi link with a running lneto stack. It owns the
// CYW43439 device and the background poll goroutine; Close stops both.
// The radio itself loses power in deep sleep, so no explicit BSS leave is
// issued on shutdown.
type Session struct {
	dev     *cyw43439.Device
	stack   xnet.StackAsync
	cfg     Config
	sendbuf [mtu]byte
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Open initializes the radio, joins the network and completes DHCP. Unlike
// a long-lived appliance the node gives up after a few join attempts; the
// caller degrades instead of retrying forever.
func Open(cfg Config) (*Session, error) {
	if cfg.MaxTCPConns < 1 {
		cfg.MaxTCPConns = 1
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg.publish(StateJoining)

	start := time.Now()
	dev := cyw43439.NewPicoWDevice()
	dev.SetLogger(cfg.Log)
	if err := dev.Init(cyw43439.DefaultWifiConfig()); err != nil {
		cfg.publish(StateDown)
		return nil, errcode.Wrap(errcode.SyncJoin, "radio init", err)
	}
	cfg.Log.Info("radio initialized", slog.Duration("took", time.Since(start)))

	var joinErr error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		joinErr = dev.JoinWPA2(cfg.Creds.SSID, cfg.Creds.Pass)
		if joinErr == nil {
			break
		}
		cfg.Log.Error("wifi join failed",
			slog.Int("attempt", attempt),
			slog.Any("err", joinErr))
		time.Sleep(joinBackoff)
	}
	if joinErr != nil {
		cfg.publish(StateDown)
		return nil, errcode.Wrap(errcode.SyncJoin, "join "+cfg.Creds.SSID, joinErr)
	}

	mac, err := dev.HardwareAddr6()
	if err != nil {
		cfg.publish(StateDown)
		return nil, errcode.Wrap(errcode.SyncJoin, "hardware address", err)
	}
	cfg.Log.Info("wifi joined",
		slog.String("ssid", cfg.Creds.SSID),
		slog.String("mac", net.HardwareAddr(mac[:]).String()))

	s := &Session{
		dev:  dev,
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	err = s.stack.Reset(xnet.StackConfig{
		Hostname:        cfg.Hostname,
		MaxTCPConns:     cfg.MaxTCPConns,
		RandSeed:        time.Since(start).Nanoseconds(),
		HardwareAddress: mac,
		MTU:             mtu,
	})
	if err != nil {
		cfg.publish(StateDown)
		return nil, errcode.Wrap(errcode.SyncJoin, "stack reset", err)
	}
	dev.RecvEthHandle(func(pkt []byte) error {
		return s.stack.Demux(pkt, 0)
	})
	go s.pollLoop()

	if err := s.setupDHCP(); err != nil {
		s.Close()
		return nil, err
	}
	cfg.publish(StateUp)
	return s, nil
}

func (s *Session) setupDHCP() error {
	rstack := s.stack.StackRetrying(50 * time.Millisecond)

	results, err := rstack.DoDHCPv4([4]byte{}, dhcpTimeout, 3)
	if err != nil {
		return errcode.Wrap(errcode.SyncJoin, "dhcp", err)
	}
	if err := s.stack.AssimilateDHCPResults(results); err != nil {
		return errcode.Wrap(errcode.SyncJoin, "apply dhcp", err)
	}
	gatewayHW, err := rstack.DoResolveHardwareAddress6(results.Router, 500*time.Millisecond, 4)
	if err != nil {
		return errcode.Wrap(errcode.SyncJoin, "resolve gateway", err)
	}
	s.stack.SetGateway6(gatewayHW)

	s.cfg.Log.Info("dhcp complete",
		slog.String("addr", results.AssignedAddr.String()),
		slog.String("router", results.Router.String()))
	return nil
}

// pollLoop shuttles packets between the radio and the stack until Close.
func (s *Session) pollLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if _, err := s.dev.PollOne(); err != nil {
			s.cfg.Log.Error("radio poll", slog.Any("err", err))
		}
		n, err := s.stack.Encapsulate(s.sendbuf[:], -1, 0)
		if err != nil {
			s.cfg.Log.Error("stack encapsulate", slog.Any("err", err))
		}
		if n > 0 {
			if err := s.dev.SendEth(s.sendbuf[:n]); err != nil {
				s.cfg.Log.Error("radio send", slog.Any("err", err))
			}
			// Drain back-to-back packets before yielding.
			continue
		}

		// Single core under TinyGo; yield so workers make progress.
		runtime.Gosched()
		time.Sleep(pollInterval)
	}
}

// DialTCP resolves host (DNS unless an IP literal) and completes the TCP
// handshake on conn.
func (s *Session) DialTCP(conn *tcp.Conn, host string, port uint16, timeout time.Duration) error {
	rstack := s.stack.StackRetrying(pollInterval)

	addr, err := netip.ParseAddr(host)
	if err != nil {
		addrs, err := rstack.DoLookupIP(host, dnsTimeout, 3)
		if err != nil {
			return errcode.Wrap(errcode.SyncRequest, "dns "+host, err)
		}
		if len(addrs) == 0 {
			return &errcode.E{C: errcode.SyncRequest, Op: "dns " + host, Msg: "no addresses"}
		}
		addr = addrs[0]
	}

	localPort := uint16(s.stack.Prand32()>>17) + 1024
	err = rstack.DoDialTCP(conn, localPort, netip.AddrPortFrom(addr, port), timeout, 3)
	if err != nil {
		return errcode.Wrap(errcode.SyncRequest, "dial "+host, err)
	}
	return nil
}

// Prand32 exposes the stack PRNG (packet identifiers, local ports).
func (s *Session) Prand32() uint32 { return s.stack.Prand32() }

// Close stops the poll loop and marks the link down. Idempotent: the sync
// path and the telemetry teardown may both reach it in one cycle.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		s.cfg.publish(StateDown)
		s.cfg.Log.Info("wifi link closed")
	})
}
