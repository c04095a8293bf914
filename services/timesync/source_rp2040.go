//go:build rp2040

package timesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/soypat/lneto/tcp"

	"envnode-go/errcode"
	"envnode-go/services/netlink"
)

// Defaults for the plain-text time service. The .txt endpoint responds with
// the "key: value" document ParseWorldTime expects.
const (
	DefaultHost = "worldtimeapi.org"
	DefaultPath = "/api/ip.txt"

	httpPort        = 80
	responseLimit   = 4096
	defaultTimeout  = 10 * time.Second
	closeGraceSlice = 100 * time.Millisecond
)

// HTTPSource fetches the current time over an already-open link. The caller
// owns the session lifecycle; one Synchronize call performs one request on
// one short-lived connection.
type HTTPSource struct {
	Link    *netlink.Session
	Host    string
	Path    string
	Timeout time.Duration
	Log     *slog.Logger
}

func (s *HTTPSource) Synchronize(ctx context.Context) (Result, error) {
	host, path := s.Host, s.Path
	if host == "" {
		host = DefaultHost
	}
	if path == "" {
		path = DefaultPath
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, 2048),
		TxBuf:             make([]byte, 1024),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return Result{}, errcode.Wrap(errcode.SyncRequest, "tcp configure", err)
	}

	if err := s.Link.DialTCP(&conn, host, httpPort, timeout); err != nil {
		return Result{}, err
	}
	defer closeConn(&conn)

	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(BuildRequest(host, path)); err != nil {
		return Result{}, errcode.Wrap(errcode.SyncRequest, "send request", err)
	}

	// The request carries Connection: close, so read to EOF or the limit.
	resp := make([]byte, 0, responseLimit)
	var chunk [512]byte
	for len(resp) < responseLimit {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		n, err := conn.Read(chunk[:])
		resp = append(resp, chunk[:n]...)
		if err != nil {
			break
		}
	}

	body := ExtractBody(resp)
	if body == nil {
		return Result{}, &errcode.E{C: errcode.SyncParse, Msg: "incomplete response headers"}
	}
	res, err := ParseWorldTime(body)
	if err != nil {
		return Result{}, err
	}
	s.Log.Info("time fetched",
		slog.Uint64("epoch", res.Epoch),
		slog.Int("offset_sec", int(res.OffsetSec)))
	return res, nil
}

// closeConn drives the connection to closed, aborting if the peer stalls.
func closeConn(conn *tcp.Conn) {
	conn.Close()
	for i := 0; i < 20 && !conn.State().IsClosed(); i++ {
		time.Sleep(closeGraceSlice)
	}
	conn.Abort()
}
