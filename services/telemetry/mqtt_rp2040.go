//go:build rp2040

package telemetry

import (
	"io"
	"time"

	"log/slog"

	"github.com/soypat/lneto/tcp"
	mqtt "github.com/soypat/natiu-mqtt"

	"envnode-go/errcode"
	"envnode-go/services/netlink"
)

const (
	mqttConnectPolls = 50
	mqttPollInterval = 100 * time.Millisecond
	// MTU minus ethernet, IP and TCP headers.
	tcpBufSize = 2030
)

// MQTTPublisher is a QoS0 publisher over the open WiFi link. It connects on
// the first publish and holds one connection for the rest of the awake
// window. No reconnect loop: a broken session drops the remaining readings
// of this cycle and the next cycle starts fresh.
type MQTTPublisher struct {
	// Link yields the open session, connecting the radio if needed.
	Link func() (*netlink.Session, error)
	// Addr is the broker "host:port"; host may need DNS resolution.
	Host string
	Port uint16
	// ClientID presented to the broker.
	ClientID string
	Timeout  time.Duration
	Log      *slog.Logger

	sess   *netlink.Session
	conn   tcp.Conn
	client *mqtt.Client
	broken bool
}

func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	if p.broken {
		return errcode.Timeout
	}
	if p.client == nil {
		if err := p.connect(); err != nil {
			p.broken = true
			return err
		}
	}

	flags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	vars := mqtt.VariablesPublish{
		TopicName:        []byte(topic),
		PacketIdentifier: uint16(p.sess.Prand32()),
	}
	p.conn.SetDeadline(time.Now().Add(p.timeout()))
	if err := p.client.PublishPayload(flags, vars, payload); err != nil {
		p.broken = true
		return errcode.Wrap(errcode.Error, "mqtt publish", err)
	}
	if err := p.client.HandleNext(); err != nil {
		p.Log.Error("mqtt handle", slog.Any("err", err))
	}
	return nil
}

func (p *MQTTPublisher) connect() error {
	sess, err := p.Link()
	if err != nil {
		return err
	}
	p.sess = sess

	err = p.conn.Configure(tcp.ConnConfig{
		RxBuf:             make([]byte, tcpBufSize),
		TxBuf:             make([]byte, tcpBufSize),
		TxPacketQueueSize: 3,
	})
	if err != nil {
		return errcode.Wrap(errcode.Error, "tcp configure", err)
	}
	if err := sess.DialTCP(&p.conn, p.Host, p.Port, p.timeout()); err != nil {
		return err
	}

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 1024)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, _ io.Reader) error {
			return nil
		},
	}
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(p.ClientID))

	client := mqtt.NewClient(cfg)
	p.conn.SetDeadline(time.Now().Add(p.timeout()))
	if err := client.StartConnect(&p.conn, &varconn); err != nil {
		return errcode.Wrap(errcode.Error, "mqtt connect", err)
	}
	for i := 0; i < mqttConnectPolls && !client.IsConnected(); i++ {
		time.Sleep(mqttPollInterval)
		if err := client.HandleNext(); err != nil {
			p.Log.Error("mqtt handle", slog.Any("err", err))
		}
	}
	if !client.IsConnected() {
		return &errcode.E{C: errcode.Timeout, Op: "mqtt connect", Err: client.Err()}
	}

	p.client = client
	p.Log.Info("mqtt connected", slog.String("broker", p.Host))
	return nil
}

func (p *MQTTPublisher) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 5 * time.Second
	}
	return p.Timeout
}

// Close tears down the broker connection and releases the radio session.
func (p *MQTTPublisher) Close() error {
	if p.client != nil {
		p.conn.Close()
		for i := 0; i < 20 && !p.conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		p.conn.Abort()
		p.client = nil
	}
	if p.sess != nil {
		p.sess.Close()
		p.sess = nil
	}
	return nil
}
