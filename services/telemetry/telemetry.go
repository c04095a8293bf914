// Package telemetry uploads readings to an MQTT broker while the node is
// awake. Telemetry is best effort: a failed publish is logged and dropped,
// and the whole feature sits behind a config flag. It observes readings via
// the retained status bus, never the sample channel, so a slow broker can
// not stall the sensor-to-display path.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"

	"envnode-go/bus"
	"envnode-go/errcode"
	"envnode-go/types"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "envnode/reading"

// Publisher is the broker transport. Implementations connect lazily on the
// first publish so a restored-clock cycle without network still works.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// wireReading is the upload schema: the sample fields plus a Unix timestamp.
type wireReading struct {
	At int64 `json:"at"`
	types.Sample
}

// Encode renders a reading into the upload payload.
func Encode(r types.Reading) ([]byte, error) {
	return json.Marshal(wireReading{At: r.At.Unix(), Sample: r.Sample})
}

// Uplink forwards each reading published on the status bus to the broker.
// It satisfies the orchestrator's uplink contract: Run blocks until ctx is
// cancelled, Close releases the transport before deep sleep.
type Uplink struct {
	Pub    Publisher
	Status *bus.Bus
	Topic  string
	Log    *slog.Logger
}

func (u *Uplink) Run(ctx context.Context) {
	topic := u.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	sub := u.Status.Subscribe(bus.TopicReading)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			r, ok := msg.Payload.(types.Reading)
			if !ok {
				continue
			}
			payload, err := Encode(r)
			if err != nil {
				u.Log.Error("telemetry encode failed", slog.Any("err", err))
				continue
			}
			if err := u.Pub.Publish(topic, payload); err != nil {
				u.Log.Error("telemetry publish failed",
					slog.String("code", string(errcode.Of(err))),
					slog.Any("err", err))
				continue
			}
			u.Log.Info("telemetry published", slog.Int("bytes", len(payload)))
		}
	}
}

func (u *Uplink) Close() error {
	return u.Pub.Close()
}
