// Package notify publishes camera status-change events to MQTT
// (SPEC_FULL §4.6.1). It repurposes the teacher's internal/mqtt
// one-shot connect/publish/disconnect pattern: each notification opens
// its own client rather than holding a long-lived connection, since
// status changes are infrequent and a broker outage should never block
// a camera's own start/stop sequence.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

const publishTimeout = 5 * time.Second

// Event is the JSON payload published on a camera status change.
type Event struct {
	ID        string       `json:"id"`
	CameraID  int          `json:"cameraId"`
	Name      string       `json:"name"`
	Status    model.Status `json:"status"`
	LastError string       `json:"lastError,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Notifier publishes status-change events for cameras that opt in via
// model.Notify.
type Notifier struct {
	log zerolog.Logger
}

// New builds a Notifier.
func New(log zerolog.Logger) *Notifier {
	return &Notifier{log: log.With().Str("component", "notify").Logger()}
}

// Publish sends a status-change event for cam if cam.Notify.Enabled. A
// publish failure is logged, never returned: a flaky broker must not
// block the Supervisor's start/stop sequence (SPEC_FULL §4.6.1).
func (n *Notifier) Publish(cam *model.Camera, at time.Time) {
	if !cam.Notify.Enabled {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		CameraID:  cam.ID,
		Name:      cam.Name,
		Status:    cam.Status,
		LastError: cam.LastError,
		Timestamp: at,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Error().Err(err).Int("camera_id", cam.ID).Msg("marshal notify event")
		return
	}

	if err := publish(cam.Notify.Broker, cam.Notify.Topic, payload); err != nil {
		n.log.Warn().Err(err).Int("camera_id", cam.ID).Str("broker", cam.Notify.Broker).Msg("publish status notification failed")
	}
}

func publish(broker, topic string, payload []byte) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("onvif-gateway-%s", uuid.NewString()))
	opts.SetConnectTimeout(publishTimeout)
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	defer client.Disconnect(100)

	token := client.Publish(topic, 0, true, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("publish MQTT message: %w", token.Error())
	}
	return nil
}
