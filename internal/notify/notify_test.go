package notify

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BigTonyTones/onvif-gateway/internal/model"
)

func TestPublishSkipsDisabledCamera(t *testing.T) {
	n := New(zerolog.Nop())
	cam := &model.Camera{ID: 1, Name: "front-door", Status: model.StatusRunning}
	// Notify.Enabled defaults false; Publish must not attempt to dial
	// anything, and since there's nothing to assert on besides "did not
	// panic or block", a generous timeout bounds the call.
	done := make(chan struct{})
	go func() {
		n.Publish(cam, time.Now())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked despite Notify being disabled")
	}
}
