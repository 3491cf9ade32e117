package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/mqtt"
	"github.com/nerrad567/lcdcanvas/internal/render"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

// commandTimeout bounds one remote command, brightness retries included.
const commandTimeout = 10 * time.Second

// ErrUnknownCommand is returned for command topics the service does not
// handle.
var ErrUnknownCommand = errors.New("monitor: unknown command")

// CommandHandler returns an MQTT handler for lcdcanvas/command/+.
//
// Payloads are plain text or JSON scalars:
//
//	display     on | off | true | false
//	brightness  0..100
//	rotation    0 | 90 | 180 | 270
//	screen      screen identity ("" clears the selection)
func (s *Service) CommandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		name, ok := mqtt.Topics{}.CommandName(topic)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, topic)
		}
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		arg := scalar(payload)
		s.logger.Debug("remote command", "command", name, "arg", arg)

		switch name {
		case mqtt.CommandDisplay:
			on, err := parseSwitch(arg)
			if err != nil {
				return err
			}
			return s.ToggleDisplay(ctx, on)
		case mqtt.CommandBrightness:
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("brightness %q: %w", arg, err)
			}
			return s.SetBrightness(ctx, n)
		case mqtt.CommandRotation:
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("rotation %q: %w", arg, err)
			}
			return s.SetRotation(ctx, n)
		case mqtt.CommandScreen:
			_, err := s.SelectScreen(ctx, screen.Identity(arg))
			return err
		default:
			return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		}
	}
}

// scalar unwraps a JSON string and trims whitespace; anything else is
// returned as text.
func scalar(payload []byte) string {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '"' {
		var s string
		if err := json.Unmarshal(payload, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(payload)
}

func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(arg)
	if err != nil {
		return false, fmt.Errorf("display %q: want on or off", arg)
	}
	return on, nil
}

// FrameSink is satisfied by *render.Slot.
type FrameSink interface {
	Put(img image.Image)
}

// FrameHandler returns an MQTT handler that decodes PNG, JPEG or GIF
// payloads into sink.
func FrameHandler(sink FrameSink) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		img, err := render.Decode(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		sink.Put(img)
		return nil
	}
}
