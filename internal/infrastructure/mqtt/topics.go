package mqtt

// TopicPrefix roots every lcdcanvas topic.
const TopicPrefix = "lcdcanvas"

// Command names accepted under lcdcanvas/command/.
const (
	CommandDisplay    = "display"
	CommandBrightness = "brightness"
	CommandRotation   = "rotation"
	CommandScreen     = "screen"
)

// Topics builds lcdcanvas topic names.
type Topics struct{}

// SystemStatus carries the retained online/offline document and the LWT.
func (Topics) SystemStatus() string { return TopicPrefix + "/system/status" }

// DisplayState carries the retained display state.
func (Topics) DisplayState() string { return TopicPrefix + "/display/state" }

// DisplayEvent carries non-retained loop events.
func (Topics) DisplayEvent() string { return TopicPrefix + "/display/event" }

// Command returns the topic of one command, e.g. lcdcanvas/command/brightness.
func (Topics) Command(name string) string { return TopicPrefix + "/command/" + name }

// AllCommands matches every command topic.
func (Topics) AllCommands() string { return TopicPrefix + "/command/+" }

// Frame receives encoded images from a renderer.
func (Topics) Frame() string { return TopicPrefix + "/frame" }

// CommandName extracts the command from a command topic. It returns false
// for any other topic.
func (t Topics) CommandName(topic string) (string, bool) {
	prefix := t.Command("")
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	name := topic[len(prefix):]
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return "", false
		}
	}
	return name, true
}
