package models

// Hub command names.
const (
	CommandSetAPISchema    = "set_api_schema"
	CommandStartListening  = "start_listening"
	CommandStartLivestream = "device.start_livestream"
	CommandStopLivestream  = "device.stop_livestream"
)

// Command is an outbound request to the hub. MessageID correlates the result
// frame; the sender fills it in when left empty.
type Command struct {
	MessageID     string `json:"messageId"`
	Command       string `json:"command"`
	SchemaVersion int    `json:"schemaVersion,omitempty"`
	SerialNumber  string `json:"serialNumber,omitempty"`
}

// SetAPISchema declares the protocol version spoken by the bridge.
func SetAPISchema(version int) Command {
	return Command{Command: CommandSetAPISchema, SchemaVersion: version}
}

// StartListening subscribes to the hub event stream.
func StartListening() Command {
	return Command{Command: CommandStartListening}
}

// StartLivestream asks a device to begin streaming.
func StartLivestream(serial string) Command {
	return Command{Command: CommandStartLivestream, SerialNumber: serial}
}

// StopLivestream asks a device to end its stream.
func StopLivestream(serial string) Command {
	return Command{Command: CommandStopLivestream, SerialNumber: serial}
}
