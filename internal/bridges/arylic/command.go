package arylic

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a command variant. Expectations and MQTT topic suffixes
// are keyed on it.
type Kind int

// Command kinds. Outbound-only kinds come first, then inbound kinds.
const (
	KindUnknown Kind = iota
	KindVolume
	KindDeviceInfoRequest
	KindPlay
	KindPause
	KindPlayPause
	KindPlaybackMetadataRequest
	KindPlaybackStatusRequest
	KindPlayStatusRequest
	KindMute
	KindData
	KindDeviceInfo
	KindPlayInfo
	KindPlayStatus
	KindReady
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindVolume:                  "volume",
	KindDeviceInfoRequest:       "device-info-request",
	KindPlay:                    "play",
	KindPause:                   "pause",
	KindPlayPause:               "playpause",
	KindPlaybackMetadataRequest: "metadata-request",
	KindPlaybackStatusRequest:   "status-request",
	KindPlayStatusRequest:       "play-status-request",
	KindMute:                    "mute",
	KindData:                    "data",
	KindDeviceInfo:              "deviceinfo",
	KindPlayInfo:                "playinfo",
	KindPlayStatus:              "playstatus",
	KindReady:                   "ready",
}

// String returns the lowercase kind name used in topics and logs.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// SentCommand is a command the gateway can transmit to a speaker.
type SentCommand interface {
	Kind() Kind
	// Payload returns the exact wire payload, without the frame header.
	Payload() []byte
}

// ReceiveCommand is a decoded message received from a speaker.
type ReceiveCommand interface {
	Kind() Kind
	received()
}

// ─── Outbound commands ──────────────────────────────────────────────

// Mute sets or clears mute. Speakers echo it back, so it is also a
// ReceiveCommand.
type Mute struct {
	Enabled bool `json:"enabled"`
}

func (Mute) Kind() Kind { return KindMute }
func (Mute) received()  {}

func (m Mute) Payload() []byte {
	if m.Enabled {
		return []byte("MCU+MUT+001\n")
	}
	return []byte("MCU+MUT+000\n")
}

// Volume sets the output level. NewVolume rejects levels outside 0..100;
// a Volume built directly is clamped to that range on the wire.
type Volume struct {
	Level int `json:"level"`
}

// NewVolume validates level and returns a Volume command.
func NewVolume(level int) (Volume, error) {
	if level < 0 || level > 100 {
		return Volume{}, fmt.Errorf("%w: got %d", ErrInvalidVolume, level)
	}
	return Volume{Level: level}, nil
}

func (Volume) Kind() Kind { return KindVolume }

func (v Volume) Payload() []byte {
	return []byte(fmt.Sprintf("MCU+VOL+%03d\n", min(max(v.Level, 0), 100)))
}

// DeviceInfoRequest asks the speaker to describe itself. The reply is a
// DeviceInfo.
type DeviceInfoRequest struct{}

func (DeviceInfoRequest) Kind() Kind      { return KindDeviceInfoRequest }
func (DeviceInfoRequest) Payload() []byte { return []byte("MCU+DEV+GET\n") }

// Play resumes playback.
type Play struct{}

func (Play) Kind() Kind      { return KindPlay }
func (Play) Payload() []byte { return []byte("MCU+PLY-PLA\n") }

// Pause pauses playback.
type Pause struct{}

func (Pause) Kind() Kind      { return KindPause }
func (Pause) Payload() []byte { return []byte("MCU+PLY-PUS\n") }

// PlayPause toggles playback.
type PlayPause struct{}

func (PlayPause) Kind() Kind      { return KindPlayPause }
func (PlayPause) Payload() []byte { return []byte("MCU+PLY+PUS\n") }

// PlaybackMetadataRequest asks for the current track metadata (Data reply).
type PlaybackMetadataRequest struct{}

func (PlaybackMetadataRequest) Kind() Kind      { return KindPlaybackMetadataRequest }
func (PlaybackMetadataRequest) Payload() []byte { return []byte("MCU+MEA+GET\n") }

// PlaybackStatusRequest asks for a PlayInfo report. The device expects this
// payload without a trailing line feed.
type PlaybackStatusRequest struct{}

func (PlaybackStatusRequest) Kind() Kind      { return KindPlaybackStatusRequest }
func (PlaybackStatusRequest) Payload() []byte { return []byte("MCU+PINFGET") }

// PlayStatusRequest asks whether the speaker is playing. It doubles as the
// keep-alive ping.
type PlayStatusRequest struct{}

func (PlayStatusRequest) Kind() Kind      { return KindPlayStatusRequest }
func (PlayStatusRequest) Payload() []byte { return []byte("MCU+PLY+GET\n") }

// ─── Inbound commands ───────────────────────────────────────────────

// Data carries track metadata. On the wire every string is hex encoded.
type Data struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Vendor    string `json:"vendor"`
	SkipLimit int    `json:"skiplimit"`
}

func (Data) Kind() Kind { return KindData }
func (Data) received()  {}

// DeviceInfo is the speaker's self-description, the handshake reply.
type DeviceInfo struct {
	APSSID         string `json:"ap_ssid"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	RouterSSID     string `json:"router_ssid"`
	SignalStrength int    `json:"signal_strength"`
	BatteryState   int    `json:"battery_state"`
	BatteryValue   int    `json:"battery_value"`
}

func (DeviceInfo) Kind() Kind { return KindDeviceInfo }
func (DeviceInfo) received()  {}

// Payload renders the form a speaker sends. It lets test devices and the
// encode command produce handshake replies.
func (d DeviceInfo) Payload() []byte {
	fields := []string{
		d.APSSID,
		d.Type,
		d.Name,
		d.RouterSSID,
		strconv.Itoa(d.SignalStrength),
		strconv.Itoa(d.BatteryState),
		strconv.Itoa(d.BatteryValue),
	}
	return []byte("AXX+DEV+INF" + strings.Join(fields, ";") + "&\n")
}

// PlayInfo is the playback status report. The device reports every field
// as text; values are kept verbatim.
type PlayInfo struct {
	Type      string `json:"type"`
	Channel   string `json:"ch"`
	Mode      string `json:"mode"`
	Loop      string `json:"loop"`
	EQ        string `json:"eq"`
	Status    string `json:"status"`
	CurPos    string `json:"curpos"`
	OffsetPTS string `json:"offset_pts"`
	TotalLen  string `json:"totlen"`
	Title     string `json:"Title"`
	Artist    string `json:"Artist"`
	Album     string `json:"Album"`
	AlarmFlag string `json:"alarmflag"`
	PliCount  string `json:"plicount"`
	PliCurr   string `json:"plicurr"`
	Volume    string `json:"vol"`
	Mute      string `json:"mute"`
}

func (PlayInfo) Kind() Kind { return KindPlayInfo }
func (PlayInfo) received()  {}

// PlayStatus reports whether the speaker is playing.
type PlayStatus struct {
	Playing bool `json:"playing"`
}

func (PlayStatus) Kind() Kind { return KindPlayStatus }
func (PlayStatus) received()  {}

// Ready signals the metadata channel is ready.
type Ready struct{}

func (Ready) Kind() Kind { return KindReady }
func (Ready) received()  {}

// ParseCommand maps a command name (as used on MQTT and the HTTP API) and an
// optional argument to a SentCommand.
//
// Recognised names: play, pause, playpause, volume, mute, unmute,
// volume_on_off, device-info, metadata, status, play-status.
//
// playpause honours the argument: PLAY/ON plays, PAUSE/OFF pauses, anything
// else toggles. volume_on_off unmutes on true/ON and mutes otherwise.
func ParseCommand(name, arg string) (SentCommand, error) {
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "play":
		return Play{}, nil
	case "pause":
		return Pause{}, nil
	case "playpause":
		switch strings.ToUpper(arg) {
		case "PLAY", "ON":
			return Play{}, nil
		case "PAUSE", "OFF":
			return Pause{}, nil
		default:
			return PlayPause{}, nil
		}
	case "volume":
		level, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidVolume, arg)
		}
		return NewVolume(level)
	case "mute":
		return Mute{Enabled: true}, nil
	case "unmute":
		return Mute{Enabled: false}, nil
	case "volume_on_off":
		switch strings.ToUpper(arg) {
		case "TRUE", "ON":
			return Mute{Enabled: false}, nil
		default:
			return Mute{Enabled: true}, nil
		}
	case "device-info":
		return DeviceInfoRequest{}, nil
	case "metadata":
		return PlaybackMetadataRequest{}, nil
	case "status":
		return PlaybackStatusRequest{}, nil
	case "play-status":
		return PlayStatusRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}
