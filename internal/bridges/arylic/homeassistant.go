package arylic

import "strings"

// Home Assistant has no MQTT media-player platform, so a speaker is
// announced as a play/pause switch plus a light whose brightness is the
// volume.

// HADiscovery is a Home Assistant device-based discovery payload.
type HADiscovery struct {
	Device     HADevice               `json:"dev"`
	Origin     HAOrigin               `json:"o"`
	StateTopic string                 `json:"state_topic"`
	Components map[string]HAComponent `json:"cmps"`
}

// HADevice describes the physical device.
type HADevice struct {
	Identifiers  []string `json:"ids"`
	Manufacturer string   `json:"mf"`
	Model        string   `json:"mdl"`
	Name         string   `json:"name"`
}

// HAOrigin names the software publishing the announcement.
type HAOrigin struct {
	Name            string `json:"name"`
	SoftwareVersion string `json:"sw,omitempty"`
}

// HAComponent is one entity of the device. Fields not used by a platform
// are omitted.
type HAComponent struct {
	Platform     string `json:"p"`
	Name         string `json:"name"`
	UniqueID     string `json:"unique_id"`
	Icon         string `json:"icon,omitempty"`
	CommandTopic string `json:"command_topic"`
	StateTopic   string `json:"state_topic"`
	PayloadOn    string `json:"payload_on,omitempty"`
	PayloadOff   string `json:"payload_off,omitempty"`

	BrightnessScale        int    `json:"brightness_scale,omitempty"`
	BrightnessStateTopic   string `json:"brightness_state_topic,omitempty"`
	BrightnessCommandTopic string `json:"brightness_command_topic,omitempty"`
	OnCommandType          string `json:"on_command_type,omitempty"`
}

// NewHADiscovery builds the announcement for a discovered speaker.
func NewHADiscovery(topics Topics, device DiscoveredDevice, version string) HADiscovery {
	name := strings.ToLower(device.Name)
	model := device.Model()
	uid := "arylic_" + model

	playPause := HAComponent{
		Platform:     "switch",
		Name:         "Play/Pause",
		UniqueID:     uid + "_PlayPause",
		Icon:         "mdi:play-pause",
		CommandTopic: topics.Command(name, "playpause"),
		StateTopic:   topics.Playing(name),
		PayloadOn:    "true",
		PayloadOff:   "false",
	}

	volume := HAComponent{
		Platform:               "light",
		Name:                   "Volume",
		UniqueID:               uid + "_Volume",
		Icon:                   "mdi:volume-high",
		CommandTopic:           topics.Command(name, "volume_on_off"),
		StateTopic:             topics.Playing(name),
		PayloadOn:              "true",
		PayloadOff:             "false",
		BrightnessScale:        100,
		BrightnessStateTopic:   topics.State(name, "volume"),
		BrightnessCommandTopic: topics.Command(name, "volume"),
		OnCommandType:          "brightness",
	}

	host := device.HostName
	if host == "" {
		host = device.Identity.Host
	}

	return HADiscovery{
		Device: HADevice{
			Identifiers:  []string{host},
			Manufacturer: "arylic",
			Model:        model,
			Name:         "MusicPlayer " + device.Name,
		},
		Origin:     HAOrigin{Name: discoveryNode, SoftwareVersion: version},
		StateTopic: "not/used",
		Components: map[string]HAComponent{
			volume.UniqueID:    volume,
			playPause.UniqueID: playPause,
		},
	}
}
