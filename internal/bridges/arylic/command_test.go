package arylic

import (
	"errors"
	"testing"
)

func TestCommandPayloads(t *testing.T) {
	tests := []struct {
		cmd  SentCommand
		want string
	}{
		{Mute{Enabled: true}, "MCU+MUT+001\n"},
		{Mute{Enabled: false}, "MCU+MUT+000\n"},
		{Volume{Level: 0}, "MCU+VOL+000\n"},
		{Volume{Level: 7}, "MCU+VOL+007\n"},
		{Volume{Level: 100}, "MCU+VOL+100\n"},
		{Volume{Level: 150}, "MCU+VOL+100\n"},
		{Volume{Level: -1}, "MCU+VOL+000\n"},
		{DeviceInfoRequest{}, "MCU+DEV+GET\n"},
		{Play{}, "MCU+PLY-PLA\n"},
		{Pause{}, "MCU+PLY-PUS\n"},
		{PlayPause{}, "MCU+PLY+PUS\n"},
		{PlaybackMetadataRequest{}, "MCU+MEA+GET\n"},
		{PlaybackStatusRequest{}, "MCU+PINFGET"},
		{PlayStatusRequest{}, "MCU+PLY+GET\n"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Kind().String(), func(t *testing.T) {
			if got := string(tt.cmd.Payload()); got != tt.want {
				t.Errorf("Payload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewVolume(t *testing.T) {
	for _, level := range []int{0, 50, 100} {
		if _, err := NewVolume(level); err != nil {
			t.Errorf("NewVolume(%d) error = %v", level, err)
		}
	}
	for _, level := range []int{-1, 101, 1000} {
		if _, err := NewVolume(level); !errors.Is(err, ErrInvalidVolume) {
			t.Errorf("NewVolume(%d) error = %v, want ErrInvalidVolume", level, err)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    SentCommand
		wantErr error
	}{
		{"play", "", Play{}, nil},
		{"PAUSE", "", Pause{}, nil},
		{"playpause", "PLAY", Play{}, nil},
		{"playpause", "on", Play{}, nil},
		{"playpause", "PAUSE", Pause{}, nil},
		{"playpause", "OFF", Pause{}, nil},
		{"playpause", "", PlayPause{}, nil},
		{"playpause", "whatever", PlayPause{}, nil},
		{"volume", "42", Volume{Level: 42}, nil},
		{"volume", " 100 ", Volume{Level: 100}, nil},
		{"volume", "101", nil, ErrInvalidVolume},
		{"volume", "loud", nil, ErrInvalidVolume},
		{"mute", "", Mute{Enabled: true}, nil},
		{"unmute", "", Mute{Enabled: false}, nil},
		{"volume_on_off", "true", Mute{Enabled: false}, nil},
		{"volume_on_off", "false", Mute{Enabled: true}, nil},
		{"device-info", "", DeviceInfoRequest{}, nil},
		{"metadata", "", PlaybackMetadataRequest{}, nil},
		{"status", "", PlaybackStatusRequest{}, nil},
		{"play-status", "", PlayStatusRequest{}, nil},
		{"reboot", "", nil, ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.arg, func(t *testing.T) {
			got, err := ParseCommand(tt.name, tt.arg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseCommand() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindMute:       "mute",
		KindData:       "data",
		KindDeviceInfo: "deviceinfo",
		KindPlayInfo:   "playinfo",
		KindPlayStatus: "playstatus",
		KindReady:      "ready",
		Kind(99):       "kind(99)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
