package arylic

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

// rammliedFrame is a metadata frame captured from a speaker playing Spotify.
const rammliedFrame = "18 96 18 20 A7 00 00 00 C5 28 00 00 00 00 00 00 00 00 00 00 " +
	"41 58 58 2B 4D 45 41 2B 44 41 54 7B 20 22 74 69 74 6C 65 22 3A 20 22 35 32 36 31 36 44 " +
	"36 44 36 43 36 39 36 35 36 34 22 2C 20 22 61 72 74 69 73 74 22 3A 20 22 34 31 34 32 43 " +
	"33 38 39 34 43 34 31 35 32 34 34 22 2C 20 22 61 6C 62 75 6D 22 3A 20 22 35 32 36 31 36 " +
	"44 36 44 37 33 37 34 36 35 36 39 36 45 32 30 36 46 36 45 32 30 35 30 36 39 36 31 36 45 " +
	"36 46 22 2C 20 22 76 65 6E 64 6F 72 22 3A 20 22 35 33 37 30 36 46 37 34 36 39 36 36 37 " +
	"39 22 2C 20 22 73 6B 69 70 6C 69 6D 69 74 22 3A 20 30 20 7D 26 0A"

func mustParseHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := ParseHex(s)
	if err != nil {
		t.Fatalf("ParseHex(%q) error = %v", s, err)
	}
	return b
}

// decodeAll runs the codec over data and collects every emitted command.
func decodeAll(c *Codec, data []byte) []ReceiveCommand {
	var out []ReceiveCommand
	c.Decode(data, func(cmd ReceiveCommand) {
		out = append(out, cmd)
	})
	return out
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  SentCommand
		want string
	}{
		{
			name: "device info request",
			cmd:  DeviceInfoRequest{},
			want: "18 96 18 20 0C 00 00 00 04 03 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 44 45 56 2B 47 45 54 0A",
		},
		{
			name: "playback status without line feed",
			cmd:  PlaybackStatusRequest{},
			want: "18 96 18 20 0B 00 00 00 1D 03 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 50 49 4E 46 47 45 54",
		},
		{
			name: "mute on",
			cmd:  Mute{Enabled: true},
			want: "18 96 18 20 0C 00 00 00 CC 02 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 4D 55 54 2B 30 30 31 0A",
		},
		{
			name: "mute off",
			cmd:  Mute{Enabled: false},
			want: "18 96 18 20 0C 00 00 00 CB 02 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 4D 55 54 2B 30 30 30 0A",
		},
		{
			name: "playback metadata",
			cmd:  PlaybackMetadataRequest{},
			want: "18 96 18 20 0C 00 00 00 F8 02 00 00 00 00 00 00 00 00 00 00 " +
				"4D 43 55 2B 4D 45 41 2B 47 45 54 0A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.cmd)
			want := mustParseHex(t, tt.want)
			if !bytes.Equal(got, want) {
				t.Errorf("Encode() = %s, want %s", FormatHex(got), FormatHex(want))
			}
		})
	}
}

func TestEncodeFrameLengthAndChecksum(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("MCU+VOL+042\n"),
		bytes.Repeat([]byte{0xFF}, 300),
	}

	for _, payload := range payloads {
		frame := EncodeFrame(payload)
		if len(frame) != HeaderSize+len(payload) {
			t.Fatalf("len(frame) = %d, want %d", len(frame), HeaderSize+len(payload))
		}
		if !bytes.Equal(frame[:4], frameMagic) {
			t.Errorf("magic = %s", FormatHex(frame[:4]))
		}
		gotLen := uint32(frame[4]) | uint32(frame[5])<<8 | uint32(frame[6])<<16 | uint32(frame[7])<<24
		if gotLen != uint32(len(payload)) {
			t.Errorf("length = %d, want %d", gotLen, len(payload))
		}
		gotSum := uint32(frame[8]) | uint32(frame[9])<<8 | uint32(frame[10])<<16 | uint32(frame[11])<<24
		if gotSum != Checksum(payload) {
			t.Errorf("checksum = %d, want %d", gotSum, Checksum(payload))
		}
		if !bytes.Equal(frame[12:20], make([]byte, 8)) {
			t.Errorf("reserved = %s, want zeros", FormatHex(frame[12:20]))
		}
	}
}

func TestChecksumWraps(t *testing.T) {
	// 0xFF * 16843010 overflows uint32 exactly once.
	payload := bytes.Repeat([]byte{0xFF}, 16843010)
	want := uint32((uint64(0xFF) * 16843010) % (1 << 32))
	if got := Checksum(payload); got != want {
		t.Errorf("Checksum() = %d, want %d", got, want)
	}
}

func TestDecodeMetadataFrame(t *testing.T) {
	c := NewCodec()
	got := decodeAll(c, mustParseHex(t, rammliedFrame))

	want := []ReceiveCommand{Data{
		Title:     "Rammlied",
		Artist:    "ABÉLARD",
		Album:     "Rammstein on Piano",
		Vendor:    "Spotify",
		SkipLimit: 0,
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode() = %#v, want %#v", got, want)
	}
	if s := c.Stats(); s.FramesDecoded != 1 || s.CommandsEmitted != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDecodeCapturedMuteOff(t *testing.T) {
	frame := mustParseHex(t, "18 96 18 20 0C 00 00 00 D7 02 00 00 00 00 00 00 00 00 00 00 "+
		"41 58 58 2B 4D 55 54 2B 30 30 30 0A")

	c := NewCodec()
	got := decodeAll(c, frame)
	want := []ReceiveCommand{Mute{Enabled: false}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode() = %#v, want %#v", got, want)
	}
	if s := c.Stats(); s.FramesDecoded != 1 || s.BadMagic != 0 || s.FramesDropped != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDecodePayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []ReceiveCommand
	}{
		{"mute on", "AXX+MUT+001", []ReceiveCommand{Mute{Enabled: true}}},
		{"mute off", "AXX+MUT+000\n", []ReceiveCommand{Mute{Enabled: false}}},
		{"mute garbage", "AXX+MUT+00X", nil},
		{"metadata ready", "AXX+MEA+RDY\n", []ReceiveCommand{Ready{}}},
		{"volume report", "AXX+VOL+050\n", nil},
		{"unknown reply", "AXX+UNKNOWN", nil},
		{"unknown reply with line feed", "AXX+UNKNOWN\n", nil},
		{"unknown after group", "AXX+PLY+UNKNOWN", nil},
		{"acknowledgement", "MCU+VOL+050\n", nil},
		{"unknown namespace", "ZZZ+MUT+001\n", nil},
		{"unknown group", "AXX+ZZZ+001\n", nil},
		{"playing", "AXX+PLY+001\n", []ReceiveCommand{PlayStatus{Playing: true}}},
		{"paused", "AXX+PLY+000\n", []ReceiveCommand{PlayStatus{Playing: false}}},
		{"too short", "AX", nil},
		{
			name:    "device info",
			payload: "AXX+DEV+INFmyap;speaker;Kitchen;home;-52;1;87&\n",
			want: []ReceiveCommand{DeviceInfo{
				APSSID:         "myap",
				Type:           "speaker",
				Name:           "Kitchen",
				RouterSSID:     "home",
				SignalStrength: -52,
				BatteryState:   1,
				BatteryValue:   87,
			}},
		},
		{"device info too few fields", "AXX+DEV+INFa;b;c&\n", nil},
		{"device info bad integer", "AXX+DEV+INFa;b;c;d;x;1;2&\n", nil},
		{
			name:    "play info mixed quoting",
			payload: `AXX+PLY+INF{"type":"0","ch":"2","mode":10,"status":"play","vol":"34","mute":"0","Title":"5469746C65"}&` + "\n",
			want: []ReceiveCommand{PlayInfo{
				Type:    "0",
				Channel: "2",
				Mode:    "10",
				Status:  "play",
				Volume:  "34",
				Mute:    "0",
				Title:   "5469746C65",
			}},
		},
		{"play info bad json", "AXX+PLY+INF{nope&\n", nil},
		{"metadata bad hex", `AXX+MEA+DAT{"title":"ZZ"}&` + "\n", nil},
		{"metadata missing terminator room", "AXX+MEA+DAT", nil},
		{"wrong separator is skipped", "AXX-MUT+001", []ReceiveCommand{Mute{Enabled: true}}},
		{"wrong second separator is skipped", "AXX+MUT 000\n", []ReceiveCommand{Mute{Enabled: false}}},
		{"missing separator consumes a token byte", "AXXMUT+001", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeAll(NewCodec(), EncodeFrame([]byte(tt.payload)))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDecodeDeviceInfoRoundTrip(t *testing.T) {
	info := DeviceInfo{
		APSSID:         "ap",
		Type:           "up2stream",
		Name:           "Living Room",
		RouterSSID:     "wifi",
		SignalStrength: 70,
		BatteryState:   0,
		BatteryValue:   0,
	}

	got := decodeAll(NewCodec(), Encode(info))
	if len(got) != 1 || got[0] != info {
		t.Errorf("Decode(Encode(%+v)) = %#v", info, got)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	good := EncodeFrame([]byte("AXX+MUT+001\n"))

	badChecksum := append([]byte(nil), good...)
	badChecksum[8]++

	longer := append(append([]byte(nil), good...), 0x00)

	shorter := good[:len(good)-1]

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated after checksum", mustParseHex(t, "18 96 18 20 0C 00 00 00 D7 02 00 00")},
		{"checksum mismatch", badChecksum},
		{"trailing byte", longer},
		{"missing byte", shorter},
		{"length unreadable", []byte{0x18, 0x96, 0x18, 0x20, 0x01}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCodec()
			if got := decodeAll(c, tt.data); len(got) != 0 {
				t.Errorf("Decode() emitted %#v, want nothing", got)
			}
			if s := c.Stats(); s.FramesDropped != 1 || s.FramesDecoded != 0 {
				t.Errorf("Stats() = %+v, want one dropped frame", s)
			}
		})
	}
}

func TestDecodeLenientMagic(t *testing.T) {
	frame := EncodeFrame([]byte("AXX+MUT+001\n"))
	copy(frame, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	c := NewCodec()
	got := decodeAll(c, frame)
	if len(got) != 1 || got[0] != (Mute{Enabled: true}) {
		t.Errorf("Decode() = %#v, want Mute(true)", got)
	}
	if s := c.Stats(); s.BadMagic != 1 {
		t.Errorf("BadMagic = %d, want 1", s.BadMagic)
	}
}

func TestDecodeSingleFramePerRead(t *testing.T) {
	one := EncodeFrame([]byte("AXX+MUT+001\n"))
	two := append(append([]byte(nil), one...), one...)

	if got := decodeAll(NewCodec(), two); len(got) != 0 {
		t.Errorf("Decode(two frames) = %#v, want nothing", got)
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"18 96 18 20", []byte{0x18, 0x96, 0x18, 0x20}, false},
		{"0x4d 0X43", []byte{0x4D, 0x43}, false},
		{"4d43", []byte{0x4D, 0x43}, false},
		{"", []byte{}, false},
		{"4", nil, true},
		{"GG", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !bytes.Equal(got, tt.want) {
			t.Errorf("ParseHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex([]byte{0x18, 0x0A, 0xFF}); got != "18 0A FF" {
		t.Errorf("FormatHex() = %q", got)
	}
	if got := FormatHex(nil); got != "" {
		t.Errorf("FormatHex(nil) = %q", got)
	}
}

func TestDecodePayloadErrorsWrapProtocol(t *testing.T) {
	c := NewCodec()
	_, err := c.decodePayload([]byte("AXX+MUT+999"))
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("decodePayload() error = %v, want ErrProtocol", err)
	}
}
