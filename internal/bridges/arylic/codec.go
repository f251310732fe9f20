package arylic

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// Frame layout constants.
const (
	magicSize    = 4
	lengthSize   = 4
	checksumSize = 4
	reservedSize = 8

	// HeaderSize is the fixed number of bytes preceding the payload.
	HeaderSize = magicSize + lengthSize + checksumSize + reservedSize

	// tokenSize is the width of namespace and sub-command tokens.
	tokenSize = 3
)

// frameMagic opens every frame.
var frameMagic = []byte{0x18, 0x96, 0x18, 0x20}

// sectionTerminator closes data sections ("AXX+MEA+DAT{...}&\n").
const sectionTerminator = "&\n"

// unknownToken is what speakers answer to commands they do not support.
const unknownToken = "UNKNOWN"

// Checksum returns the sum of the payload bytes modulo 2^32.
func Checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

// Encode frames the command's payload for transmission.
func Encode(cmd SentCommand) []byte {
	return EncodeFrame(cmd.Payload())
}

// EncodeFrame wraps a raw payload in a frame header.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	copy(frame, frameMagic)
	binary.LittleEndian.PutUint32(frame[magicSize:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[magicSize+lengthSize:], Checksum(payload))
	copy(frame[HeaderSize:], payload)
	return frame
}

// FormatHex renders bytes as space-separated upper-case hex pairs.
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// ParseHex parses hex pairs, tolerating whitespace, "0x" prefixes and case.
func ParseHex(s string) ([]byte, error) {
	var sb strings.Builder
	for _, field := range strings.Fields(s) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		sb.WriteString(field)
	}
	out, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("parsing hex: %w", err)
	}
	return out, nil
}

// CodecStats holds decoder counters.
type CodecStats struct {
	FramesDecoded   uint64 // Frames that passed length and checksum checks
	FramesDropped   uint64 // Frames rejected by the framing checks
	BadMagic        uint64 // Frames whose magic did not match (still decoded)
	CommandsEmitted uint64 // ReceiveCommands handed to the emit callback
	PayloadsIgnored uint64 // Valid frames whose payload produced no command
}

// Codec decodes inbound frames into ReceiveCommands.
//
// Decoding is lenient about the frame magic and strict about length and
// checksum. Payload problems are logged and dropped; Decode never fails.
type Codec struct {
	logHolder

	framesDecoded   atomic.Uint64
	framesDropped   atomic.Uint64
	badMagic        atomic.Uint64
	commandsEmitted atomic.Uint64
	payloadsIgnored atomic.Uint64
}

// NewCodec creates a codec with zeroed counters.
func NewCodec() *Codec {
	return &Codec{}
}

// Stats returns a snapshot of the decoder counters.
func (c *Codec) Stats() CodecStats {
	return CodecStats{
		FramesDecoded:   c.framesDecoded.Load(),
		FramesDropped:   c.framesDropped.Load(),
		BadMagic:        c.badMagic.Load(),
		CommandsEmitted: c.commandsEmitted.Load(),
		PayloadsIgnored: c.payloadsIgnored.Load(),
	}
}

// Decode parses at most one frame from data and calls emit for the decoded
// command, if any. emit runs synchronously on the caller's goroutine and
// must not retain data.
func (c *Codec) Decode(data []byte, emit func(ReceiveCommand)) {
	cur := NewCursor(data)

	magic, ok := cur.Next(magicSize)
	if !ok {
		c.dropFrame("frame shorter than magic", "size", len(data))
		return
	}
	if !bytes.Equal(magic, frameMagic) {
		c.badMagic.Add(1)
		c.logWarn("unexpected frame magic, decoding anyway", "magic", FormatHex(magic))
	}

	lengthBytes, ok := cur.Next(lengthSize)
	if !ok {
		c.dropFrame("frame length unreadable", "size", len(data))
		return
	}
	checksumBytes, ok := cur.Next(checksumSize)
	if !ok {
		c.dropFrame("frame checksum unreadable", "size", len(data))
		return
	}
	length := binary.LittleEndian.Uint32(lengthBytes)
	checksum := binary.LittleEndian.Uint32(checksumBytes)

	// With fewer than eight bytes left nothing is skipped, so a frame that
	// omits the reserved block still decodes when its payload is shorter
	// than eight bytes and matches the declared length.
	cur.Next(reservedSize)

	if uint64(cur.Remaining()) != uint64(length) {
		c.dropFrame("frame length mismatch", "declared", length, "actual", cur.Remaining())
		return
	}
	payload, _ := cur.Next(int(length))

	if sum := Checksum(payload); sum != checksum {
		c.dropFrame("frame checksum mismatch", "declared", checksum, "actual", sum)
		return
	}

	c.framesDecoded.Add(1)
	cmd, err := c.decodePayload(payload)
	if err != nil {
		c.payloadsIgnored.Add(1)
		c.logWarn("dropping payload", "payload", printable(payload), "error", err)
		return
	}
	if cmd == nil {
		c.payloadsIgnored.Add(1)
		return
	}

	c.commandsEmitted.Add(1)
	if emit != nil {
		emit(cmd)
	}
}

func (c *Codec) dropFrame(reason string, keysAndValues ...any) {
	c.framesDropped.Add(1)
	c.logWarn(reason, keysAndValues...)
}

// decodePayload maps a payload to a command. A nil command with a nil
// error means the payload was understood but carries no event.
func (c *Codec) decodePayload(payload []byte) (ReceiveCommand, error) {
	cur := NewCursor(payload)

	namespace, ok := cur.Next(tokenSize)
	if !ok {
		return nil, fmt.Errorf("%w: payload too short", ErrProtocol)
	}
	c.expectSeparator(cur, payload)

	switch string(namespace) {
	case "AXX":
		return c.decodeDeviceMessage(cur, payload)
	case "MCU":
		c.logDebug("command acknowledged", "payload", printable(payload))
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown namespace %q", ErrProtocol, namespace)
	}
}

func (c *Codec) decodeDeviceMessage(cur *Cursor, payload []byte) (ReceiveCommand, error) {
	if isUnknownReply(cur.Rest()) {
		c.logDebug("device reported unsupported command")
		return nil, nil
	}

	group, ok := cur.Next(tokenSize)
	if !ok {
		return nil, fmt.Errorf("%w: missing command group", ErrProtocol)
	}
	c.expectSeparator(cur, payload)

	if isUnknownReply(cur.Rest()) {
		c.logDebug("device reported unsupported command", "group", string(group))
		return nil, nil
	}

	switch string(group) {
	case "VOL":
		c.logInfo("volume report", "payload", printable(payload))
		return nil, nil
	case "MUT":
		return decodeMute(cur)
	case "MEA":
		return decodeMetadata(cur)
	case "PLY":
		return decodePlayback(cur)
	case "DEV":
		return decodeDevice(cur)
	default:
		return nil, fmt.Errorf("%w: unknown command group %q", ErrProtocol, group)
	}
}

// expectSeparator consumes one byte, whatever it is, and warns unless it
// was '+'.
func (c *Codec) expectSeparator(cur *Cursor, payload []byte) {
	sep, ok := cur.Next(1)
	if ok && sep[0] == '+' {
		return
	}
	c.logWarn("expected '+' separator", "payload", printable(payload))
}

func decodeMute(cur *Cursor) (ReceiveCommand, error) {
	value, ok := cur.Next(tokenSize)
	if !ok {
		return nil, fmt.Errorf("%w: mute value missing", ErrProtocol)
	}
	switch string(value) {
	case "001":
		return Mute{Enabled: true}, nil
	case "000":
		return Mute{Enabled: false}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected mute value %q", ErrProtocol, value)
	}
}

func decodeMetadata(cur *Cursor) (ReceiveCommand, error) {
	sub, ok := cur.Next(tokenSize)
	if !ok {
		return nil, fmt.Errorf("%w: metadata sub-command missing", ErrProtocol)
	}
	switch string(sub) {
	case "DAT":
		body, err := sectionBody(cur)
		if err != nil {
			return nil, err
		}
		return decodeData(body)
	case "RDY":
		return Ready{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown metadata sub-command %q", ErrProtocol, sub)
	}
}

func decodePlayback(cur *Cursor) (ReceiveCommand, error) {
	sub, ok := cur.Next(tokenSize)
	if !ok {
		return nil, fmt.Errorf("%w: playback sub-command missing", ErrProtocol)
	}
	switch string(sub) {
	case "INF":
		body, err := sectionBody(cur)
		if err != nil {
			return nil, err
		}
		return decodePlayInfo(body)
	case "000":
		return PlayStatus{Playing: false}, nil
	case "001":
		return PlayStatus{Playing: true}, nil
	default:
		return nil, fmt.Errorf("%w: unknown playback sub-command %q", ErrProtocol, sub)
	}
}

func decodeDevice(cur *Cursor) (ReceiveCommand, error) {
	sub, ok := cur.Next(tokenSize)
	if !ok {
		return nil, fmt.Errorf("%w: device sub-command missing", ErrProtocol)
	}
	if string(sub) != "INF" {
		return nil, fmt.Errorf("%w: unknown device sub-command %q", ErrProtocol, sub)
	}
	body, err := sectionBody(cur)
	if err != nil {
		return nil, err
	}
	return decodeDeviceInfo(body)
}

// sectionBody returns the remaining bytes minus the two-byte terminator.
func sectionBody(cur *Cursor) ([]byte, error) {
	n := cur.Remaining() - len(sectionTerminator)
	if n < 0 {
		return nil, fmt.Errorf("%w: section shorter than terminator", ErrProtocol)
	}
	body, _ := cur.Next(n)
	return body, nil
}

func decodeData(body []byte) (ReceiveCommand, error) {
	var d Data
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("%w: metadata json: %w", ErrProtocol, err)
	}
	for _, field := range []*string{&d.Title, &d.Artist, &d.Album, &d.Vendor} {
		text, err := hex.DecodeString(*field)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata hex: %w", ErrProtocol, err)
		}
		*field = string(text)
	}
	return d, nil
}

func decodePlayInfo(body []byte) (ReceiveCommand, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: playinfo json: %w", ErrProtocol, err)
	}

	var info PlayInfo
	fields := map[string]*string{
		"type":       &info.Type,
		"ch":         &info.Channel,
		"mode":       &info.Mode,
		"loop":       &info.Loop,
		"eq":         &info.EQ,
		"status":     &info.Status,
		"curpos":     &info.CurPos,
		"offset_pts": &info.OffsetPTS,
		"totlen":     &info.TotalLen,
		"Title":      &info.Title,
		"Artist":     &info.Artist,
		"Album":      &info.Album,
		"alarmflag":  &info.AlarmFlag,
		"plicount":   &info.PliCount,
		"plicurr":    &info.PliCurr,
		"vol":        &info.Volume,
		"mute":       &info.Mute,
	}
	for key, value := range raw {
		if dst, ok := fields[key]; ok {
			*dst = jsonText(value)
		}
	}
	return info, nil
}

// jsonText renders a JSON scalar as text. Firmware versions differ on
// whether numbers are quoted.
func jsonText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func decodeDeviceInfo(body []byte) (ReceiveCommand, error) {
	fields := strings.Split(string(body), ";")
	if len(fields) < 7 {
		return nil, fmt.Errorf("%w: device info has %d fields, want 7", ErrProtocol, len(fields))
	}

	ints := make([]int, 3)
	for i := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(fields[4+i]))
		if err != nil {
			return nil, fmt.Errorf("%w: device info field %d: %w", ErrProtocol, 4+i, err)
		}
		ints[i] = v
	}

	return DeviceInfo{
		APSSID:         fields[0],
		Type:           fields[1],
		Name:           fields[2],
		RouterSSID:     fields[3],
		SignalStrength: ints[0],
		BatteryState:   ints[1],
		BatteryValue:   ints[2],
	}, nil
}

func isUnknownReply(rest []byte) bool {
	return string(bytes.TrimSuffix(rest, []byte("\n"))) == unknownToken
}

// printable returns the payload as a loggable string.
func printable(payload []byte) string {
	return strconv.Quote(string(payload))
}
