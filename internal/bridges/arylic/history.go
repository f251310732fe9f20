package arylic

import (
	"strconv"
	"sync/atomic"
)

// Measurement names written by the HistoryRecorder.
const (
	MeasurementAvailability = "speaker_availability"
	MeasurementMute         = "speaker_mute"
	MeasurementPlayback     = "speaker_playback"
	MeasurementStatus       = "speaker_status"
	MeasurementTrack        = "speaker_track"
	MeasurementDiscovery    = "speaker_discovery"
)

// PointWriter writes a single time-series point. Writes are expected to be
// non-blocking. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// HistoryRecorder is an EventSink that stores speaker state changes as
// time-series points.
type HistoryRecorder struct {
	writer  PointWriter
	written atomic.Uint64
}

// NewHistoryRecorder creates a recorder writing to w.
func NewHistoryRecorder(w PointWriter) *HistoryRecorder {
	return &HistoryRecorder{writer: w}
}

// Written returns the number of points handed to the writer.
func (r *HistoryRecorder) Written() uint64 {
	return r.written.Load()
}

func (r *HistoryRecorder) DeviceAvailable(name string, available bool) {
	r.write(MeasurementAvailability, name, map[string]any{"available": available})
}

func (r *HistoryRecorder) DeviceEvent(name string, cmd ReceiveCommand) {
	switch msg := cmd.(type) {
	case Mute:
		r.write(MeasurementMute, name, map[string]any{"muted": msg.Enabled})
	case PlayStatus:
		r.write(MeasurementPlayback, name, map[string]any{"playing": msg.Playing})
	case PlayInfo:
		fields := map[string]any{"status": msg.Status}
		addInt(fields, "volume", msg.Volume)
		addInt(fields, "position_ms", msg.CurPos)
		addInt(fields, "length_ms", msg.TotalLen)
		addInt(fields, "mute", msg.Mute)
		r.write(MeasurementStatus, name, fields)
	case Data:
		r.write(MeasurementTrack, name, map[string]any{
			"title":  msg.Title,
			"artist": msg.Artist,
			"album":  msg.Album,
			"vendor": msg.Vendor,
		})
	}
}

func (r *HistoryRecorder) DeviceDiscovered(device DiscoveredDevice) {
	r.writer.WritePoint(MeasurementDiscovery,
		map[string]string{"model": device.Model()},
		map[string]any{"host": device.Identity.Host, "port": device.Identity.Port, "service": device.Name},
	)
	r.written.Add(1)
}

func (r *HistoryRecorder) write(measurement, device string, fields map[string]any) {
	r.writer.WritePoint(measurement, map[string]string{"device": device}, fields)
	r.written.Add(1)
}

// addInt sets key when value parses as an integer.
func addInt(fields map[string]any, key, value string) {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		fields[key] = n
	}
}
