package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint writes a point stamped with the current time.
//
// The write is non-blocking; points are batched and sent asynchronously,
// and failures are reported through the SetOnError callback. Writes on a
// disconnected or closed client are dropped.
//
// Example:
//
//	client.WritePoint("arylic_volume",
//	    map[string]string{"device": "Kitchen"},
//	    map[string]any{"level": int64(40)})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
