// Package influxdb records speaker state history in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking point writes and health checks. The
// gateway's history recorder writes one point per state change (volume,
// mute, play state, metadata and discovery) tagged with the speaker name.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("arylic_volume",
//	    map[string]string{"device": "Kitchen"},
//	    map[string]any{"level": int64(40)})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are batched and sent in the background; failures are delivered to
// the SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
