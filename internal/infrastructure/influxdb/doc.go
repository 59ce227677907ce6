// Package influxdb writes hifilink transmission metrics to InfluxDB v2.
//
// Every completed send becomes a "transmission" point tagged by device,
// protocol, source and success; the health heartbeat adds "queue" depth
// samples. Writes are batched and never block the worker.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//
//	client.WriteTransmission(influxdb.Transmission{Device: "amp", Command: "power", Status: 200})
package influxdb
