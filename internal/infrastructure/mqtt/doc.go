// Package mqtt provides the MQTT client used by the hifilink command bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload size checks
//   - Subscriptions that survive reconnects
//   - A retained online/offline status with a Last Will
//
// # Topics
//
// All topics live under mqtt.topic_prefix (default "hifilink"):
//
//	hifilink/command/{device}   commands in
//	hifilink/ack/{device}       acknowledgements out
//	hifilink/state/{device}     transmission events out
//	hifilink/health             periodic health out
//	hifilink/system/status      retained online/offline, also the LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), client.QoS(), handler)
package mqtt
