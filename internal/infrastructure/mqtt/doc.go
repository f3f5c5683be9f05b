// Package mqtt connects an attribute processor device to the MQTT bus.
//
// One Client serves one device. It publishes attribute values and the
// device state, routes peer inputs and operator requests to the device,
// and keeps the device's presence (online or offline, with the last known
// state) retained on the status topic. The broker publishes the offline
// will when the connection drops unexpectedly.
//
// # Topic Layout
//
//	attrproc/device/{device}/attribute/{name}   retained value of one attribute
//	attrproc/device/{device}/state              retained state and status
//	attrproc/device/{device}/status             retained presence, will
//	attrproc/device/{device}/input/{name}       plain input values written by peers
//	attrproc/device/{device}/request/{verb}     read, reload, command requests
//	attrproc/device/{device}/response/{id}      request replies
//
// Device names may contain '/', so parsers strip the device prefix instead
// of splitting on levels.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Device.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllDeviceInputs(device), handler)
//	err = client.PublishJSON(topics.DeviceState(device), payload, true)
package mqtt
