package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every processor topic.
const TopicPrefix = "attrproc"

// Request verbs accepted on the request topics.
const (
	VerbRead    = "read"
	VerbReload  = "reload"
	VerbCommand = "command"
)

// Topics provides builders for processor MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceAttribute("lab/attr/proc", "T1")
//	// Returns: "attrproc/device/lab/attr/proc/attribute/T1"
type Topics struct{}

// devicePrefix returns "attrproc/device/{device}".
func (Topics) devicePrefix(device string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefix, device)
}

// DeviceAttribute returns the topic carrying one attribute value.
func (t Topics) DeviceAttribute(device, name string) string {
	return t.devicePrefix(device) + "/attribute/" + name
}

// DeviceState returns the topic carrying the device state.
func (t Topics) DeviceState(device string) string {
	return t.devicePrefix(device) + "/state"
}

// DeviceInput returns the topic peers write an input value to.
func (t Topics) DeviceInput(device, name string) string {
	return t.devicePrefix(device) + "/input/" + name
}

// AllDeviceInputs returns the wildcard matching every input of a device.
func (t Topics) AllDeviceInputs(device string) string {
	return t.devicePrefix(device) + "/input/+"
}

// DeviceRequest returns the topic for one request verb.
func (t Topics) DeviceRequest(device, verb string) string {
	return t.devicePrefix(device) + "/request/" + verb
}

// AllDeviceRequests returns the wildcard matching every request verb.
func (t Topics) AllDeviceRequests(device string) string {
	return t.devicePrefix(device) + "/request/+"
}

// DeviceResponse returns the topic a request reply is published to.
func (t Topics) DeviceResponse(device, requestID string) string {
	return t.devicePrefix(device) + "/response/" + requestID
}

// DeviceStatus returns the retained presence topic of a device.
func (t Topics) DeviceStatus(device string) string {
	return t.devicePrefix(device) + "/status"
}

// ParseInput extracts the input name from an input topic of device.
// It reports false when topic is not a single-level input topic.
func (t Topics) ParseInput(device, topic string) (string, bool) {
	return t.parseLeaf(t.devicePrefix(device)+"/input/", topic)
}

// ParseRequest extracts the verb from a request topic of device.
func (t Topics) ParseRequest(device, topic string) (string, bool) {
	return t.parseLeaf(t.devicePrefix(device)+"/request/", topic)
}

func (Topics) parseLeaf(prefix, topic string) (string, bool) {
	leaf, ok := strings.CutPrefix(topic, prefix)
	if !ok || leaf == "" || strings.Contains(leaf, "/") {
		return "", false
	}
	return leaf, true
}
