package mqtt

import (
	"encoding/json"
	"time"
)

// Reasons carried by offline presence messages.
const (
	reasonConnectionLost = "connection_lost"
	reasonShutdown       = "shutdown"
)

// Presence is the retained payload of the device status topic.
//
//	{"device":"lab/attr/proc","online":true,"state":"ALARM",
//	 "status":"ALARM selected by ALARM=T1 > 70","timestamp":"..."}
//
// The will published by the broker on a lost connection carries no state:
// it is registered before the first cycle.
type Presence struct {
	Device    string `json:"device"`
	Online    bool   `json:"online"`
	State     string `json:"state,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ReportState records the device state announced with the next presence
// message (reconnect or shutdown).
func (c *Client) ReportState(state, status string) {
	c.mu.Lock()
	c.state, c.status = state, status
	c.mu.Unlock()
}

// presence encodes the current presence of the device.
func (c *Client) presence(online bool, reason string) []byte {
	c.mu.RLock()
	p := Presence{
		Device:    c.device,
		Online:    online,
		State:     c.state,
		Status:    c.status,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	c.mu.RUnlock()

	data, err := json.Marshal(p)
	if err != nil {
		// Only strings and a bool; Marshal cannot fail.
		return nil
	}
	return data
}
