package messaging

// HealthStatus reports the state of a broker connection.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// CheckClientHealth verifies that client is connected and can round-trip
// to the broker.
func CheckClientHealth(client Client) HealthStatus {
	var status HealthStatus

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	rtt, err := client.RTT()
	if err != nil {
		status.Error = "health check failed: " + err.Error()
		return status
	}
	status.LatencyMS = rtt.Milliseconds()
	return status
}
