package mikrotik

// mockResponse returns deterministic synthetic rows for a command. It backs
// every read when the router is unreachable or the driver is disabled, so
// the dashboard stays usable during device outage. Unrecognized commands
// yield an empty slice, never an error; callers treat empty as "no data".
func mockResponse(command string) []map[string]string {
	switch command {
	case "/system/resource/print":
		return []map[string]string{
			{
				"cpu-frequency":   "600MHz",
				"cpu-count":       "1",
				"cpu-load":        "10",
				"free-memory":     "1000000",
				"total-memory":    "2000000",
				"free-hdd-space":  "1000000",
				"total-hdd-space": "2000000",
				"uptime":          "2d3h4m5s",
				"version":         "6.47.9",
			},
		}

	case "/ppp/secret/print":
		return []map[string]string{
			{
				".id":            "*1",
				"name":           "test-user-1",
				"password":       "password123",
				"service":        "pppoe",
				"profile":        "default",
				"remote-address": "192.168.1.100",
				"disabled":       "false",
			},
			{
				".id":            "*2",
				"name":           "test-user-2",
				"password":       "password456",
				"service":        "pppoe",
				"profile":        "default",
				"remote-address": "192.168.1.101",
				"disabled":       "true",
			},
		}

	case "/ppp/active/print":
		return []map[string]string{
			{
				".id":         "*1",
				"name":        "test-user-1",
				"service":     "pppoe",
				"caller-id":   "00:11:22:33:44:55",
				"address":     "192.168.1.100",
				"uptime":      "2h30m",
				"rate-limit":  "10M/10M",
				"bytes-in":    "1048576",
				"bytes-out":   "524288",
				"packets-in":  "1024",
				"packets-out": "512",
			},
		}

	default:
		return []map[string]string{}
	}
}
