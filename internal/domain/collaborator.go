package domain

// Hop is one step of a traced route to a target
type Hop struct {
	Hop       int     `json:"hop"`
	Address   string  `json:"ip"`
	Host      string  `json:"host,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// Optimization is a proposed topology together with the reasoning behind it
type Optimization struct {
	Explanation string   `json:"explanation"`
	Devices     []Device `json:"topology"`
}
