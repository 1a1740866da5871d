package models

import "time"

// Sample is one point-in-time measurement. Ping is nil when the latency
// probe produced no reading; zero is a valid reading.
type Sample struct {
	Time time.Time `json:"time"`
	CPU  float64   `json:"cpu"`
	RAM  float64   `json:"ram"`
	Ping *float64  `json:"ping"`
}

// Snapshot is a Sample plus the memory counters it was derived from.
type Snapshot struct {
	Sample
	MemUsedBytes  uint64
	MemTotalBytes uint64
}

type Bucket struct {
	Label   string `json:"label"`
	AvgCPU  int    `json:"cpu"`
	AvgRAM  int    `json:"ram"`
	AvgPing int    `json:"ping"`
}

type Stats struct {
	CPUUsage string   `json:"cpuUsage"`
	RAMUsage string   `json:"ramUsage"`
	PingMs   float64  `json:"ping"`
	Series   []Bucket `json:"series"`
}

// ArchivedSample is a row of the long-range sample archive.
type ArchivedSample struct {
	TS            time.Time `json:"time"`
	CPUPct        float64   `json:"cpu"`
	RAMPct        float64   `json:"ram"`
	PingMs        *float64  `json:"ping"`
	MemUsedBytes  int64     `json:"memUsed"`
	MemTotalBytes int64     `json:"memTotal"`
}
