// Package types holds the records shared by the store, the reply orchestrator
// and the HTTP layer, so none of them has to import another for a struct.
package types

import "time"

// TranscriptEntry is one inbound message as persisted in the transcript log.
// Entries are immutable once appended and never read back by reply logic.
type TranscriptEntry struct {
	Timestamp time.Time `json:"ts"`
	AgentKey  string    `json:"agent_key"`
	AgentName string    `json:"agent_name"`
	ObjectKey string    `json:"object_key"`
	Region    string    `json:"region"`
	Message   string    `json:"message"`
}

// StoreStats summarises table sizes for the admin CLI.
type StoreStats struct {
	TranscriptEntries int `json:"transcript_entries"`
	Facts             int `json:"facts"`
	Agents            int `json:"agents"`
	ConsentGranted    int `json:"consent_granted"`
}
