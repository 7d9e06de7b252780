package topic

import (
	"fmt"
)

// Topic segments shared by the station and remote operator panels.
const (
	// SuffixCommand carries panel commands to the station.
	// Structure: {root}/command/{role}
	SuffixCommand = "command"

	// SuffixCommandAck carries the outcome of a command back to the panel.
	// Structure: {root}/command/ack/{role}
	SuffixCommandAck = "command/ack"

	// SuffixLog carries human-readable status lines.
	// Structure: {root}/log/{role}
	SuffixLog = "log"

	// SuffixStatus carries the retained station online flag.
	// Structure: {root}/status/{stationID}
	SuffixStatus = "status"
)

// Builder constructs topic strings under one root namespace.
type Builder struct {
	root string
}

// NewBuilder creates a Builder rooted at root (e.g. "gcs/v1").
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Command returns the command topic for role.
func (b *Builder) Command(role string) string {
	return b.Build(SuffixCommand, role)
}

// CommandWildcard matches the command topic of every role.
func (b *Builder) CommandWildcard() string {
	return b.Build(SuffixCommand, Wildcard)
}

// CommandAck returns the acknowledgement topic for role.
func (b *Builder) CommandAck(role string) string {
	return b.Build(SuffixCommandAck, role)
}

// Log returns the log-line topic for role.
func (b *Builder) Log(role string) string {
	return b.Build(SuffixLog, role)
}

// Status returns the retained online-status topic for a station.
func (b *Builder) Status(stationID string) string {
	return b.Build(SuffixStatus, stationID)
}

// Build joins root, segment and id: {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// Last returns the final level of a topic, which carries the role or id.
func Last(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
