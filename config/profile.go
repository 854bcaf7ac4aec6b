// Package config holds the RUDP connection Profile: the immutable set of
// protocol parameters a connection is negotiated with.
//
// This replaces the teacher's flat const block (ServerIP/ServerPort/...)
// with a validated, YAML-loadable record, following the shape its
// test/*/main.go harnesses already call (config.ReadConfig("config.yaml")).
package config

import (
	"os"

	"github.com/deng-rui/RUDP/rudperr"
	"gopkg.in/yaml.v3"
)

// Profile is the immutable set of RUDP protocol parameters. Construct one
// with New or Load; both validate every field against the ranges in
// spec.md §3 and return a *rudperr.ConfigError naming the first offender.
type Profile struct {
	MaxSendQueueSize      int `yaml:"max_send_queue_size"`
	MaxRecvQueueSize      int `yaml:"max_recv_queue_size"`
	MaxSegmentSize        int `yaml:"max_segment_size"`
	MaxOutstandingSegs    int `yaml:"max_outstanding_segs"`
	MaxRetrans            int `yaml:"max_retrans"`
	MaxCumulativeAcks     int `yaml:"max_cumulative_acks"`
	MaxOutOfSequence      int `yaml:"max_out_of_sequence"`
	MaxAutoReset          int `yaml:"max_auto_reset"` // reserved, unused - see spec.md Open Questions
	NullSegmentTimeoutMs  int `yaml:"null_segment_timeout_ms"`
	RetransTimeoutMs      int `yaml:"retransmission_timeout_ms"`
	CumulativeAckTimeoutMs int `yaml:"cumulative_ack_timeout_ms"`
}

// Default returns the Profile populated with spec.md §3's default column.
func Default() *Profile {
	return &Profile{
		MaxSendQueueSize:       32,
		MaxRecvQueueSize:       32,
		MaxSegmentSize:         128,
		MaxOutstandingSegs:     3,
		MaxRetrans:             0,
		MaxCumulativeAcks:      3,
		MaxOutOfSequence:       3,
		MaxAutoReset:           3,
		NullSegmentTimeoutMs:   2000,
		RetransTimeoutMs:       600,
		CumulativeAckTimeoutMs: 300,
	}
}

// New validates p and returns it, or a *rudperr.ConfigError for the first
// field found out of range.
func New(p *Profile) (*Profile, error) {
	type bound struct {
		name     string
		val, lo, hi int
	}
	for _, b := range []bound{
		{"max_send_queue_size", p.MaxSendQueueSize, 1, 255},
		{"max_recv_queue_size", p.MaxRecvQueueSize, 1, 255},
		{"max_segment_size", p.MaxSegmentSize, 22, 65535},
		{"max_outstanding_segs", p.MaxOutstandingSegs, 1, 255},
		{"max_retrans", p.MaxRetrans, 0, 255},
		{"max_cumulative_acks", p.MaxCumulativeAcks, 0, 255},
		{"max_out_of_sequence", p.MaxOutOfSequence, 0, 255},
		{"max_auto_reset", p.MaxAutoReset, 0, 255},
		{"null_segment_timeout_ms", p.NullSegmentTimeoutMs, 0, 65535},
		{"retransmission_timeout_ms", p.RetransTimeoutMs, 100, 65535},
		{"cumulative_ack_timeout_ms", p.CumulativeAckTimeoutMs, 100, 65535},
	} {
		if b.val < b.lo || b.val > b.hi {
			return nil, &rudperr.ConfigError{Field: b.name, Msg: "out of range"}
		}
	}
	cp := *p
	return &cp, nil
}

// Load reads a YAML profile from path, applying Default() for any field the
// file omits (a field set explicitly, even to zero, keeps that value), then
// validates it exactly like New.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &rudperr.IoError{Op: "config.Load", Err: err}
	}

	p := Default()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, &rudperr.ConfigError{Field: "<yaml>", Msg: err.Error()}
	}

	return New(p)
}
