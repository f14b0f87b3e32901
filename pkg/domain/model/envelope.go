package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
)

// Table names a realtime-enabled backend table
type Table string

const (
	TableThreads  Table = "threads"
	TableComments Table = "comments"
)

// ChannelScope identifies one realtime feed: a table plus an optional
// foreign-key filter (e.g. comments of a single thread). Every open
// channel is keyed by its scope.
type ChannelScope struct {
	Table        Table
	FilterColumn string
	FilterValue  string
}

// ThreadsScope returns the scope of the unfiltered threads channel
func ThreadsScope() ChannelScope {
	return ChannelScope{Table: TableThreads}
}

// CommentsScope returns the scope of a single thread's comments channel
func CommentsScope(threadID types.ThreadID) ChannelScope {
	return ChannelScope{
		Table:        TableComments,
		FilterColumn: "thread_id",
		FilterValue:  threadID.String(),
	}
}

// Topic returns the wire-level channel topic for this scope
func (s ChannelScope) Topic() string {
	if s.FilterColumn == "" {
		return fmt.Sprintf("realtime:%s", s.Table)
	}
	return fmt.Sprintf("realtime:%s:%s=eq.%s", s.Table, s.FilterColumn, s.FilterValue)
}

// Validate checks if the ChannelScope is valid
func (s ChannelScope) Validate() error {
	switch s.Table {
	case TableThreads, TableComments:
	default:
		return goerr.New("unsupported realtime table", goerr.V("table", s.Table))
	}
	if s.FilterColumn != "" && s.FilterValue == "" {
		return goerr.New("filter value is required when filter column is set",
			goerr.V("column", s.FilterColumn))
	}
	return nil
}

// InsertEnvelope is a tagged insert notification pushed by the realtime
// service. Record is the raw inserted row, lacking denormalized fields
// such as the author's display name.
type InsertEnvelope struct {
	Table      Table           `json:"table"`
	Record     json.RawMessage `json:"record"`
	ReceivedAt time.Time       `json:"-"`
}

// Thread decodes the envelope's record as a thread row
func (e *InsertEnvelope) Thread() (*Thread, error) {
	if e.Table != TableThreads {
		return nil, goerr.New("envelope is not a thread insert", goerr.V("table", e.Table))
	}
	var thread Thread
	if err := json.Unmarshal(e.Record, &thread); err != nil {
		return nil, goerr.Wrap(err, "failed to decode thread record")
	}
	return &thread, nil
}

// Comment decodes the envelope's record as a comment row
func (e *InsertEnvelope) Comment() (*Comment, error) {
	if e.Table != TableComments {
		return nil, goerr.New("envelope is not a comment insert", goerr.V("table", e.Table))
	}
	var comment Comment
	if err := json.Unmarshal(e.Record, &comment); err != nil {
		return nil, goerr.Wrap(err, "failed to decode comment record")
	}
	return &comment, nil
}
