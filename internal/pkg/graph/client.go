package graph

import (
	"context"
	"errors"
)

// Client is the contract the graph-backed relationship store needs from the
// underlying graph database.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)

	// ExecuteWriteTx runs fn inside a single managed write transaction. Locks taken
	// by statements inside fn are held until fn returns and the transaction commits.
	ExecuteWriteTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx runs statements inside an open transaction.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Result is a simplified representation of a query response.
type Result struct {
	Records []Record
}

// First returns the first record or nil.
func (r Result) First() Record {
	if len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}

// Record groups key-value pairs returned from the graph engine.
type Record map[string]any

// String returns the string value stored under key.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

// Int returns the integer value stored under key. Bolt returns int64 for all integers.
func (r Record) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Options configures a graph client implementation.
type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// ErrMissingURI indicates the graph URI is not provided.
var ErrMissingURI = errors.New("graph URI is required")
