package graph

import (
	"context"
	"sync"
)

// RecordingClient is an in-memory Client used for unit testing graph-backed
// repositories without a running database. It records every statement and
// replays queued results in order.
type RecordingClient struct {
	mu           sync.Mutex
	calls        []ExecutedQuery
	results      []Result
	err          error
	connectivity error
	txCount      int
}

// ExecutedQuery captures a cypher statement and parameters executed against the graph.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
	Write  bool
	InTx   bool
}

// NewRecordingClient instantiates an empty recording client.
func NewRecordingClient() *RecordingClient {
	return &RecordingClient{}
}

// WithError configures the client to return err for subsequent calls.
func (m *RecordingClient) WithError(err error) *RecordingClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithConnectivityError forces VerifyConnectivity to return err.
func (m *RecordingClient) WithConnectivityError(err error) *RecordingClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// PushResult appends a result returned by the next statement, read or write.
func (m *RecordingClient) PushResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
}

func (m *RecordingClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return m.record(cypher, params, true, false)
}

func (m *RecordingClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return m.record(cypher, params, false, false)
}

func (m *RecordingClient) ExecuteWriteTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.txCount++
	m.mu.Unlock()

	return fn(ctx, recordingTx{client: m})
}

func (m *RecordingClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectivity
}

func (m *RecordingClient) Close(context.Context) error {
	return nil
}

// Calls returns a snapshot of executed statements.
func (m *RecordingClient) Calls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.calls...)
}

// TxCount returns how many write transactions were opened.
func (m *RecordingClient) TxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCount
}

func (m *RecordingClient) record(cypher string, params map[string]any, write, inTx bool) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Result{}, m.err
	}

	m.calls = append(m.calls, ExecutedQuery{
		Query:  cypher,
		Params: cloneMap(params),
		Write:  write,
		InTx:   inTx,
	})

	if len(m.results) == 0 {
		return Result{}, nil
	}

	res := m.results[0]
	m.results = m.results[1:]
	return res, nil
}

type recordingTx struct {
	client *RecordingClient
}

func (t recordingTx) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return t.client.record(cypher, params, true, true)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
