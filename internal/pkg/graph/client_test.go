package graph

import (
	"context"
	"errors"
	"testing"
)

func TestRecordAccessors(t *testing.T) {
	rec := Record{"name": "alice", "count": int64(3), "small": 2, "bad": 1.5}

	if v, ok := rec.String("name"); !ok || v != "alice" {
		t.Fatalf("String(name) = %q, %v", v, ok)
	}
	if _, ok := rec.String("count"); ok {
		t.Fatal("String on an integer must report false")
	}
	if v, ok := rec.Int("count"); !ok || v != 3 {
		t.Fatalf("Int(count) = %d, %v", v, ok)
	}
	if v, ok := rec.Int("small"); !ok || v != 2 {
		t.Fatalf("Int(small) = %d, %v", v, ok)
	}
	if _, ok := rec.Int("bad"); ok {
		t.Fatal("Int on a float must report false")
	}
	if _, ok := rec.Int("missing"); ok {
		t.Fatal("Int on a missing key must report false")
	}
}

func TestResultFirst(t *testing.T) {
	if (Result{}).First() != nil {
		t.Fatal("empty result must return nil")
	}
	res := Result{Records: []Record{{"n": 1}, {"n": 2}}}
	if res.First()["n"] != 1 {
		t.Fatal("expected first record")
	}
}

func TestRecordingClientReplaysResultsInOrder(t *testing.T) {
	c := NewRecordingClient()
	ctx := context.Background()
	c.PushResult(Result{Records: []Record{{"n": int64(1)}}})
	c.PushResult(Result{Records: []Record{{"n": int64(2)}}})

	first, err := c.ExecuteRead(ctx, "RETURN 1 AS n", nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var second Result
	err = c.ExecuteWriteTx(ctx, func(ctx context.Context, tx Tx) error {
		second, err = tx.Run(ctx, "RETURN 2 AS n", map[string]any{"p": "x"})
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	empty, _ := c.ExecuteWrite(ctx, "CREATE ()", nil)

	if n, _ := first.First().Int("n"); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if n, _ := second.First().Int("n"); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if empty.First() != nil {
		t.Fatal("expected empty result once the queue is drained")
	}

	calls := c.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].Write || calls[0].InTx {
		t.Fatalf("unexpected flags on read: %+v", calls[0])
	}
	if !calls[1].Write || !calls[1].InTx || calls[1].Params["p"] != "x" {
		t.Fatalf("unexpected tx statement: %+v", calls[1])
	}
	if c.TxCount() != 1 {
		t.Fatalf("expected one transaction, got %d", c.TxCount())
	}
}

func TestRecordingClientErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewRecordingClient().WithError(boom).WithConnectivityError(boom)
	ctx := context.Background()

	if _, err := c.ExecuteRead(ctx, "RETURN 1", nil); !errors.Is(err, boom) {
		t.Fatalf("read: expected boom, got %v", err)
	}
	ran := false
	err := c.ExecuteWriteTx(ctx, func(context.Context, Tx) error {
		ran = true
		return nil
	})
	if !errors.Is(err, boom) || ran {
		t.Fatalf("tx: expected boom without running fn, got %v (ran=%v)", err, ran)
	}
	if err := c.VerifyConnectivity(ctx); !errors.Is(err, boom) {
		t.Fatalf("connectivity: expected boom, got %v", err)
	}
	if len(c.Calls()) != 0 {
		t.Fatal("failed calls must not be recorded")
	}
}

func TestNewNeo4jClientRequiresURI(t *testing.T) {
	if _, err := NewNeo4jClient(context.Background(), Options{}); !errors.Is(err, ErrMissingURI) {
		t.Fatalf("expected ErrMissingURI, got %v", err)
	}
}
