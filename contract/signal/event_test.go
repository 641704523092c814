package signal_test

import (
	"testing"

	"github.com/next-trace/scg-signal-bus/contract/signal"
)

type keyed string

func (k keyed) Key() string { return string(k) }

func TestEvent_ShardKey(t *testing.T) {
	ev := signal.Event{Sender: "TestPlan", Instance: keyed("TestPlan:7")}
	if got := ev.ShardKey(); got != "TestPlan:7" {
		t.Fatalf("shard key=%q", got)
	}

	ev = signal.Event{Sender: "TestPlan", Instance: struct{}{}}
	if got := ev.ShardKey(); got != "TestPlan" {
		t.Fatalf("fallback shard key=%q", got)
	}
}

func TestEvent_WithOperationCopiesMeta(t *testing.T) {
	meta := map[string]any{"raw": true}
	ev := signal.Event{Kind: signal.KindSave, Meta: meta}

	labelled := ev.WithOperation(signal.OperationCreate)
	if labelled.Operation != signal.OperationCreate {
		t.Fatalf("operation=%q", labelled.Operation)
	}

	if labelled.Meta[signal.MetaOperation] != "create" || labelled.Meta["raw"] != true {
		t.Fatalf("meta=%v", labelled.Meta)
	}

	if _, ok := meta[signal.MetaOperation]; ok {
		t.Fatalf("original meta mutated: %v", meta)
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range signal.Kinds() {
		if !k.Valid() {
			t.Fatalf("%s should be valid", k)
		}
	}

	if signal.Kind("post_init").Valid() {
		t.Fatalf("unexpected valid kind")
	}

	if !signal.AllEntities.IsWildcard() || signal.EntityType("TestRun").IsWildcard() {
		t.Fatalf("wildcard detection broken")
	}
}
