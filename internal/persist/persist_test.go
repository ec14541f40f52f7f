package persist

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/probeline/probeline/internal/measure"
	"github.com/probeline/probeline/internal/storage"
)

type panickingStore struct {
	storage.Store
}

func (panickingStore) Create(ctx context.Context, index, docType string, body map[string]any) error {
	panic("client exploded")
}

func (panickingStore) Bulk(ctx context.Context, items []storage.BulkItem) error {
	panic("client exploded")
}

func (panickingStore) EnsureCollection(ctx context.Context, index, docType string) error {
	panic("client exploded")
}

func newTestGateway(store storage.Store) (*Gateway, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	return New(store, "storageIndex", mock), mock
}

func TestWriteCount(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	g, _ := newTestGateway(store)

	if err := g.WriteCount(context.Background(), "counter", map[string]any{"count": int64(1)}); err != nil {
		t.Fatalf("WriteCount() error = %v", err)
	}

	created := store.Created()
	if len(created) != 1 {
		t.Fatalf("expected 1 document, got %d", len(created))
	}
	got := created[0]
	if got.Index != "storageIndex" || got.Type != "counter" {
		t.Errorf("document written to %s/%s", got.Index, got.Type)
	}
	want := map[string]any{"count": int64(1), "timestamp": int64(1_700_000_000_000)}
	if !reflect.DeepEqual(got.Body, want) {
		t.Errorf("body = %v, want %v", got.Body, want)
	}
}

func TestWriteCollected(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	g, _ := newTestGateway(store)

	items := []measure.Item{{"foo": "bar"}, {"foo": "baz"}}
	if err := g.WriteCollected(context.Background(), "fooprobe", items); err != nil {
		t.Fatalf("WriteCollected() error = %v", err)
	}

	bulks := store.Bulks()
	if len(bulks) != 1 {
		t.Fatalf("expected a single bulk request, got %d", len(bulks))
	}
	if len(bulks[0]) != 2 {
		t.Fatalf("expected 2 items, got %d", len(bulks[0]))
	}
	for i, item := range bulks[0] {
		if item.Action != (storage.BulkAction{Index: "storageIndex", Type: "fooprobe"}) {
			t.Errorf("item %d action = %+v", i, item.Action)
		}
		if !reflect.DeepEqual(item.Body["content"], items[i]) {
			t.Errorf("item %d content = %v, want %v", i, item.Body["content"], items[i])
		}
		if item.Body["timestamp"] != int64(1_700_000_000_000) {
			t.Errorf("item %d timestamp = %v", i, item.Body["timestamp"])
		}
	}
}

func TestWriteCollected_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	g, _ := newTestGateway(store)

	if err := g.WriteCollected(context.Background(), "p", nil); err != nil {
		t.Fatalf("WriteCollected() error = %v", err)
	}
	if len(store.Bulks()) != 0 {
		t.Error("empty collection must not issue a request")
	}
}

func TestWrite_BodyShapes(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	g, _ := newTestGateway(store)
	ctx := context.Background()

	monitor := measure.Snapshot{ProbeID: "m", Kind: measure.KindHooks, Hooks: map[string]int64{"foo": 2, "bar": 0}}
	counter := measure.Snapshot{ProbeID: "c", Kind: measure.KindValue, Value: -3}
	if err := g.Write(ctx, monitor); err != nil {
		t.Fatalf("Write(monitor) error = %v", err)
	}
	if err := g.Write(ctx, counter); err != nil {
		t.Fatalf("Write(counter) error = %v", err)
	}

	created := store.Created()
	if len(created) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(created))
	}
	wantMonitor := map[string]any{"foo": int64(2), "bar": int64(0), "timestamp": int64(1_700_000_000_000)}
	if !reflect.DeepEqual(created[0].Body, wantMonitor) {
		t.Errorf("monitor body = %v, want %v", created[0].Body, wantMonitor)
	}
	if created[1].Body["count"] != int64(-3) {
		t.Errorf("counter body = %v", created[1].Body)
	}
}

func TestErrorsAreReturned(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	boom := errors.New("boom")
	store.FailOn(storage.OpCreate, boom)
	store.FailOn(storage.OpBulk, boom)
	store.FailOn(storage.OpEnsureCollection, boom)
	g, _ := newTestGateway(store)
	ctx := context.Background()

	if err := g.WriteCount(ctx, "p", nil); !errors.Is(err, boom) {
		t.Errorf("WriteCount() error = %v", err)
	}
	if err := g.WriteCollected(ctx, "p", []measure.Item{{}}); !errors.Is(err, boom) {
		t.Errorf("WriteCollected() error = %v", err)
	}
	if err := g.EnsureCollection(ctx, "p"); !errors.Is(err, boom) {
		t.Errorf("EnsureCollection() error = %v", err)
	}
}

func TestPanicsBecomeErrors(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(panickingStore{})
	ctx := context.Background()

	if err := g.WriteCount(ctx, "p", nil); !errors.Is(err, ErrStorePanic) {
		t.Errorf("WriteCount() error = %v", err)
	}
	if err := g.WriteCollected(ctx, "p", []measure.Item{{}}); !errors.Is(err, ErrStorePanic) {
		t.Errorf("WriteCollected() error = %v", err)
	}
	if err := g.EnsureCollection(ctx, "p"); !errors.Is(err, ErrStorePanic) {
		t.Errorf("EnsureCollection() error = %v", err)
	}
}
