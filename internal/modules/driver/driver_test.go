package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"courier/internal/testutil"
	"courier/internal/types"
)

func TestBundleOps(t *testing.T) {
	d := &Driver{ID: "d1"}
	assert.True(t, d.AddOrder("o1"))
	assert.True(t, d.AddOrder("o2"))
	assert.False(t, d.AddOrder("o1"))
	assert.Equal(t, []types.ID{"o1", "o2"}, d.CurrentOrders)

	assert.True(t, d.RemoveOrder("o1"))
	assert.False(t, d.RemoveOrder("o1"))
	assert.Equal(t, []types.ID{"o2"}, d.CurrentOrders)
	assert.True(t, d.Holds("o2"))
}

func TestStoreBundle(t *testing.T) {
	db := testutil.NewPool(t)
	testutil.Seed(t, db)
	ctx := context.Background()
	store := NewStore(db)

	o1, o2 := types.NewID(), types.NewID()
	testutil.InsertOrder(t, db, string(o1), 1, 0)
	testutil.InsertOrder(t, db, string(o2), 2, 0)

	d, err := store.FindWithBundleLocked(ctx, testutil.DriverID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.Location == nil || len(d.CurrentOrders) != 0 {
		t.Fatalf("unexpected driver: %+v", d)
	}

	d.AddOrder(o1)
	d.AddOrder(o2)
	d.UpdatedAt = time.Now()
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}

	d.RemoveOrder(o1)
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("save after remove: %v", err)
	}

	got, err := store.Get(ctx, testutil.DriverID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.CurrentOrders) != 1 || got.CurrentOrders[0] != o2 {
		t.Fatalf("unexpected bundle: %v", got.CurrentOrders)
	}

	if _, err := store.Get(ctx, types.NewID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
