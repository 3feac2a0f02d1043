package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/models"
)

type notification struct {
	event   models.SwapEvent
	userIDs []string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) NotifySwap(event models.SwapEvent, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{event: event, userIDs: userIDs})
}

func (f *fakeNotifier) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.event.NewStatus)
	}
	return out
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) SwapTransition(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[status]++
}

type testEnv struct {
	db       *database.DB
	events   *EventService
	users    *UserService
	items    *ItemService
	swaps    *SwapService
	admin    *AdminService
	notifier *fakeNotifier
	recorder *countingRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := database.NewTestDB(t)
	log := logger.Nop()
	env := &testEnv{
		db:       db,
		notifier: &fakeNotifier{},
		recorder: &countingRecorder{},
	}
	env.events = NewEventService(db)
	env.users = NewUserService(db, env.events, log)
	env.items = NewItemService(db, env.events, log)
	env.swaps = NewSwapService(db, env.events, env.notifier, env.recorder, log)
	env.admin = NewAdminService(db, env.items, env.users, env.events)
	return env
}

func (e *testEnv) member(t *testing.T, name string) Actor {
	t.Helper()
	user, err := e.users.Register(context.Background(), name+"@example.com", name, "password123")
	require.NoError(t, err)
	return Actor{ID: user.ID, Role: user.Role}
}

func (e *testEnv) adminActor(t *testing.T) Actor {
	t.Helper()
	user, err := e.users.EnsureAdmin(context.Background(), "admin@example.com", "adminpass123")
	require.NoError(t, err)
	return Actor{ID: user.ID, Role: user.Role}
}

func (e *testEnv) item(t *testing.T, owner Actor, title string) models.Item {
	t.Helper()
	item, err := e.items.CreateItem(context.Background(), owner.ID, ItemInput{
		Title:     title,
		Category:  "tops",
		Size:      "M",
		Condition: models.ConditionGood,
		Tags:      []string{"cotton"},
	})
	require.NoError(t, err)
	return item
}

func (e *testEnv) approvedItem(t *testing.T, owner, admin Actor, title string) models.Item {
	t.Helper()
	item := e.item(t, owner, title)
	approved, err := e.admin.ApproveItem(context.Background(), admin, item.ID)
	require.NoError(t, err)
	return approved
}
