package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"membershare/src/auth"
	"membershare/src/identity"
	"membershare/src/lib"
	"membershare/src/models"
	"membershare/src/storage/sqlite"
)

type fakeNotifier struct {
	mu          sync.Mutex
	invitations []InvitationMessage
	reminders   []InvitationMessage
	fail        bool
}

func (n *fakeNotifier) SendInvitation(_ context.Context, msg InvitationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.invitations = append(n.invitations, msg)
	return nil
}

func (n *fakeNotifier) SendReminder(_ context.Context, msg InvitationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unavailable")
	}
	n.reminders = append(n.reminders, msg)
	return nil
}

func (n *fakeNotifier) lastToken(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.invitations) == 0 {
		t.Fatalf("no invitation was sent")
	}
	return n.invitations[len(n.invitations)-1].Token
}

type testEnv struct {
	store       *sqlite.Store
	metrics     *lib.Metrics
	notifier    *fakeNotifier
	invitations *InvitationService
	sync        *SyncService
	groups      *GroupService
	sessions    *auth.Sessions
	clock       time.Time
}

func (e *testEnv) now() time.Time { return e.clock }

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, GroupSettings{})
}

func newTestEnvWith(t *testing.T, settings GroupSettings) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "membershare.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:    store,
		metrics:  lib.NewMetrics(),
		notifier: &fakeNotifier{},
		sessions: auth.NewSessions("test-secret-test-secret-test-sec", time.Hour),
		clock:    time.Unix(1_700_000_000, 0),
	}
	env.invitations = NewInvitationService(store, 7*24*time.Hour, 5, env.metrics)
	env.invitations.now = env.now
	env.sync = NewSyncService(store, env.metrics, logger)

	if settings.SiteName == "" {
		settings.SiteName = "Example Club"
	}
	if settings.PublicBaseURL == "" {
		settings.PublicBaseURL = "https://club.example"
	}
	if settings.GroupLabel == "" {
		settings.GroupLabel = "Family"
	}
	env.groups = NewGroupService(GroupDeps{
		Store:       store,
		Invitations: env.invitations,
		Sync:        env.sync,
		Notifier:    env.notifier,
		Identity:    identity.NewDirectory(store),
		Sessions:    env.sessions,
		Limiter:     NewInviteLimiter(100, 100),
		Metrics:     env.metrics,
		Logger:      logger,
	}, settings)
	env.groups.now = env.now
	return env
}

var ownerPrincipal = models.Principal{UserID: 1, Email: "owner@example.com", Name: "Olivia"}

func purchaseOf(items ...models.PurchaseItem) models.PurchaseCompleted {
	return models.PurchaseCompleted{
		OrderID: 500,
		Buyer:   models.Buyer{UserID: ownerPrincipal.UserID, Email: ownerPrincipal.Email, DisplayName: ownerPrincipal.Name},
		Items:   items,
	}
}

func sharedItem(productID, variationID int64, quantity int) models.PurchaseItem {
	return models.PurchaseItem{
		ProductID:   productID,
		VariationID: variationID,
		ProductName: "Gold Membership",
		Quantity:    quantity,
		Sharing:     models.SharingConfig{Enabled: true, LimitType: models.LimitQuantityBased},
	}
}

// createGroup buys a quantity-based group with the given capacity.
func (e *testEnv) createGroup(t *testing.T, capacity int) models.Group {
	t.Helper()
	groups, err := e.groups.CreateFromPurchase(context.Background(), purchaseOf(sharedItem(100, 200, capacity)))
	if err != nil {
		t.Fatalf("create from purchase: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	return groups[0]
}

// invite sends an invitation and returns its token.
func (e *testEnv) invite(t *testing.T, groupID int64, email string) string {
	t.Helper()
	if _, err := e.groups.Invite(context.Background(), ownerPrincipal, groupID, email); err != nil {
		t.Fatalf("invite %s: %v", email, err)
	}
	return e.notifier.lastToken(t)
}

func fixedReader(chunks ...[]byte) io.Reader {
	return bytes.NewReader(bytes.Join(chunks, nil))
}
