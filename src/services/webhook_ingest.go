package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"membershare/src/apperr"
	"membershare/src/lib"
	"membershare/src/models"
	"membershare/src/storage"
)

const (
	SourcePurchases   = "purchases"
	SourceMemberships = "memberships"
)

// WebhookIngestService dedupes verified deliveries and routes them to the
// lifecycle and sync services.
type WebhookIngestService struct {
	log     storage.WebhookLog
	groups  *GroupService
	sync    *SyncService
	metrics *lib.Metrics
	now     func() time.Time
}

func NewWebhookIngestService(log storage.WebhookLog, groups *GroupService, sync *SyncService, metrics *lib.Metrics) *WebhookIngestService {
	return &WebhookIngestService{log: log, groups: groups, sync: sync, metrics: metrics, now: time.Now}
}

// record claims eventID for source. An empty id is replaced with a fresh one
// so deliveries without ids are never deduplicated.
func (s *WebhookIngestService) record(ctx context.Context, eventID, source string) (string, error) {
	if eventID == "" {
		eventID = uuid.NewString()
	} else if _, err := uuid.Parse(eventID); err != nil {
		s.metrics.Inc("webhooks_rejected_total")
		return "", apperr.Wrap(apperr.CodeInvalid, "event id must be a uuid", err)
	}

	if err := s.log.RecordWebhookEvent(ctx, eventID, source, s.now().Unix()); err != nil {
		if errors.Is(err, storage.ErrDuplicateEvent) {
			s.metrics.Inc("webhooks_duplicate_total")
		}
		return "", err
	}
	s.metrics.Inc("webhooks_ingested_total")
	return eventID, nil
}

func (s *WebhookIngestService) IngestPurchase(ctx context.Context, purchase models.PurchaseCompleted) ([]models.Group, error) {
	if _, err := s.record(ctx, purchase.EventID, SourcePurchases); err != nil {
		return nil, err
	}
	return s.groups.CreateFromPurchase(ctx, purchase)
}

func (s *WebhookIngestService) IngestMembership(ctx context.Context, event models.MembershipEvent) (SyncResult, error) {
	if event.Membership.ID == 0 {
		s.metrics.Inc("webhooks_rejected_total")
		return SyncResult{}, apperr.MissingField("membership id")
	}
	switch event.Type {
	case models.MembershipStatusChanged, models.MembershipDeleted, models.MembershipGranted, models.MembershipSaved:
	default:
		s.metrics.Inc("webhooks_rejected_total")
		return SyncResult{}, apperr.Invalid("unknown membership event type")
	}
	if _, err := s.record(ctx, event.EventID, SourceMemberships); err != nil {
		return SyncResult{}, err
	}
	return s.sync.HandleEvent(ctx, event)
}
