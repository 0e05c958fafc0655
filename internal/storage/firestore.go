package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/carwatch/olx-monitor/internal/models"
)

const (
	seenCollection = "seen_ads"
	adsCollection  = "ads"
)

type seenDoc struct {
	SeenAt time.Time `firestore:"seenAt"`
}

// FirestoreStore keeps one document per ad ID in each collection.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) IsSeen(ctx context.Context, adID string) (bool, error) {
	doc, err := s.client.Collection(seenCollection).Doc(adID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get seen ad %s: %w", adID, err)
	}
	return doc.Exists(), nil
}

// MarkSeen creates the ledger document; an existing one is left as is.
func (s *FirestoreStore) MarkSeen(ctx context.Context, adID string) error {
	_, err := s.client.Collection(seenCollection).Doc(adID).Create(ctx, seenDoc{SeenAt: time.Now().UTC()})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to mark ad %s seen: %w", adID, err)
	}
	return nil
}

func (s *FirestoreStore) Append(ctx context.Context, ad models.AdRecord) error {
	_, err := s.client.Collection(adsCollection).Doc(ad.ID).Create(ctx, ad)
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to archive ad %s: %w", ad.ID, err)
	}
	return nil
}

// Record writes both documents in one transaction, skipping whichever exists.
func (s *FirestoreStore) Record(ctx context.Context, ad models.AdRecord) error {
	seenRef := s.client.Collection(seenCollection).Doc(ad.ID)
	adRef := s.client.Collection(adsCollection).Doc(ad.ID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		seenExists, err := txExists(tx, seenRef)
		if err != nil {
			return err
		}
		adExists, err := txExists(tx, adRef)
		if err != nil {
			return err
		}
		if !seenExists {
			if err := tx.Create(seenRef, seenDoc{SeenAt: time.Now().UTC()}); err != nil {
				return err
			}
		}
		if !adExists {
			return tx.Create(adRef, ad)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record ad %s: %w", ad.ID, err)
	}
	return nil
}

func txExists(tx *firestore.Transaction, ref *firestore.DocumentRef) (bool, error) {
	doc, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return doc.Exists(), nil
}

func (s *FirestoreStore) ListAll(ctx context.Context) ([]models.AdRecord, error) {
	iter := s.client.Collection(adsCollection).OrderBy("recordedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	ads := []models.AdRecord{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate ads: %w", err)
		}
		var ad models.AdRecord
		if err := doc.DataTo(&ad); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ad %s: %w", doc.Ref.ID, err)
		}
		ads = append(ads, ad)
	}
	return ads, nil
}

// Reset deletes every ledger document through a BulkWriter.
func (s *FirestoreStore) Reset(ctx context.Context) (int, error) {
	collectionRef := s.client.Collection(seenCollection)

	countSnapshot, err := collectionRef.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count seen ads: %w", err)
	}
	total, err := aggregateCount(countSnapshot["all"])
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	slog.Info("Resetting seen-ad ledger", "documents", total)

	iter := collectionRef.Documents(ctx)
	defer iter.Stop()

	bulkWriter := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bulkWriter.End()
			return 0, fmt.Errorf("failed to iterate seen ads: %w", err)
		}
		job, err := bulkWriter.Delete(doc.Ref)
		if err != nil {
			slog.Warn("Failed to queue delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	deleted := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			slog.Warn("Delete failed during reset", "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// aggregateCount unwraps a count aggregation result, which the client returns
// either as int64 or as a raw protobuf value depending on version.
func aggregateCount(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case *firestorepb.Value:
		return val.GetIntegerValue(), nil
	case nil:
		return 0, fmt.Errorf("count aggregation result missing")
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}
