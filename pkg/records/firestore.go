package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig configures a Firestore record store.
type FirestoreConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// CredentialsFile is a service account key. Application Default
	// Credentials are used when empty.
	CredentialsFile string
}

// FirestoreStore stores each record as a document in the collection
// named by the caller.
type FirestoreStore struct {
	client *firestore.Client
	mu     sync.RWMutex
	closed bool
}

// firestoreDoc is the stored document shape.
type firestoreDoc struct {
	Name       string     `firestore:"name"`
	Calories   float64    `firestore:"calories"`
	Protein    float64    `firestore:"protein"`
	Fat        float64    `firestore:"fat"`
	Carbs      float64    `firestore:"carbs"`
	User       string     `firestore:"user"`
	Note       string     `firestore:"note,omitempty"`
	Date       time.Time  `firestore:"date"`
	Archived   bool       `firestore:"archived"`
	ArchivedAt *time.Time `firestore:"archived_at,omitempty"`
	CreatedAt  time.Time  `firestore:"created_at,serverTimestamp"`
}

func toFirestoreDoc(rec Record) firestoreDoc {
	return firestoreDoc{
		Name:     rec.Name,
		Calories: rec.Calories,
		Protein:  rec.Protein,
		Fat:      rec.Fat,
		Carbs:    rec.Carbs,
		User:     rec.User,
		Note:     rec.Note,
		Date:     rec.Date,
	}
}

// NewFirestoreStore connects to Firestore.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Create implements Store.
func (s *FirestoreStore) Create(ctx context.Context, collection string, rec Record) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestoreDoc(rec))
	if err != nil {
		return "", fmt.Errorf("failed to create record in %s: %w", collection, err)
	}
	return ref.ID, nil
}

// QueryBefore implements Store. The query needs a composite index on
// (archived, date).
func (s *FirestoreStore) QueryBefore(ctx context.Context, collection string, before time.Time) ([]Page, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	iter := s.client.Collection(collection).
		Where("archived", "==", false).
		Where("date", "<", before).
		Documents(ctx)
	defer iter.Stop()

	var pages []Page
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", collection, err)
		}

		var doc firestoreDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, snap.Ref.ID, err)
		}
		pages = append(pages, Page{ID: snap.Ref.ID, Collection: collection, Date: doc.Date})
	}
	return pages, nil
}

// Archive implements Store.
func (s *FirestoreStore) Archive(ctx context.Context, page Page) error {
	if err := s.check(); err != nil {
		return err
	}

	_, err := s.client.Collection(page.Collection).Doc(page.ID).Update(ctx, []firestore.Update{
		{Path: "archived", Value: true},
		{Path: "archived_at", Value: firestore.ServerTimestamp},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to archive %s/%s: %w", page.Collection, page.ID, err)
	}
	return nil
}

// Close implements Store.
func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// Ping implements Pinger by listing at most one collection.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	iter := s.client.Collections(ctx)
	_, err := iter.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping failed: %w", err)
	}
	return nil
}
