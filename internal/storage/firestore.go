package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// DefaultCollection is the Firestore collection holding messages.
const DefaultCollection = "messages"

// FirestoreConfig selects the Firebase project. With
// FIRESTORE_EMULATOR_HOST set, the client talks to the emulator.
type FirestoreConfig struct {
	CredentialsFile string
	ProjectID       string
	Collection      string
}

type firestoreDoc struct {
	SessionID string         `firestore:"sessionId"`
	Message   string         `firestore:"message"`
	Role      string         `firestore:"role"`
	Metadata  map[string]any `firestore:"metadata"`
	Timestamp time.Time      `firestore:"timestamp,serverTimestamp"`
	// CreatedAt is an ISO string so that clients reading the collection
	// directly can order on it.
	CreatedAt string `firestore:"createdAt"`
}

// FirestoreStore keeps messages in a Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewFirestore connects through the Firebase Admin SDK.
func NewFirestore(ctx context.Context, cfg FirestoreConfig, opts Options) (*FirestoreStore, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" && os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewFirestoreWithClient(client, cfg.Collection, opts), nil
}

// NewFirestoreWithClient wraps an existing client. The store owns it.
func NewFirestoreWithClient(client *firestore.Client, collection string, opts Options) *FirestoreStore {
	opts = opts.withDefaults()
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		logger:     opts.Logger.WithModule("storage"),
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

func (s *FirestoreStore) coll() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) sessionQuery(sessionID string) firestore.Query {
	return s.coll().Where("sessionId", "==", sessionID).OrderBy("createdAt", firestore.Asc)
}

// Backend implements Backend.
func (s *FirestoreStore) Backend() string { return BackendFirestore }

// Append implements MessageStore.
func (s *FirestoreStore) Append(ctx context.Context, m Message) (_ Message, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendFirestore, "append", err) }()

	if err := validate(m); err != nil {
		return Message{}, err
	}
	meta, err := CleanMetadata(m.Metadata)
	if err != nil {
		return Message{}, err
	}
	m.Metadata = meta
	m.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	ref, _, err := s.coll().Add(ctx, firestoreDoc{
		SessionID: m.SessionID,
		Message:   m.Message,
		Role:      string(m.Role),
		Metadata:  meta,
		CreatedAt: formatCreatedAt(m.CreatedAt),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to save message: %w", err)
	}
	m.ID = ref.ID
	return m, nil
}

// History implements MessageStore.
func (s *FirestoreStore) History(ctx context.Context, sessionID string, limit int) (_ []Message, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendFirestore, "history", err) }()

	docs, err := s.sessionQuery(sessionID).Limit(normalizeLimit(limit)).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		m, err := docToMessage(doc)
		if err != nil {
			s.logger.WithError(err).WarnContext(ctx, "skipping unreadable message", "id", doc.Ref.ID)
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// DeleteSession implements MessageStore.
func (s *FirestoreStore) DeleteSession(ctx context.Context, sessionID string) (_ int, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendFirestore, "delete_session", err) }()
	return s.deleteAll(ctx, s.coll().Where("sessionId", "==", sessionID).Documents(ctx))
}

// DeleteAll implements MessageStore.
func (s *FirestoreStore) DeleteAll(ctx context.Context) (_ int, err error) {
	defer func() { s.metrics.RecordStoreOp(BackendFirestore, "delete_all", err) }()
	return s.deleteAll(ctx, s.coll().Documents(ctx))
}

func (s *FirestoreStore) deleteAll(ctx context.Context, it *firestore.DocumentIterator) (int, error) {
	defer it.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to list messages: %w", err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to queue delete: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("failed to delete %d messages: %w", len(errs), errors.Join(errs...))
	}
	return deleted, nil
}

// Watch implements MessageStore using a snapshot listener. The initial
// snapshot (existing history) is skipped.
func (s *FirestoreStore) Watch(ctx context.Context, sessionID string) (<-chan Message, error) {
	it := s.sessionQuery(sessionID).Snapshots(ctx)
	out := make(chan Message, watchBuffer)

	go func() {
		defer close(out)
		defer it.Stop()

		first := true
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.logger.WithError(err).WarnContext(ctx, "message watch ended", "session_id", sessionID)
				}
				return
			}
			if first {
				first = false
				continue
			}
			for _, change := range snap.Changes {
				if change.Kind != firestore.DocumentAdded {
					continue
				}
				m, err := docToMessage(change.Doc)
				if err != nil {
					s.logger.WithError(err).WarnContext(ctx, "skipping unreadable message", "id", change.Doc.Ref.ID)
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping implements MessageStore.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	it := s.coll().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

// Close implements MessageStore.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func docToMessage(doc *firestore.DocumentSnapshot) (Message, error) {
	var d firestoreDoc
	if err := doc.DataTo(&d); err != nil {
		return Message{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
	if err != nil {
		created = d.Timestamp
	}
	meta := d.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return Message{
		ID:        doc.Ref.ID,
		SessionID: d.SessionID,
		Role:      Role(d.Role),
		Message:   d.Message,
		Metadata:  meta,
		CreatedAt: created.UTC(),
	}, nil
}

var (
	_ MessageStore = (*SQLiteStore)(nil)
	_ MessageStore = (*FirestoreStore)(nil)
)
