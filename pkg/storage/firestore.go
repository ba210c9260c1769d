package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreHistoryCollection = "daily_history"
	firestoreConfigCollection  = "config"
	firestoreManifestDoc       = "manifest"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Each
// day's history is a document in "daily_history" keyed by YYYY-MM-DD and the
// manifest lives at "config/manifest". Documents hold the same JSON that the
// file provider writes, in a "json" field.
type FirestoreProvider struct {
	client          *firestore.Client
	projectID       string
	database        string
	credentialsFile string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	credentialsFile := lflag.String("firestore-credentials-file", "", "Service account JSON file (defaults to application default credentials)")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.credentialsFile = *credentialsFile

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.credentialsFile != "" {
		if _, err := os.Stat(f.credentialsFile); err != nil {
			return fmt.Errorf("invalid firestore-credentials-file: %w", err)
		}
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	var opts []option.ClientOption
	if f.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(f.credentialsFile))
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getJSON(ctx context.Context, doc *firestore.DocumentRef, dest any) error {
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch %s: %w", doc.Path, err)
	}

	val, err := snap.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("docID", doc.ID))
		return fmt.Errorf("%w: document %s missing 'json' field: %v", ErrCorrupt, doc.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("docID", doc.ID))
		return fmt.Errorf("%w: document %s 'json' field is not a string", ErrCorrupt, doc.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json", slog.String("docID", doc.ID), slog.Any("err", err))
		return fmt.Errorf("%w: failed to unmarshal %s: %v", ErrCorrupt, doc.ID, err)
	}
	return nil
}

func (f *FirestoreProvider) setJSON(ctx context.Context, doc *firestore.DocumentRef, v any, extra map[string]interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", doc.ID, err)
	}
	data := map[string]interface{}{
		"json":    string(jsonBytes),
		"updated": time.Now(),
	}
	for k, v := range extra {
		data[k] = v
	}
	if _, err := doc.Set(ctx, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", doc.ID, err)
	}
	return nil
}

// GetDailyHistory retrieves the day's history document.
func (f *FirestoreProvider) GetDailyHistory(ctx context.Context, day time.Time) (*types.DailyHistory, error) {
	h := types.NewDailyHistory()
	doc := f.client.Collection(firestoreHistoryCollection).Doc(DayKey(day))
	if err := f.getJSON(ctx, doc, h); err != nil {
		return nil, err
	}
	return h, nil
}

// PutDailyHistory replaces the day's history document.
func (f *FirestoreProvider) PutDailyHistory(ctx context.Context, day time.Time, h *types.DailyHistory) error {
	doc := f.client.Collection(firestoreHistoryCollection).Doc(DayKey(day))
	return f.setJSON(ctx, doc, h, map[string]interface{}{
		"day": DayKey(day),
	})
}

// GetManifest retrieves the manifest document.
func (f *FirestoreProvider) GetManifest(ctx context.Context) (types.Manifest, error) {
	var m types.Manifest
	doc := f.client.Collection(firestoreConfigCollection).Doc(firestoreManifestDoc)
	if err := f.getJSON(ctx, doc, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = types.Manifest{}
	}
	return m, nil
}

// PutManifest replaces the manifest document.
func (f *FirestoreProvider) PutManifest(ctx context.Context, m types.Manifest) error {
	doc := f.client.Collection(firestoreConfigCollection).Doc(firestoreManifestDoc)
	return f.setJSON(ctx, doc, m, nil)
}
