package store

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/asintel/pkg/models"
)

const (
	databaseName   = "attack_surface_db"
	collectionName = "scans"

	serverSelectionTimeout = 5 * time.Second
)

// Store persists scan records in MongoDB. Records are insert-only; the
// ObjectID hex becomes the opaque scan id.
type Store struct {
	client *mongo.Client
	scans  *mongo.Collection
}

// NewStore connects to MongoDB and verifies the server is reachable.
func NewStore(ctx context.Context, uri string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, newDatabaseError(CodeUnavailable, "database connection could not be established", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, newDatabaseError(CodeUnavailable, "database is unreachable", err)
	}

	log.Printf("store: connected to mongodb (%s.%s)", databaseName, collectionName)
	return &Store{
		client: client,
		scans:  client.Database(databaseName).Collection(collectionName),
	}, nil
}

// SaveScan assembles and inserts the record for a completed scan,
// returning it with the assigned scan id.
func (s *Store) SaveScan(ctx context.Context, domain string, assets []models.Asset, records *models.DNSRecords) (models.ScanRecord, error) {
	rec := models.NewScanRecord(domain, assets, records)

	res, err := s.scans.InsertOne(ctx, rec)
	if err != nil {
		return models.ScanRecord{}, classifyWriteError(err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return models.ScanRecord{}, newDatabaseError(CodeWriteFailed, "unexpected inserted id type", nil)
	}
	rec.ScanID = oid.Hex()

	log.Printf("store: saved scan %s for %s (%d assets)", rec.ScanID, domain, rec.TotalAssets)
	return rec, nil
}

// GetScan loads a stored record by its scan id. A malformed id is a miss.
func (s *Store) GetScan(ctx context.Context, scanID string) (models.ScanRecord, error) {
	oid, err := primitive.ObjectIDFromHex(scanID)
	if err != nil {
		log.Printf("store: invalid scan id %q", scanID)
		return models.ScanRecord{}, ErrNotFound
	}

	var rec models.ScanRecord
	err = s.scans.FindOne(ctx, bson.M{"_id": oid}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ScanRecord{}, ErrNotFound
		}
		return models.ScanRecord{}, classifyReadError(err)
	}

	rec.ScanID = scanID
	return rec, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func classifyWriteError(err error) *DatabaseError {
	switch {
	case mongo.IsTimeout(err):
		return newDatabaseError(CodeTimeout, "database operation timed out", err)
	case errors.Is(err, mongo.ErrClientDisconnected):
		return newDatabaseError(CodeConnectionFailed, "database connection lost", err)
	default:
		return newDatabaseError(CodeWriteFailed, "scan record could not be written", err)
	}
}

func classifyReadError(err error) *DatabaseError {
	switch {
	case mongo.IsTimeout(err):
		return newDatabaseError(CodeTimeout, "database operation timed out", err)
	case errors.Is(err, mongo.ErrClientDisconnected):
		return newDatabaseError(CodeConnectionFailed, "database connection lost", err)
	default:
		return newDatabaseError(CodeReadFailed, "scan record could not be read", err)
	}
}
