package mongo

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"bookkeeper/internal/expense"
	"bookkeeper/internal/models"
)

type receiptMetadata struct {
	ContentType string `bson:"content_type"`
}

// Receipts is the GridFS expense.ReceiptStore.
// A reference is the hex ObjectID of the stored file.
type Receipts struct {
	bucket *mongo.GridFSBucket
}

var _ expense.ReceiptStore = (*Receipts)(nil)

// NewReceipts opens the receipts bucket of db.
func NewReceipts(db *mongo.Database) *Receipts {
	return &Receipts{bucket: db.GridFSBucket(options.GridFSBucket().SetName(receiptsBucket))}
}

// Put uploads data and returns the file id.
func (r *Receipts) Put(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	opts := options.GridFSUpload().SetMetadata(receiptMetadata{ContentType: contentType})
	id, err := r.bucket.UploadFromStream(ctx, filename, bytes.NewReader(data), opts)
	if err != nil {
		return "", mapError(err)
	}
	return id.Hex(), nil
}

// Get downloads the receipt behind ref.
func (r *Receipts) Get(ctx context.Context, ref string) (models.Receipt, error) {
	oid, err := bson.ObjectIDFromHex(ref)
	if err != nil {
		return models.Receipt{}, expense.ErrNotFound
	}

	stream, err := r.bucket.OpenDownloadStream(ctx, oid)
	if err != nil {
		return models.Receipt{}, mapError(err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return models.Receipt{}, mapError(err)
	}

	file := stream.GetFile()
	var meta receiptMetadata
	if len(file.Metadata) > 0 {
		if err := bson.Unmarshal(file.Metadata, &meta); err != nil {
			return models.Receipt{}, fmt.Errorf("%w: receipt %s metadata: %w", expense.ErrStorageUnavailable, ref, err)
		}
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}

	return models.Receipt{
		Ref:         ref,
		Filename:    file.Name,
		ContentType: meta.ContentType,
		Data:        data,
	}, nil
}

// Delete removes the file and its chunks.
func (r *Receipts) Delete(ctx context.Context, ref string) error {
	oid, err := bson.ObjectIDFromHex(ref)
	if err != nil {
		return expense.ErrNotFound
	}
	if err := r.bucket.Delete(ctx, oid); err != nil {
		return mapError(err)
	}
	return nil
}
