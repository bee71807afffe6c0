package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"support-rag/internal/helper"
)

// ErrNoIndex is returned by Import when the index file does not exist.
var ErrNoIndex = errors.New("index file does not exist")

// VectorDBManager wraps an in-memory chromem-go database whose single
// collection is persisted as one exported file.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embed          chromem.EmbeddingFunc
	compress       bool
	encryptionKey  string
	filePath       string
}

// NewVectorDBManager initializes an empty in-memory database. embed is used
// by chromem-go only for documents or queries given without a vector.
func NewVectorDBManager(filePath, collectionName string, compress bool, encryptionKey string, embed chromem.EmbeddingFunc) *VectorDBManager {
	return &VectorDBManager{
		db:             chromem.NewDB(),
		collectionName: collectionName,
		embed:          embed,
		compress:       compress,
		encryptionKey:  encryptionKey,
		filePath:       filePath,
	}
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, m.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Count reports the number of documents in the collection.
func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// QueryEmbedding returns up to n nearest documents by cosine similarity. n is
// clamped to the collection size.
func (m *VectorDBManager) QueryEmbedding(ctx context.Context, embedding []float32, n int) ([]chromem.Result, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	n = min(n, m.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

// Export replaces the index file with the current collection. The data is
// written to a temporary file first so readers never see a partial index.
func (m *VectorDBManager) Export() error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	if m.filePath == "" {
		return fmt.Errorf("file path is required")
	}
	if err := helper.CreateFolder(filepath.Dir(m.filePath)); err != nil {
		return err
	}

	log.Debug().Str("collection", m.collectionName).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	tmp := m.filePath + ".tmp"
	if err := m.db.ExportToFile(tmp, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	if err := os.Remove(m.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tmp, m.filePath); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// Import loads the collection from the index file.
func (m *VectorDBManager) Import() error {
	if _, err := os.Stat(m.filePath); errors.Is(err, fs.ErrNotExist) {
		return ErrNoIndex
	}
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	m.collection = m.db.GetCollection(m.collectionName, m.embed)
	if m.collection == nil {
		return fmt.Errorf("collection %q not found in %s", m.collectionName, m.filePath)
	}
	return nil
}
