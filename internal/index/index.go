package index

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-civitai-cache/internal/models"
)

// entryDocument is the flattened shape indexed per cache entry.
type entryDocument struct {
	VersionID   int    `json:"versionId"`
	VersionName string `json:"versionName"`
	ModelID     int    `json:"modelId"`
	ModelName   string `json:"modelName"`
	ModelType   string `json:"modelType"`
	Creator     string `json:"creator"`
	BaseModel   string `json:"baseModel"`
	Folder      string `json:"folder"`
	Status      string `json:"status"`
}

// OpenOrCreateIndex opens the bleve index at the given path, creating it with
// a default mapping when it does not exist yet.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}

	log.Infof("Creating new search index at %s", path)
	mapping := bleve.NewIndexMapping()
	idx, err = bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	return idx, nil
}

// IndexCacheEntry indexes a cache entry under its version id.
func IndexCacheEntry(idx bleve.Index, entry models.CacheEntry) error {
	doc := entryDocument{
		VersionID:   entry.Version.ID,
		VersionName: entry.Version.Name,
		ModelID:     entry.ModelID,
		ModelName:   entry.ModelName,
		ModelType:   entry.ModelType,
		Creator:     entry.Creator.Username,
		BaseModel:   entry.Version.BaseModel,
		Folder:      entry.Folder,
		Status:      entry.Status,
	}
	if err := idx.Index(strconv.Itoa(entry.Version.ID), doc); err != nil {
		return fmt.Errorf("failed to index entry for version %d: %w", entry.Version.ID, err)
	}
	return nil
}

// DeleteCacheEntry removes a version's document from the index.
func DeleteCacheEntry(idx bleve.Index, versionID int) error {
	return idx.Delete(strconv.Itoa(versionID))
}

// Search runs a query string search and returns up to limit hits.
func Search(idx bleve.Index, query string, limit int) (*bleve.SearchResult, error) {
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed for query %q: %w", query, err)
	}
	return result, nil
}
