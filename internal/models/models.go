package models

import (
	"encoding/json"
	"strconv"
)

// Media type tags as reported by the API.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// FlexibleCursor is a pagination cursor that can unmarshal from either a JSON
// string or a JSON number. The images endpoint returns numeric cursors, the
// models endpoint returns strings.
type FlexibleCursor string

// UnmarshalJSON implements json.Unmarshaler for FlexibleCursor
func (c *FlexibleCursor) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*c = FlexibleCursor(str)
		return nil
	}

	var num int64
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*c = FlexibleCursor(strconv.FormatInt(num, 10))
	return nil
}

func (c FlexibleCursor) String() string {
	return string(c)
}

type (
	// Config holds the application's configuration settings.
	Config struct {
		SavePath            string        `toml:"SavePath" json:"SavePath"`
		DatabasePath        string        `toml:"DatabasePath" json:"DatabasePath"`
		BleveIndexPath      string        `toml:"BleveIndexPath" json:"BleveIndexPath"`
		LogLevel            string        `toml:"LogLevel" json:"LogLevel"`
		LogFormat           string        `toml:"LogFormat" json:"LogFormat"`
		APIKey              string        `toml:"ApiKey" json:"ApiKey"`
		Sync                SyncConfig    `toml:"Sync" json:"Sync"`
		Torrent             TorrentConfig `toml:"Torrent" json:"Torrent"`
		APIDelayMs          int           `toml:"ApiDelayMs" json:"ApiDelayMs"`
		APIClientTimeoutSec int           `toml:"ApiClientTimeoutSec" json:"ApiClientTimeoutSec"`
		MaxRetries          int           `toml:"MaxRetries" json:"MaxRetries"`
		InitialRetryDelayMs int           `toml:"InitialRetryDelayMs" json:"InitialRetryDelayMs"`
		LogApiRequests      bool          `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// SyncConfig holds settings specific to the 'sync' command.
	SyncConfig struct {
		// Strings first
		Query  string `toml:"Query"`
		Tag    string `toml:"Tag"`
		Sort   string `toml:"Sort"`
		Period string `toml:"Period"`
		// Slices
		ModelTypes []string `toml:"ModelTypes"`
		// Integers
		Concurrency int `toml:"Concurrency"`
		Limit       int `toml:"Limit"`
		MaxPages    int `toml:"MaxPages"`
		// Bools (smallest)
		Nsfw         bool `toml:"Nsfw"`
		PrimaryOnly  bool `toml:"PrimaryOnly"`
		SaveMedia    bool `toml:"SaveMedia"`
		SaveMetadata bool `toml:"SaveMetadata"`
		MetaOnly     bool `toml:"MetaOnly"`
	}

	// TorrentConfig holds settings specific to the 'torrent' command.
	TorrentConfig struct {
		OutputDir   string `toml:"OutputDir"`
		Overwrite   bool   `toml:"Overwrite"`
		MagnetLinks bool   `toml:"MagnetLinks"`
		Concurrency int    `toml:"Concurrency"`
	}

	// QueryParameters for the /models list endpoint.
	QueryParameters struct {
		Cursor          string   `json:"cursor,omitempty"`
		Tag             string   `json:"tag,omitempty"`
		Username        string   `json:"username,omitempty"`
		Sort            string   `json:"sort"`
		Period          string   `json:"period"`
		Query           string   `json:"query,omitempty"`
		Types           []string `json:"types,omitempty"`
		BaseModels      []string `json:"baseModels,omitempty"`
		Limit           int      `json:"limit"`
		Nsfw            bool     `json:"nsfw"`
		PrimaryFileOnly bool     `json:"primaryFileOnly,omitempty"`
	}

	Stats struct {
		DownloadCount int     `json:"downloadCount"`
		FavoriteCount int     `json:"favoriteCount"`
		CommentCount  int     `json:"commentCount"`
		RatingCount   int     `json:"ratingCount"`
		Rating        float64 `json:"rating"`
	}

	Creator struct {
		Username string `json:"username"`
		Image    string `json:"image"`
	}

	File struct {
		// Strings first
		Name        string `json:"name"`
		Type        string `json:"type"`
		DownloadUrl string `json:"downloadUrl"`
		// Structs
		Metadata Metadata `json:"metadata"`
		Hashes   Hashes   `json:"hashes"`
		// Float64
		SizeKB float64 `json:"sizeKB"`
		// Integer
		ID int `json:"id"`
		// Bool
		Primary bool `json:"primary"`
	}

	Metadata struct {
		Fp     string `json:"fp"`
		Size   string `json:"size"`
		Format string `json:"format"`
	}

	Hashes struct {
		AutoV2 string `json:"AutoV2"`
		SHA256 string `json:"SHA256"`
		CRC32  string `json:"CRC32"`
		BLAKE3 string `json:"BLAKE3"`
	}

	// Media is a preview item (image or video) attached to a version. The API
	// occasionally returns a null id; NormalizeMedia recovers it from the URL
	// before the item reaches the layout or persistence layers.
	Media struct {
		ID        *int   `json:"id"`
		URL       string `json:"url"`
		Hash      string `json:"hash"`
		Type      string `json:"type"`
		NsfwLevel int    `json:"nsfwLevel"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	}

	ApiResponse struct {
		Items    []Model            `json:"items"`
		Metadata PaginationMetadata `json:"metadata"`
	}

	PaginationMetadata struct {
		// Strings first
		NextPage   string         `json:"nextPage"`
		PrevPage   string         `json:"prevPage"`
		NextCursor FlexibleCursor `json:"nextCursor"`
		// Integers
		TotalItems  int `json:"totalItems"`
		CurrentPage int `json:"currentPage"`
		PageSize    int `json:"pageSize"`
		TotalPages  int `json:"totalPages"`
	}

	// CacheEntry is the record persisted per version: the core projection plus
	// local bookkeeping about where its files live and whether they arrived.
	CacheEntry struct {
		Creator      Creator     `json:"creator"`
		ModelName    string      `json:"modelName"`
		ModelType    string      `json:"modelType"`
		Folder       string      `json:"folder"`
		Status       string      `json:"status"`
		ErrorDetails string      `json:"errorDetails,omitempty"`
		Version      VersionCore `json:"version"`
		Timestamp    int64       `json:"timestamp"`
		ModelID      int         `json:"modelId"`
	}
)

// Cache entry status constants
const (
	StatusPending    = "Pending"
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)
