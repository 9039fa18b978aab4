package models

import "encoding/json"

// VersionKind discriminates the endpoint shape a version payload arrived in.
// Classification is purely structural: the same shape can arrive via more than
// one call path, so the originating request is never consulted.
type VersionKind int

const (
	// VersionKindList is the shape returned inside /models list pages and
	// /models/{id} detail responses. The two are identical field-for-field
	// (index + availability) and are treated as one category.
	VersionKindList VersionKind = iota
	// VersionKindStandalone is the shape returned by /model-versions/{id},
	// which carries a modelId back-reference instead of index/availability.
	VersionKindStandalone
)

func (k VersionKind) String() string {
	if k == VersionKindStandalone {
		return "standalone"
	}
	return "list"
}

// ModelVersion is a version payload from any of the known endpoints. The
// common fields are exported; fields that exist only in some shapes are kept
// behind presence-aware accessors so callers never probe raw JSON. A
// ModelVersion is built fresh from each payload and never mutated.
type ModelVersion struct {
	ID            int
	Name          string
	BaseModel     string
	BaseModelType string
	NsfwLevel     int
	Description   string
	Stats         Stats
	Files         []File
	Media         []Media

	kind         VersionKind
	publishedAt  *string
	index        *int
	availability *string
	modelID      *int
}

// versionWire mirrors the raw JSON. Pointer fields distinguish absent from
// zero, which is what the structural classification keys on.
type versionWire struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	BaseModel     string  `json:"baseModel"`
	BaseModelType *string `json:"baseModelType"`
	PublishedAt   *string `json:"publishedAt"`
	NsfwLevel     int     `json:"nsfwLevel"`
	Description   string  `json:"description"`
	Stats         Stats   `json:"stats"`
	Files         []File  `json:"files"`
	Images        []Media `json:"images"`
	Index         *int    `json:"index"`
	Availability  *string `json:"availability"`
	ModelID       *int    `json:"modelId"`
}

// UnmarshalJSON decodes a version payload and computes its kind once, at
// classification time. A modelId field marks the standalone shape; everything
// else (including a payload carrying neither discriminator) falls into the
// list/detail category so that decoding stays total.
func (v *ModelVersion) UnmarshalJSON(data []byte) error {
	var wire versionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*v = ModelVersion{
		ID:          wire.ID,
		Name:        wire.Name,
		BaseModel:   wire.BaseModel,
		NsfwLevel:   wire.NsfwLevel,
		Description: wire.Description,
		Stats:       wire.Stats,
		Files:       wire.Files,
		Media:       wire.Images,

		publishedAt:  wire.PublishedAt,
		index:        wire.Index,
		availability: wire.Availability,
		modelID:      wire.ModelID,
	}
	if wire.BaseModelType != nil {
		v.BaseModelType = *wire.BaseModelType
	}
	if wire.ModelID != nil {
		v.kind = VersionKindStandalone
	} else {
		v.kind = VersionKindList
	}
	return nil
}

// Kind reports which endpoint shape this version was classified as.
func (v ModelVersion) Kind() VersionKind {
	return v.kind
}

// ModelID returns the parent model id carried by the standalone shape.
// Absent on the list/detail shape; absence is a normal outcome, not an error.
func (v ModelVersion) ModelID() (int, bool) {
	if v.modelID == nil {
		return 0, false
	}
	return *v.modelID, true
}

// Index returns the ordinal position within the parent model, present only on
// the list/detail shape.
func (v ModelVersion) Index() (int, bool) {
	if v.index == nil {
		return 0, false
	}
	return *v.index, true
}

// Availability returns the availability label, present only on the
// list/detail shape.
func (v ModelVersion) Availability() (string, bool) {
	if v.availability == nil {
		return "", false
	}
	return *v.availability, true
}

// PublishedAt returns the publication timestamp. JSON null and field absence
// both mean "not yet published" and collapse into the same absent outcome.
func (v ModelVersion) PublishedAt() (string, bool) {
	if v.publishedAt == nil {
		return "", false
	}
	return *v.publishedAt, true
}

// VersionCore is the projection of any version shape onto the fields all
// shapes guarantee. It is plain data, safe to persist and to hand across
// package boundaries.
type VersionCore struct {
	// Strings first
	Name          string `json:"name"`
	BaseModel     string `json:"baseModel"`
	BaseModelType string `json:"baseModelType,omitempty"`
	PublishedAt   string `json:"publishedAt,omitempty"`
	Description   string `json:"description,omitempty"`
	// Structs and slices
	Stats Stats   `json:"stats"`
	Files []File  `json:"files"`
	Media []Media `json:"media"`
	// Integers
	ID        int `json:"id"`
	NsfwLevel int `json:"nsfwLevel"`
}

// Core projects the version onto its cross-shape common fields. Total by
// construction: every field it copies exists in every shape. An unpublished
// version projects to an empty PublishedAt.
func (v ModelVersion) Core() VersionCore {
	published, _ := v.PublishedAt()
	return VersionCore{
		ID:            v.ID,
		Name:          v.Name,
		BaseModel:     v.BaseModel,
		BaseModelType: v.BaseModelType,
		PublishedAt:   published,
		NsfwLevel:     v.NsfwLevel,
		Description:   v.Description,
		Stats:         v.Stats,
		Files:         v.Files,
		Media:         v.Media,
	}
}
