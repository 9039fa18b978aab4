package models

import "encoding/json"

// ModelKind discriminates the endpoint shape a model payload arrived in.
type ModelKind int

const (
	// ModelKindDetail is the /models/{id} shape. A model with zero versions
	// is ambiguous and defaults here; the choice is deterministic rather than
	// observed behavior (see DESIGN.md).
	ModelKindDetail ModelKind = iota
	// ModelKindList is the shape of items inside /models list pages.
	ModelKindList
)

func (k ModelKind) String() string {
	if k == ModelKindList {
		return "list"
	}
	return "detail"
}

// Model is a model payload from either endpoint. As with ModelVersion, the
// kind is computed once at decode time from structure alone: a model is
// list-shaped exactly when its first version is list/detail-shaped.
type Model struct {
	ID          int
	Name        string
	Type        string
	Description string
	Nsfw        bool
	NsfwLevel   int
	Tags        []string
	Creator     Creator
	Stats       Stats
	Versions    []ModelVersion

	kind ModelKind
}

type modelWire struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Description   string         `json:"description"`
	Nsfw          bool           `json:"nsfw"`
	NsfwLevel     int            `json:"nsfwLevel"`
	Tags          []string       `json:"tags"`
	Creator       Creator        `json:"creator"`
	Stats         Stats          `json:"stats"`
	ModelVersions []ModelVersion `json:"modelVersions"`
}

// UnmarshalJSON decodes a model payload and classifies it structurally.
func (m *Model) UnmarshalJSON(data []byte) error {
	var wire modelWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*m = Model{
		ID:          wire.ID,
		Name:        wire.Name,
		Type:        wire.Type,
		Description: wire.Description,
		Nsfw:        wire.Nsfw,
		NsfwLevel:   wire.NsfwLevel,
		Tags:        wire.Tags,
		Creator:     wire.Creator,
		Stats:       wire.Stats,
		Versions:    wire.ModelVersions,
		kind:        ModelKindDetail,
	}
	if len(wire.ModelVersions) > 0 && wire.ModelVersions[0].Kind() == VersionKindList {
		m.kind = ModelKindList
	}
	return nil
}

// Kind reports which endpoint shape this model was classified as.
func (m Model) Kind() ModelKind {
	return m.kind
}

// ModelCore is the projection of either model shape onto the common field
// set, with versions projected to their cores in turn.
type ModelCore struct {
	// Strings first
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	// Slices and structs
	Tags     []string      `json:"tags"`
	Creator  Creator       `json:"creator"`
	Stats    Stats         `json:"stats"`
	Versions []VersionCore `json:"versions"`
	// Integers
	ID        int `json:"id"`
	NsfwLevel int `json:"nsfwLevel"`
	// Bool
	Nsfw bool `json:"nsfw"`
}

// Core projects the model onto its cross-shape common fields. Total: both
// shapes carry every copied field.
func (m Model) Core() ModelCore {
	core := ModelCore{
		ID:          m.ID,
		Name:        m.Name,
		Type:        m.Type,
		Description: m.Description,
		Nsfw:        m.Nsfw,
		NsfwLevel:   m.NsfwLevel,
		Tags:        m.Tags,
		Creator:     m.Creator,
		Stats:       m.Stats,
	}
	if len(m.Versions) > 0 {
		core.Versions = make([]VersionCore, len(m.Versions))
		for i, v := range m.Versions {
			core.Versions[i] = v.Core()
		}
	}
	return core
}
