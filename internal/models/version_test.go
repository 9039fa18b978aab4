package models

import (
	"encoding/json"
	"testing"
)

func TestModelVersionClassification(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected VersionKind
	}{
		{
			name:     "standalone shape with modelId",
			payload:  `{"id": 789, "name": "v1.0", "modelId": 456, "baseModel": "SD 1.5"}`,
			expected: VersionKindStandalone,
		},
		{
			name:     "list shape with index and availability",
			payload:  `{"id": 789, "name": "v1.0", "index": 0, "availability": "Public"}`,
			expected: VersionKindList,
		},
		{
			name:     "detail shape is classified as list",
			payload:  `{"id": 789, "name": "v1.0", "index": 2, "availability": "EarlyAccess"}`,
			expected: VersionKindList,
		},
		{
			name:     "neither discriminator defaults to list",
			payload:  `{"id": 789, "name": "v1.0"}`,
			expected: VersionKindList,
		},
		{
			name:     "modelId zero is still standalone",
			payload:  `{"id": 789, "modelId": 0}`,
			expected: VersionKindStandalone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v ModelVersion
			if err := json.Unmarshal([]byte(tt.payload), &v); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if v.Kind() != tt.expected {
				t.Errorf("Expected kind %s, got %s", tt.expected, v.Kind())
			}
		})
	}
}

func TestModelVersionAccessorExclusivity(t *testing.T) {
	var standalone ModelVersion
	if err := json.Unmarshal([]byte(`{"id": 789, "modelId": 456}`), &standalone); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if id, ok := standalone.ModelID(); !ok || id != 456 {
		t.Errorf("Expected ModelID (456, true), got (%d, %t)", id, ok)
	}
	if _, ok := standalone.Index(); ok {
		t.Error("Expected Index to be absent on standalone shape")
	}
	if _, ok := standalone.Availability(); ok {
		t.Error("Expected Availability to be absent on standalone shape")
	}

	var list ModelVersion
	if err := json.Unmarshal([]byte(`{"id": 789, "index": 1, "availability": "Public"}`), &list); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if _, ok := list.ModelID(); ok {
		t.Error("Expected ModelID to be absent on list shape")
	}
	if idx, ok := list.Index(); !ok || idx != 1 {
		t.Errorf("Expected Index (1, true), got (%d, %t)", idx, ok)
	}
	if avail, ok := list.Availability(); !ok || avail != "Public" {
		t.Errorf("Expected Availability (Public, true), got (%q, %t)", avail, ok)
	}
}

func TestModelVersionPublishedAt(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantValue   string
		wantPresent bool
	}{
		{
			name:        "present timestamp",
			payload:     `{"id": 1, "publishedAt": "2024-01-15T10:30:00.000Z"}`,
			wantValue:   "2024-01-15T10:30:00.000Z",
			wantPresent: true,
		},
		{
			name:        "explicit null means unpublished",
			payload:     `{"id": 1, "publishedAt": null}`,
			wantPresent: false,
		},
		{
			name:        "absent field means unpublished",
			payload:     `{"id": 1}`,
			wantPresent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v ModelVersion
			if err := json.Unmarshal([]byte(tt.payload), &v); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			got, ok := v.PublishedAt()
			if ok != tt.wantPresent {
				t.Errorf("Expected presence %t, got %t", tt.wantPresent, ok)
			}
			if got != tt.wantValue {
				t.Errorf("Expected value %q, got %q", tt.wantValue, got)
			}
		})
	}
}

func TestVersionCoreProjection(t *testing.T) {
	payload := `{
		"id": 789,
		"name": "v2.0",
		"baseModel": "SDXL 1.0",
		"baseModelType": "Standard",
		"publishedAt": "2024-03-01T00:00:00.000Z",
		"nsfwLevel": 1,
		"description": "second release",
		"modelId": 456,
		"stats": {"downloadCount": 10},
		"files": [{"id": 123, "name": "test model.safetensors", "primary": true}],
		"images": [{"id": 111, "url": "https://img.example/111.jpeg", "type": "image"}]
	}`

	var v ModelVersion
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	core := v.Core()
	if core.ID != 789 || core.Name != "v2.0" || core.BaseModel != "SDXL 1.0" {
		t.Errorf("Core identity fields wrong: %+v", core)
	}
	if core.BaseModelType != "Standard" {
		t.Errorf("Expected BaseModelType Standard, got %q", core.BaseModelType)
	}
	if core.PublishedAt != "2024-03-01T00:00:00.000Z" {
		t.Errorf("Expected PublishedAt carried over, got %q", core.PublishedAt)
	}
	if core.Stats.DownloadCount != 10 {
		t.Errorf("Expected stats carried over, got %+v", core.Stats)
	}
	if len(core.Files) != 1 || core.Files[0].ID != 123 {
		t.Errorf("Expected one file with id 123, got %+v", core.Files)
	}
	if len(core.Media) != 1 || core.Media[0].URL != "https://img.example/111.jpeg" {
		t.Errorf("Expected one media item, got %+v", core.Media)
	}

	// The projection must marshal as plain data.
	if _, err := json.Marshal(core); err != nil {
		t.Fatalf("Marshaling core failed: %v", err)
	}
}

func TestVersionCoreUnpublished(t *testing.T) {
	var v ModelVersion
	if err := json.Unmarshal([]byte(`{"id": 1, "publishedAt": null}`), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if core := v.Core(); core.PublishedAt != "" {
		t.Errorf("Expected empty PublishedAt for unpublished version, got %q", core.PublishedAt)
	}
}
