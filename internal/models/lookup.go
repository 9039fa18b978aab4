package models

// FindVersionByID returns the first version in the collection whose
// identifier matches id, regardless of which endpoint shape it is. When
// duplicates exist, collection order decides: the first match wins. The
// second return is false when no version matches.
func FindVersionByID(versions []ModelVersion, id int) (*ModelVersion, bool) {
	for i := range versions {
		if versions[i].ID == id {
			return &versions[i], true
		}
	}
	return nil, false
}

// FindFileByID returns the first file whose identifier matches id; first
// match wins on duplicates.
func FindFileByID(files []File, id int) (*File, bool) {
	for i := range files {
		if files[i].ID == id {
			return &files[i], true
		}
	}
	return nil, false
}

// FindMediaByID returns the first media item whose identifier matches id.
// Items still carrying a nil identifier (not yet normalized) never match.
func FindMediaByID(items []Media, id int) (*Media, bool) {
	for i := range items {
		if items[i].ID != nil && *items[i].ID == id {
			return &items[i], true
		}
	}
	return nil, false
}
