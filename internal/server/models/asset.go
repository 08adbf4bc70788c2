// Package models defines server-side data models persisted in the metadata
// store or returned by the object store.
package models

import "time"

// Asset is the catalog record of one uploaded original. It is addressed by
// (OwnerID, Filename), where Filename is the sanitized original name.
type Asset struct {
	OwnerID  string `json:"owner"`
	Filename string `json:"filename"`
	// StorageKey is the object key of the stored upload.
	StorageKey string `json:"storageKey"`
	// Checksum is the hex BLAKE3 digest of the uploaded bytes, when known.
	Checksum string `json:"checksum,omitempty"`
	Size     int64  `json:"size"`
	// Processed lists variant names in creation order, without duplicates.
	Processed        []string   `json:"processed"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	LastTranscodedAt *time.Time `json:"lastTranscodedAt,omitempty"`
	// LastFailure is only populated when failure recording is enabled.
	LastFailure *Failure `json:"lastFailure,omitempty"`
}

// HasVariant reports whether name is already cataloged.
func (a *Asset) HasVariant(name string) bool {
	for _, v := range a.Processed {
		if v == name {
			return true
		}
	}
	return false
}

// Failure describes the most recent failed transcode of an asset.
type Failure struct {
	Variant string    `json:"variant"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// VariantRecord is one successful transcode to be appended to an asset.
// StorageKey is only used when the asset has no record yet.
type VariantRecord struct {
	OwnerID    string
	Filename   string
	StorageKey string
	Variant    string
	At         time.Time
}

// AppendUnique returns list with name appended unless already present.
func AppendUnique(list []string, name string) []string {
	for _, v := range list {
		if v == name {
			return list
		}
	}
	return append(list, name)
}
