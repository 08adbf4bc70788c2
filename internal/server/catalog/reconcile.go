package catalog

import (
	"sort"
	"strings"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

// Provenance tells how the original of a variant was determined.
type Provenance string

const (
	// ProvenanceCataloged: the asset record lists the variant.
	ProvenanceCataloged Provenance = "cataloged"
	// ProvenanceMatched: the variant name starts with a known upload stem.
	ProvenanceMatched Provenance = "matched"
	// ProvenanceInferred: nothing matched; the variant stem stands in.
	ProvenanceInferred Provenance = "inferred"
)

// Inference is the result of InferOriginal.
type Inference struct {
	Original string
	Tag      string
	Matched  bool
}

// InferOriginal splits a variant name into {base}_{tag} on the first
// underscore whose prefix is a key of known, which maps upload stems to
// upload filenames. Without a match the variant stem is returned as the
// original and the tag is empty.
func InferOriginal(variantName string, known map[string]string) Inference {
	stem := common.Stem(variantName)
	for i := 0; i < len(stem); i++ {
		if stem[i] != '_' {
			continue
		}
		if original, ok := known[stem[:i]]; ok {
			return Inference{Original: original, Tag: stem[i+1:], Matched: true}
		}
	}
	return Inference{Original: stem}
}

// ProcessedItem is one reconciled entry of the processed listing.
type ProcessedItem struct {
	Key          string     `json:"key"`
	Owner        string     `json:"owner"`
	Name         string     `json:"name"`
	Original     string     `json:"original"`
	Tag          string     `json:"tag"`
	Provenance   Provenance `json:"provenance"`
	Size         int64      `json:"size"`
	LastModified string     `json:"lastModified"`
}

const listingTimeLayout = "2006-01-02T15:04:05Z07:00"

// knownStems maps, per owner, every stem a variant may have been named
// after to the filename reported as its original. Later uploads of the same
// name win.
func knownStems(uploads []models.Object, records []*models.Asset) map[string]map[string]string {
	known := map[string]map[string]string{}
	add := func(owner, stem, original string) {
		if known[owner] == nil {
			known[owner] = map[string]string{}
		}
		known[owner][stem] = original
	}

	for _, a := range records {
		add(a.OwnerID, common.Stem(a.Filename), a.Filename)
	}

	sorted := append([]models.Object(nil), uploads...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastModified.Before(sorted[j].LastModified)
	})
	for _, o := range sorted {
		_, owner, name, ok := common.SplitKey(o.Key)
		if !ok {
			continue
		}
		original := common.OriginalName(name)
		add(owner, common.AssetBaseName(name), original)
		if stored := common.Stem(name); stored != common.AssetBaseName(name) {
			add(owner, stored, name)
		}
	}
	return known
}

// Reconcile joins processed objects with the upload listing and the asset
// records of the same scope. Explicit catalog links win over naming
// inference. Items keep the order of processed; keys that do not follow the
// {namespace}/{owner}/{name} layout are skipped.
func Reconcile(processed, uploads []models.Object, records []*models.Asset) []ProcessedItem {
	links := map[string]map[string]string{}
	for _, a := range records {
		for _, v := range a.Processed {
			if links[a.OwnerID] == nil {
				links[a.OwnerID] = map[string]string{}
			}
			links[a.OwnerID][v] = a.Filename
		}
	}
	known := knownStems(uploads, records)

	items := make([]ProcessedItem, 0, len(processed))
	for _, o := range processed {
		_, owner, name, ok := common.SplitKey(o.Key)
		if !ok {
			continue
		}
		item := ProcessedItem{
			Key:          o.Key,
			Owner:        owner,
			Name:         name,
			Size:         o.Size,
			LastModified: o.LastModified.UTC().Format(listingTimeLayout),
		}

		if original, ok := links[owner][name]; ok {
			item.Original = original
			item.Tag = strings.TrimPrefix(common.Stem(name), common.Stem(original)+"_")
			item.Provenance = ProvenanceCataloged
		} else {
			inf := InferOriginal(name, known[owner])
			item.Original = inf.Original
			item.Tag = inf.Tag
			item.Provenance = ProvenanceInferred
			if inf.Matched {
				item.Provenance = ProvenanceMatched
			}
		}
		items = append(items, item)
	}
	return items
}
