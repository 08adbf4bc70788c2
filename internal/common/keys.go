package common

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	unsafeNameChars  = regexp.MustCompile(`[^A-Za-z0-9_.\-]+`)
	storedNamePrefix = regexp.MustCompile(`^\d+_`)
)

// SanitizeName replaces every run of characters outside [A-Za-z0-9_.-]
// with a single underscore.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// StoredName returns the name an upload is stored under: the upload instant
// in unix milliseconds followed by the sanitized original name.
func StoredName(at time.Time, original string) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + "_" + SanitizeName(original)
}

// OriginalName strips the upload timestamp prefix from a stored name.
// Names without the prefix are returned unchanged.
func OriginalName(stored string) string {
	return storedNamePrefix.ReplaceAllString(stored, "")
}

// Stem returns name without its final extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// AssetBaseName is the stem variants are named after, taken from a stored
// name: the timestamp prefix and the extension are removed. Names that are
// already originals go through Stem instead, since an original may itself
// start with digits and an underscore.
func AssetBaseName(name string) string {
	return Stem(OriginalName(name))
}

// ObjectKey joins namespace, owner and name into an object key.
func ObjectKey(namespace, ownerID, name string) string {
	return namespace + "/" + ownerID + "/" + name
}

// NamespacePrefix returns the listing prefix for one owner, or for every
// owner when ownerID is empty.
func NamespacePrefix(namespace, ownerID string) string {
	if ownerID == "" {
		return namespace + "/"
	}
	return namespace + "/" + ownerID + "/"
}

// SplitKey breaks a key produced by ObjectKey back into its parts.
// ok is false for keys that do not have exactly three segments.
func SplitKey(key string) (namespace, ownerID, name string, ok bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	if strings.Contains(parts[2], "/") {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
