package tables

import (
	"fmt"
	"strconv"
	"strings"
)

// HistorySuffix marks obsolete auxiliary stores.
const HistorySuffix = "#history"

const (
	entitiesPrefix   = "entities#"
	propertiesPrefix = "properties#"
	linksPrefix      = "links#"
	blobsPrefix      = "blobs#"

	valueIndexInfix = "#value_idx#"
	allIndexSuffix  = "#all_idx"
	reverseSuffix   = "#reverse"
)

// EntitiesName returns the name of the entity existence store of a type.
func EntitiesName(typeID int32) string { return fmt.Sprintf("%s%d", entitiesPrefix, typeID) }

// PropertiesName returns the name of the primary property store of a type.
func PropertiesName(typeID int32) string { return fmt.Sprintf("%s%d", propertiesPrefix, typeID) }

// ValueIndexName returns the name of the value index of one property.
func ValueIndexName(typeID, propertyID int32) string {
	return fmt.Sprintf("%s%d%s%d", propertiesPrefix, typeID, valueIndexInfix, propertyID)
}

// AllPropertiesName returns the name of the all-properties index of a type.
func AllPropertiesName(typeID int32) string { return PropertiesName(typeID) + allIndexSuffix }

// LinksName returns the name of the first (forward) link index of a type.
func LinksName(typeID int32) string { return fmt.Sprintf("%s%d", linksPrefix, typeID) }

// ReverseLinksName returns the name of the second (reverse) link index.
func ReverseLinksName(typeID int32) string { return LinksName(typeID) + reverseSuffix }

// AllLinksName returns the name of the all-links index of a type.
func AllLinksName(typeID int32) string { return LinksName(typeID) + allIndexSuffix }

// BlobsName returns the name of the primary blob store of a type.
func BlobsName(typeID int32) string { return fmt.Sprintf("%s%d", blobsPrefix, typeID) }

// AllBlobsName returns the name of the all-blobs index of a type.
func AllBlobsName(typeID int32) string { return BlobsName(typeID) + allIndexSuffix }

// IsHistory reports whether name is an obsolete history store.
func IsHistory(name string) bool { return strings.HasSuffix(name, HistorySuffix) }

// ParseValueIndexName extracts the type and property id from a value index
// store name.
func ParseValueIndexName(name string) (typeID, propertyID int32, ok bool) {
	rest, found := strings.CutPrefix(name, propertiesPrefix)
	if !found {
		return 0, 0, false
	}
	t, p, found := strings.Cut(rest, valueIndexInfix)
	if !found {
		return 0, 0, false
	}
	ti, err := strconv.ParseInt(t, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	pi, err := strconv.ParseInt(p, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return int32(ti), int32(pi), true
}

// ParseLinksName extracts the type id from a first link index name.
func ParseLinksName(name string) (int32, bool) {
	rest, found := strings.CutPrefix(name, linksPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(id), true
}
