package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Unknown is reported for fields an entity does not carry.
const Unknown = "<unknown>"

const (
	AnnotationOwner           = "backstage.io/owner"
	AnnotationOwnedBy         = "backstage.io/owned-by"
	AnnotationOriginLocation  = "backstage.io/origin-location"
	AnnotationManagedLocation = "backstage.io/managed-by-location"
	AnnotationLocation        = "backstage.io/location"
)

// Entity is a catalog entity as returned by the API. Items of the listing
// that are not JSON objects decode to a nil Entity.
type Entity map[string]any

func (e Entity) object(key string) map[string]any {
	if e == nil {
		return nil
	}
	m, _ := e[key].(map[string]any)
	return m
}

func (e Entity) metadata() map[string]any { return e.object("metadata") }

func (e Entity) annotations() map[string]any {
	m, _ := e.metadata()["annotations"].(map[string]any)
	return m
}

// Name returns metadata.name or Unknown.
func (e Entity) Name() string {
	v, ok := e.metadata()["name"]
	if !ok || v == nil {
		return Unknown
	}
	return Stringify(v)
}

// Kind returns the top-level kind or Unknown.
func (e Entity) Kind() string {
	if e == nil {
		return Unknown
	}
	v, ok := e["kind"]
	if !ok || v == nil {
		return Unknown
	}
	return Stringify(v)
}

// UID returns metadata.uid. An empty or absent uid reports false.
func (e Entity) UID() (string, bool) {
	v := e.metadata()["uid"]
	if !truthy(v) {
		return "", false
	}
	return Stringify(v), true
}

// Owner resolves spec.owner, then the owner and owned-by annotations.
func (e Entity) Owner() string {
	annotations := e.annotations()
	return firstPresent(
		e.object("spec")["owner"],
		annotations[AnnotationOwner],
		annotations[AnnotationOwnedBy],
	)
}

// Tags joins metadata.tags in sorted order with ";". A value that is not a
// list is stringified as-is.
func (e Entity) Tags() string {
	raw := e.metadata()["tags"]
	if !truthy(raw) {
		return ""
	}
	list, ok := raw.([]any)
	if !ok {
		return Stringify(raw)
	}
	tags := make([]string, 0, len(list))
	for _, tag := range list {
		tags = append(tags, Stringify(tag))
	}
	sort.Strings(tags)
	return strings.Join(tags, ";")
}

// Location resolves the origin, managed-by and plain location annotations
// in that order.
func (e Entity) Location() string {
	annotations := e.annotations()
	return firstPresent(
		annotations[AnnotationOriginLocation],
		annotations[AnnotationManagedLocation],
		annotations[AnnotationLocation],
	)
}

func firstPresent(candidates ...any) string {
	for _, v := range candidates {
		if truthy(v) {
			return Stringify(v)
		}
	}
	return Unknown
}

// truthy treats null, false, zero, empty strings and empty containers as
// absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Stringify renders a decoded JSON value as report text. Strings are kept
// verbatim, numbers keep their wire form and containers are re-encoded.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
