// Package idmap translates external node ids into the dense internal id space
// used by every graph structure, and records the labels of each node.
package idmap

import (
	"fmt"
	"strings"

	qerrors "github.com/23skdu/quiver/internal/errors"
)

// NotFound is returned for ids that are not part of a map.
const NotFound int64 = -1

// IDMap is the immutable mapping between external (original) node ids and
// dense mapped ids in [0, NodeCount).
type IDMap interface {
	// ToMapped returns the mapped id of original, or NotFound.
	ToMapped(original int64) int64
	// ToOriginal returns the original id of mapped, or NotFound.
	ToOriginal(mapped int64) int64
	Contains(original int64) bool
	NodeCount() int64
	// HighestOriginalID is the largest original id in the map, -1 when empty.
	HighestOriginalID() int64
	Type() Type

	Labels(mapped int64) []string
	HasLabel(mapped int64, label string) bool
	AvailableLabels() []string

	// RootIDMap returns the unfiltered map this map was derived from, or the
	// map itself.
	RootIDMap() IDMap
	// ToRootNodeID translates a mapped id of this map into the root map.
	ToRootNodeID(mapped int64) int64
	// WithFilteredLabels derives a map over the nodes carrying any of labels.
	WithFilteredLabels(labels []string) (IDMap, error)

	SizeInBytes() int64
}

// Type selects the identifier mapping strategy.
type Type int

const (
	// Auto picks a strategy from the node count and highest original id.
	Auto Type = iota
	// Array keeps a dense array of original ids and a sparse reverse index.
	Array
	// Bitmap keeps a membership bitset over the original id range and
	// translates by rank. Mapped ids follow original id order.
	Bitmap
	// HighLimit maps arbitrary 64 bit ids into an intermediate id space
	// first and wraps an Array map over it.
	HighLimit
)

var typeNames = map[Type]string{
	Auto:      "auto",
	Array:     "array",
	Bitmap:    "bitmap",
	HighLimit: "highlimit",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType parses a strategy name, case insensitively.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return Auto, qerrors.NewValidationError("idmap.parse_type", fmt.Sprintf("unknown id map type %q", s))
}

// Decode implements envconfig.Decoder.
func (t *Type) Decode(value string) error {
	parsed, err := ParseType(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// labeled is shared by the root maps, which delegate label queries to their
// frozen label information.
type labeled struct {
	labels *LabelInformation
}

func (l labeled) Labels(mapped int64) []string {
	return l.labels.LabelsOf(mapped)
}

func (l labeled) HasLabel(mapped int64, label string) bool {
	return l.labels.HasLabel(mapped, label)
}

func (l labeled) AvailableLabels() []string {
	return l.labels.Available()
}
