package replication

import (
	"fmt"
	"strings"
)

// ChangeType is the kind of change a record replays.
type ChangeType int

const (
	ChangeUnknown ChangeType = iota
	ChangeAdd
	ChangeModify
	ChangeDelete
	ChangeModRDN
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdd:
		return "add"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	case ChangeModRDN:
		return "modrdn"
	default:
		return "unknown"
	}
}

// ParseChangeType maps a replication log changetype onto a ChangeType.
func ParseChangeType(s string) (ChangeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return ChangeAdd, nil
	case "modify":
		return ChangeModify, nil
	case "delete":
		return ChangeDelete, nil
	case "modrdn", "moddn":
		return ChangeModRDN, nil
	default:
		return ChangeUnknown, fmt.Errorf("%w: %q", ErrUnknownChangeType, s)
	}
}

func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ChangeType) UnmarshalText(text []byte) error {
	ct, err := ParseChangeType(string(text))
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// Control tokens carried in ModItem.Type. Matching is exact.
const (
	TagSeparator    = "-"
	TagAdd          = "add"
	TagReplace      = "replace"
	TagDelete       = "delete"
	TagNewRDN       = "newrdn"
	TagDeleteOldRDN = "deleteoldrdn"
)

// ModItem is one type/value pair of a change record. Value may hold
// arbitrary bytes.
type ModItem struct {
	Type  string
	Value []byte
}

// Item builds a ModItem from a string value.
func Item(typ, value string) ModItem {
	return ModItem{Type: typ, Value: []byte(value)}
}

// ChangeRecord is one queued change to replay against a replica.
type ChangeRecord struct {
	DN         string
	ChangeType ChangeType
	Mods       []ModItem
}

// Fields returns log fields identifying the record.
func (r *ChangeRecord) Fields() map[string]any {
	return map[string]any{
		"dn":          r.DN,
		"change_type": r.ChangeType.String(),
		"items":       len(r.Mods),
	}
}
