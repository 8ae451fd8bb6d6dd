package replication

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// ModOp is the operation applied by an AttributeGroup. Values match the
// go-ldap change operations.
type ModOp uint

const (
	ModAdd     ModOp = ldap.AddAttribute
	ModDelete  ModOp = ldap.DeleteAttribute
	ModReplace ModOp = ldap.ReplaceAttribute
)

func (op ModOp) String() string {
	switch op {
	case ModAdd:
		return TagAdd
	case ModDelete:
		return TagDelete
	case ModReplace:
		return TagReplace
	default:
		return fmt.Sprintf("op(%d)", uint(op))
	}
}

// AttributeGroup is one attribute operation of a modify request.
type AttributeGroup struct {
	Op     ModOp
	Type   string
	Values [][]byte
}

// CompiledOperation is the ordered list of attribute operations for a modify.
type CompiledOperation struct {
	Groups []AttributeGroup
}

// ModifyRequest builds the go-ldap request for dn.
func (c *CompiledOperation) ModifyRequest(dn string) *ldap.ModifyRequest {
	req := ldap.NewModifyRequest(dn, nil)
	for _, g := range c.Groups {
		vals := make([]string, len(g.Values))
		for i, v := range g.Values {
			vals[i] = string(v)
		}
		req.Changes = append(req.Changes, ldap.Change{
			Operation: uint(g.Op),
			Modification: ldap.PartialAttribute{
				Type: g.Type,
				Vals: vals,
			},
		})
	}
	return req
}

// Fields describes the groups for trace logging. Values are reported by
// length only.
func (c *CompiledOperation) Fields() map[string]any {
	groups := make([]map[string]any, 0, len(c.Groups))
	for _, g := range c.Groups {
		lengths := make([]int, len(g.Values))
		for i, v := range g.Values {
			lengths[i] = len(v)
		}
		groups = append(groups, map[string]any{
			"op":            g.Op.String(),
			"type":          g.Type,
			"value_lengths": lengths,
		})
	}
	return map[string]any{"groups": groups}
}

type tagClass int

const (
	classAttribute tagClass = iota
	classSeparator
	classOperator
)

type compilerState int

const (
	awaitingOp compilerState = iota
	inGroup
)

func classifyTag(tag string) (tagClass, ModOp) {
	switch tag {
	case TagSeparator:
		return classSeparator, 0
	case TagAdd:
		return classOperator, ModAdd
	case TagReplace:
		return classOperator, ModReplace
	case TagDelete:
		return classOperator, ModDelete
	default:
		return classAttribute, 0
	}
}

// CompileModify turns the items of a modify record into attribute groups.
//
// An operator item opens a group whose attribute type is the item value.
// Following items must name that type and contribute values. Separators are
// ignored, so values after a stray separator still join the open group.
// Empty add and replace groups are dropped; an empty delete removes the whole
// attribute and is kept.
func CompileModify(ctx context.Context, mods []ModItem) (*CompiledOperation, error) {
	var (
		groups []AttributeGroup
		state  = awaitingOp
	)

	for i, item := range mods {
		class, op := classifyTag(item.Type)

		switch class {
		case classSeparator:
			continue

		case classOperator:
			groups = append(groups, AttributeGroup{
				Op:   op,
				Type: string(item.Value),
			})
			state = inGroup

		case classAttribute:
			if state != inGroup {
				return nil, fmt.Errorf("%w: item %d %q", ErrOperatorExpected, i, item.Type)
			}
			g := &groups[len(groups)-1]
			if !strings.EqualFold(item.Type, g.Type) {
				return nil, fmt.Errorf("%w: %q (expecting %q)", ErrAttributeMismatch, item.Type, g.Type)
			}
			g.Values = append(g.Values, bytes.Clone(item.Value))
		}
	}

	kept := groups[:0]
	for _, g := range groups {
		if len(g.Values) == 0 && g.Op != ModDelete {
			tflog.SubsystemDebug(ctx, ldapclient.SubsystemReplication, "Dropping modify operation without values", map[string]any{
				"op":   g.Op.String(),
				"type": g.Type,
			})
			continue
		}
		kept = append(kept, g)
	}

	if len(kept) == 0 {
		return nil, ErrNoModifications
	}

	return &CompiledOperation{Groups: kept}, nil
}
