package replication

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/replicad/internal/ldap"
)

// Dispatcher turns a change record into one LDAP request on the target's
// session and classifies the result.
type Dispatcher struct{}

// NewDispatcher creates a Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Apply performs rec against target. Malformed records are rejected without
// contacting the replica.
func (d *Dispatcher) Apply(ctx context.Context, target *ldapclient.ReplicaTarget, rec *ChangeRecord) Outcome {
	fields := rec.Fields()
	fields["replica"] = target.String()

	var (
		operation string
		send      func(conn ldapclient.Conn) error
	)

	switch rec.ChangeType {
	case ChangeAdd:
		req, err := BuildAddRequest(rec)
		if err != nil {
			return d.reject(ctx, rec, err, fields)
		}
		operation = "add"
		send = func(conn ldapclient.Conn) error { return conn.Add(req) }

	case ChangeModify:
		compiled, err := CompileModify(ctx, rec.Mods)
		if err != nil {
			return d.reject(ctx, rec, err, fields)
		}
		tflog.SubsystemTrace(ctx, ldapclient.SubsystemReplication, "Compiled modify operation", compiled.Fields())
		req := compiled.ModifyRequest(rec.DN)
		operation = "modify"
		send = func(conn ldapclient.Conn) error { return conn.Modify(req) }

	case ChangeDelete:
		req := ldap.NewDelRequest(rec.DN, nil)
		operation = "delete"
		send = func(conn ldapclient.Conn) error { return conn.Del(req) }

	case ChangeModRDN:
		req, err := BuildModifyDNRequest(rec)
		if err != nil {
			return d.reject(ctx, rec, err, fields)
		}
		fields["new_rdn"] = req.NewRDN
		fields["delete_old_rdn"] = req.DeleteOldRDN
		if newDN, err := ldapclient.RenamedDN(rec.DN, req.NewRDN); err == nil {
			fields["new_dn"] = newDN
		}
		operation = "modrdn"
		send = func(conn ldapclient.Conn) error { return conn.ModifyDN(req) }

	default:
		return d.reject(ctx, rec, fmt.Errorf("%w: %d", ErrUnknownChangeType, int(rec.ChangeType)), fields)
	}

	conn := target.Session()
	if conn == nil {
		return Outcome{
			Status:  StatusRetryable,
			Code:    ldap.LDAPResultServerDown,
			Message: ldapclient.ErrorString(ldap.LDAPResultServerDown),
			Err:     fmt.Errorf("no session to %s", target),
		}
	}

	err := ldapclient.LogOperation(ctx, ldapclient.SubsystemReplication, operation, fields, func() error {
		return send(conn)
	})

	out := classifyResult(operation, rec.DN, err)
	if out.Status == StatusFatal {
		ldapclient.LogLDAPError(ctx, ldapclient.SubsystemReplication, operation, err, fields)
	}
	return out
}

func (d *Dispatcher) reject(ctx context.Context, rec *ChangeRecord, err error, fields map[string]any) Outcome {
	fields["error"] = err.Error()
	tflog.SubsystemError(ctx, ldapclient.SubsystemReplication, "Rejecting change record", fields)
	return rejectRecord(rec, err)
}

// BuildAddRequest creates an add request carrying every item of rec as an
// attribute value. Items of the same type are merged in first-seen order.
func BuildAddRequest(rec *ChangeRecord) (*ldap.AddRequest, error) {
	if len(rec.Mods) == 0 {
		return nil, ErrNoModifications
	}

	req := ldap.NewAddRequest(rec.DN, nil)
	index := make(map[string]int, len(rec.Mods))
	for _, item := range rec.Mods {
		key := strings.ToLower(item.Type)
		if i, ok := index[key]; ok {
			req.Attributes[i].Vals = append(req.Attributes[i].Vals, string(item.Value))
			continue
		}
		index[key] = len(req.Attributes)
		req.Attribute(item.Type, []string{string(item.Value)})
	}
	return req, nil
}

// BuildModifyDNRequest creates a rename request from the newrdn and
// deleteoldrdn items of rec. Any other item rejects the record.
func BuildModifyDNRequest(rec *ChangeRecord) (*ldap.ModifyDNRequest, error) {
	if len(rec.Mods) == 0 {
		return nil, ErrMissingArgument
	}

	var (
		newRDN            string
		deleteOld         bool
		haveRDN, haveFlag bool
	)

	for _, item := range rec.Mods {
		switch item.Type {
		case TagNewRDN:
			newRDN = string(item.Value)
			haveRDN = true
		case TagDeleteOldRDN:
			switch string(item.Value) {
			case "0":
				deleteOld = false
			case "1":
				deleteOld = true
			default:
				return nil, fmt.Errorf("%w: %q", ErrIncorrectArgument, item.Value)
			}
			haveFlag = true
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrBadValue, item.Type)
		}
	}

	if !haveRDN || !haveFlag {
		return nil, ErrMissingArgument
	}

	return ldap.NewModifyDNRequest(rec.DN, newRDN, deleteOld, ""), nil
}
