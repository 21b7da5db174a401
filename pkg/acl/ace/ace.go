// Package ace models a single access control entry: the unit the ACL
// evaluator in pkg/acl reasons about. An entry grants a permission bitmask
// to one principal (a user, a group, a role, or the synthetic "other"
// principal) on one resource.
package ace

import (
	"fmt"
	"strings"
)

// Permission is a bit in the permission bitmask.
type Permission uint16

// The permission bits a principal can hold on a resource.
const (
	Read Permission = 1 << iota
	Write
	Delete
	ListDeleted
	Undelete
	ViewVersions
	RetrieveBackVersion
	RestoreToVersion
	Execute
)

// All is the bitmask with every permission set, used for the creator grant
// on mkdir/touch.
const All = Read | Write | Delete | ListDeleted | Undelete | ViewVersions | RetrieveBackVersion | RestoreToVersion | Execute

// Has reports whether p contains every bit set in required.
func (p Permission) Has(required Permission) bool {
	return p&required == required
}

var names = []struct {
	bit  Permission
	name string
}{
	{Read, "read"}, {Write, "write"}, {Delete, "delete"}, {ListDeleted, "list_deleted"},
	{Undelete, "undelete"}, {ViewVersions, "view_versions"}, {RetrieveBackVersion, "retrieve_back_version"},
	{RestoreToVersion, "restore_to_version"}, {Execute, "execute"},
}

// String renders the bitmask as a "|"-joined list of its set permission names.
func (p Permission) String() string {
	var parts []string
	for _, n := range names {
		if p.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// PrincipalType is the closed set of principal kinds an ACL entry can target.
type PrincipalType string

// The principal kinds an Entry can be keyed by.
const (
	TypeUser  PrincipalType = "user"
	TypeGroup PrincipalType = "group"
	TypeRole  PrincipalType = "role"
	TypeOther PrincipalType = "other"
)

var typePrefix = map[PrincipalType]string{
	TypeUser:  "u",
	TypeGroup: "g",
	TypeRole:  "r",
	TypeOther: "o",
}

// Entry is one ACL row: (resource_uid, principal, principal_type) -> permissions.
type Entry struct {
	ResourceUID   string
	PrincipalID   string
	PrincipalType PrincipalType
	Permissions   Permission
}

// Principal renders the entry's (type, id) pair as the "t:id" form used as a
// map key and in logs, e.g. "u:alice" or "r:admins".
func (e Entry) Principal() string {
	prefix, ok := typePrefix[e.PrincipalType]
	if !ok {
		prefix = "?"
	}
	return fmt.Sprintf("%s:%s", prefix, e.PrincipalID)
}

// New builds an Entry for the given resource/principal/permissions.
func New(resourceUID, principalID string, principalType PrincipalType, perms Permission) Entry {
	return Entry{
		ResourceUID:   resourceUID,
		PrincipalID:   principalID,
		PrincipalType: principalType,
		Permissions:   perms,
	}
}
