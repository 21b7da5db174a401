package ace_test

import (
	"testing"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/stretchr/testify/assert"
)

func TestPrincipalEncoding(t *testing.T) {
	e := ace.New("r1", "alice", ace.TypeUser, ace.Read)
	assert.Equal(t, "u:alice", e.Principal())

	e = ace.New("r1", "admins", ace.TypeRole, ace.Read|ace.Write)
	assert.Equal(t, "r:admins", e.Principal())

	e = ace.New("r1", "everyone", ace.TypeOther, ace.Read)
	assert.Equal(t, "o:everyone", e.Principal())
}

func TestPermissionHas(t *testing.T) {
	p := ace.Read | ace.Write
	assert.True(t, p.Has(ace.Read))
	assert.True(t, p.Has(ace.Read|ace.Write))
	assert.False(t, p.Has(ace.Delete))
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "none", ace.Permission(0).String())
	assert.Equal(t, "read|write", (ace.Read | ace.Write).String())
}

func TestAllContainsEveryBit(t *testing.T) {
	for _, bit := range []ace.Permission{
		ace.Read, ace.Write, ace.Delete, ace.ListDeleted, ace.Undelete,
		ace.ViewVersions, ace.RetrieveBackVersion, ace.RestoreToVersion, ace.Execute,
	} {
		assert.True(t, ace.All.Has(bit))
	}
}
