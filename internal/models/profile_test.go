package models

import (
	"testing"

	"commandForge/internal/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileDefaultsAndTitle(t *testing.T) {
	p := ConnectionProfile{Host: " example.org ", User: "root"}

	assert.Equal(t, "example.org:22", p.Address())
	assert.Equal(t, "root@example.org:22", p.Title())
	assert.Equal(t, Identity{Host: "example.org", Port: 22, User: "root"}, p.Identity())

	p.Name = "prod"
	assert.Equal(t, "prod", p.Title())
}

func TestProfileAddressIPv6(t *testing.T) {
	p := ConnectionProfile{Host: "::1", Port: 2222, User: "u"}
	assert.Equal(t, "[::1]:2222", p.Address())
}

func TestProfileIdentityIgnoresNameAndCredential(t *testing.T) {
	a := ConnectionProfile{Name: "a", Host: "h", User: "u", Password: "x"}
	b := ConnectionProfile{Name: "b", Host: "h", Port: 22, User: "u", Password: "y"}
	assert.Equal(t, a.Identity(), b.Identity())
}

func TestProfileValidate(t *testing.T) {
	assert.NoError(t, ConnectionProfile{Host: "h", User: "u"}.Validate())
	assert.Error(t, ConnectionProfile{User: "u"}.Validate())
	assert.Error(t, ConnectionProfile{Host: "h"}.Validate())
	assert.Error(t, ConnectionProfile{Host: "h", User: "u", Port: 70000}.Validate())
}

func TestSealedOpened(t *testing.T) {
	c, err := crypto.NewCipher("master")
	require.NoError(t, err)

	p := ConnectionProfile{Host: "h", User: "u", Password: "pw"}
	sealed, err := p.Sealed(c)
	require.NoError(t, err)
	assert.True(t, crypto.IsSealed(sealed.Password))
	assert.Equal(t, "pw", p.Password, "original left untouched")

	again, err := sealed.Sealed(c)
	require.NoError(t, err)
	assert.Equal(t, sealed.Password, again.Password)

	opened, err := sealed.Opened(c)
	require.NoError(t, err)
	assert.Equal(t, "pw", opened.Password)

	_, err = sealed.Opened(nil)
	assert.ErrorIs(t, err, ErrMasterKeyRequired)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want ConnectionProfile
	}{
		{"root@example.org", ConnectionProfile{User: "root", Host: "example.org", Port: 22}},
		{"deploy@10.0.0.5:2222", ConnectionProfile{User: "deploy", Host: "10.0.0.5", Port: 2222}},
		{"u@[::1]:2200", ConnectionProfile{User: "u", Host: "::1", Port: 2200}},
		{"u@::1", ConnectionProfile{User: "u", Host: "::1", Port: 22}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "example.org", "@host", "user@", "u@h:0", "u@h:http"} {
		_, err := ParseTarget(bad)
		assert.Error(t, err, bad)
	}
}
