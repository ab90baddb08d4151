package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	knownAddress   = "5Eq1FDc9oz1tTm4MqGLdH4ajgz9eMgQ5To812axojN121DiQ"
	knownMessage   = "I solemnly swear that I am up to some good. Hotkey: " + knownAddress
	knownSignature = "0x8ee4ce50165f23b739ec55c2beeafcd273685819c32470df26b0641d15593d3b08b8aef7c391f01e7c2e34c2ee12b80df0c4b615cc0d0966be0dc81192bbc286"
)

func TestVerifyKnownSignature(t *testing.T) {
	ok, err := Verify(knownMessage, knownSignature, knownAddress)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	cases := map[string]struct {
		signature string
		address   string
	}{
		"missing 0x prefix": {signature: knownSignature[2:], address: knownAddress},
		"short signature":   {signature: knownSignature[:66], address: knownAddress},
		"not hex":           {signature: "0xzz" + knownSignature[4:], address: knownAddress},
		"bad address":       {signature: knownSignature, address: "invalid-address"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := Verify(knownMessage, tc.signature, tc.address)
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}
