package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxrelay/internal/secret"
)

func TestClient_SetCredentialsSeals(t *testing.T) {
	box, err := secret.NewBox("test-key")
	require.NoError(t, err)

	var c Client
	require.NoError(t, c.SetCredentials(box, "+15550100", "s3cret"))
	assert.NotEqual(t, "s3cret", c.LinkedInPassword)
	assert.NotEqual(t, "+15550100", c.LinkedInPhone)

	phone, err := box.Open(c.LinkedInPhone)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", phone)
	pw, err := box.Open(c.LinkedInPassword)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}
