package turn

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"voice-rooms/internal/app"
)

func TestCredentialsExpireInFuture(t *testing.T) {
	user, pass, err := Credentials("s3cret", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, pass)

	ts, err := strconv.ParseInt(strings.SplitN(user, ":", 2)[0], 10, 64)
	require.NoError(t, err)
	exp := time.Unix(ts, 0)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)
}

func TestCredentialsDependOnSecret(t *testing.T) {
	_, a, err := Credentials("one", time.Hour)
	require.NoError(t, err)
	_, b, err := Credentials("two", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStartAndClose(t *testing.T) {
	srv, err := Start(Config{
		Listen:   "127.0.0.1:0",
		PublicIP: "127.0.0.1",
		Realm:    "test",
		Secret:   "s3cret",
	}, app.DiscardLogger())
	require.NoError(t, err)
	assert.NotNil(t, srv.Addr())
	require.NoError(t, srv.Close())
}

func TestStartValidates(t *testing.T) {
	_, err := Start(Config{Listen: "127.0.0.1:0", PublicIP: "nope", Secret: "x"}, app.DiscardLogger())
	assert.Error(t, err)

	_, err = Start(Config{Listen: "127.0.0.1:0", PublicIP: "127.0.0.1"}, app.DiscardLogger())
	assert.Error(t, err)
}
