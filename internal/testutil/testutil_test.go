package testutil_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/testutil"
)

func TestStartRedisReturnsMappedAddress(t *testing.T) {
	addr := testutil.StartRedis(t)

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	require.NotEmpty(t, host)
	_, err = strconv.Atoi(port)
	require.NoError(t, err, "port %q is not numeric", port)

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
