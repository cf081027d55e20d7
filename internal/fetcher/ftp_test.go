package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://ftp.census.gov/pub/foreign-trade/schedule.csv")
	require.NoError(t, err)
	assert.Equal(t, "ftp.census.gov:21", host)
	assert.Equal(t, "/pub/foreign-trade/schedule.csv", path)

	host, _, err = parseFTPURL("ftp://mirror.example.gov:2121/schedule.csv")
	require.NoError(t, err)
	assert.Equal(t, "mirror.example.gov:2121", host)

	_, _, err = parseFTPURL("https://ftp.census.gov/schedule.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected ftp scheme")

	_, _, err = parseFTPURL("ftp://ftp.census.gov")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty path")
}
