package common

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCurrentWorkingDirMatchesOsGetwd(t *testing.T) {
	expected, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, expected, GetCurrentWorkingDir())
}

func TestGetCurrentWorkingDirNotEmpty(t *testing.T) {
	require.NotEmpty(t, GetCurrentWorkingDir())
}
