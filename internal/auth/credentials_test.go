// Copyright 2025 Toolgate Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at.
//
//     http://www.apache.org/licenses/LICENSE-2.0.
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstituteHeadersExpandsBracedAndBareVars(t *testing.T) {
	require.NoError(t, os.Setenv("TOOLGATE_TEST_TOKEN", "abc123"))
	defer os.Unsetenv("TOOLGATE_TEST_TOKEN")

	result := SubstituteHeaders(map[string]string{
		"Authorization": "Bearer ${TOOLGATE_TEST_TOKEN}",
		"X-Bare":        "$TOOLGATE_TEST_TOKEN",
	})
	require.Equal(t, "Bearer abc123", result["Authorization"])
	require.Equal(t, "abc123", result["X-Bare"])
}

func TestMergeHeadersOverrideWins(t *testing.T) {
	base := map[string]string{"X-A": "base", "X-B": "base"}
	override := map[string]string{"X-A": "override"}
	merged := MergeHeaders(base, override)
	require.Equal(t, "override", merged["X-A"])
	require.Equal(t, "base", merged["X-B"])
}

func TestSubstituteEnvAndEnvSlice(t *testing.T) {
	require.NoError(t, os.Setenv("TOOLGATE_TEST_HOME", "/srv"))
	defer os.Unsetenv("TOOLGATE_TEST_HOME")

	env := SubstituteEnv(map[string]string{"HOME_DIR": "${TOOLGATE_TEST_HOME}/data"})
	require.Equal(t, "/srv/data", env["HOME_DIR"])

	slice := EnvSlice(env)
	require.Contains(t, slice, "HOME_DIR=/srv/data")
}

func TestHeaderRoundTripperInjectsHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: HeaderRoundTripper{Headers: map[string]string{"Authorization": "Bearer xyz"}}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "Bearer xyz", gotAuth)
}
