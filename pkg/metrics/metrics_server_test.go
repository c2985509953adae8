/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartMetricsServer(t *testing.T) {
	TuplesCount.WithLabelValues("metrics-test").Inc()

	ms := NewMetricsServer("127.0.0.1:0", WithReadHeaderTimeout(time.Second))
	assert.Equal(t, time.Second, ms.readHeaderTimeout)
	addr, shutdown, err := ms.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	resp, err := http.Get(fmt.Sprintf("http://%s/livez", addr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `udf_worker_tuple_total{function="metrics-test"}`)

	assert.NoError(t, shutdown(context.Background()))
}

func Test_StartMetricsServer_BadAddr(t *testing.T) {
	_, _, err := NewMetricsServer("not-an-addr").Start(context.Background())
	assert.Error(t, err)
}
