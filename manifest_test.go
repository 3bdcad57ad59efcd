// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fleetvisor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testManifest = `
listen: 0.0.0.0:8080
parallelWorkerStart: true
primary:
  name: homeserver
  command: [python, -m, synapse.app.homeserver, --config-path=hs.yaml, -D]
  blocksUntilDaemonized: true
workers:
  - name: federation_reader
    command: [python, -m, synapse.app.federation_reader, --config-path=w.yaml]
    readinessURL: localhost:8083
    env: [PYTHONUNBUFFERED=1]
    directory: /data
  - name: media_repository
    command: [python, -m, synapse.app.media_repository]
`

func TestLoadPlan(t *testing.T) {
	p, e := LoadPlan(strings.NewReader(testManifest))
	require.NoError(t, e)

	require.Equal(t, "0.0.0.0:8080", p.ListenAddress)
	require.True(t, p.ParallelWorkerStart)
	require.Equal(t, "homeserver", p.Primary.Name)
	require.True(t, p.Primary.BlocksUntilDaemonized)
	require.Len(t, p.Workers, 2)

	w := p.Workers[0]
	require.Equal(t, "federation_reader", w.Name)
	require.Equal(t, "http://localhost:8083", w.ProbeURL())
	require.Equal(t, []string{"PYTHONUNBUFFERED=1"}, w.Env)
	require.Equal(t, "/data", w.Dir)
	require.True(t, w.Polled())
	require.Equal(t, "", p.Workers[1].ReadinessURL)
}

func TestLoadPlanJson(t *testing.T) {
	js := `{"listen": "127.0.0.1:9000", "workers": [],
 "primary": {"name": "main", "command": ["/usr/bin/main"]}}`
	p, e := LoadPlan(strings.NewReader(js))
	require.NoError(t, e)
	require.Equal(t, "main", p.Primary.Name)
	require.False(t, p.ParallelWorkerStart)
	require.Empty(t, p.Workers)
}

func TestLoadPlanErrors(t *testing.T) {
	_, e := LoadPlan(strings.NewReader("listen: 1.2.3.4:5\nbogus: true\n"))
	require.Error(t, e, "unknown keys are refused")

	_, e = LoadPlan(strings.NewReader("listen: 1.2.3.4:5\nprimary:\n  name: main\n"))
	require.ErrorIs(t, e, ErrEmptyCommand)

	_, e = LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, os.IsNotExist(e))
}

func TestLoadPlanFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(name, []byte(testManifest), 0o644))
	p, e := LoadPlanFile(name)
	require.NoError(t, e)
	require.Equal(t, "homeserver", p.Primary.Name)
}
