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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanValidate(t *testing.T) {
	good := func() LaunchPlan {
		return LaunchPlan{
			Primary:       role("main", true),
			Workers:       []Role{role("w1", false), role("w2", false)},
			ListenAddress: "0.0.0.0:8080",
		}
	}

	tests := []struct {
		name   string
		mutate func(p *LaunchPlan)
		want   error
	}{
		{"valid", func(p *LaunchPlan) {}, nil},
		{"no workers", func(p *LaunchPlan) { p.Workers = nil }, nil},
		{"duplicate", func(p *LaunchPlan) { p.Workers[1].Name = "main" }, ErrDuplicateRole},
		{"empty command", func(p *LaunchPlan) { p.Workers[0].Command = nil }, ErrEmptyCommand},
		{"blank executable", func(p *LaunchPlan) { p.Primary.Command = []string{""} }, ErrEmptyCommand},
		{"bad name", func(p *LaunchPlan) { p.Workers[0].Name = "has space" }, ErrBadRoleName},
		{"no name", func(p *LaunchPlan) { p.Primary.Name = "" }, ErrBadRoleName},
		{"no port", func(p *LaunchPlan) { p.ListenAddress = "localhost" }, ErrBadListenAddress},
		{"empty port", func(p *LaunchPlan) { p.ListenAddress = "localhost:" }, ErrBadListenAddress},
		{"port only", func(p *LaunchPlan) { p.ListenAddress = ":8080" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good()
			tt.mutate(&p)
			e := p.Validate()
			if tt.want == nil {
				require.NoError(t, e)
				return
			}
			require.Error(t, e)
			require.True(t, errors.Is(e, tt.want), "got %v", e)
			var pe *PlanError
			require.True(t, errors.As(e, &pe))
		})
	}
}

func TestPlanRoles(t *testing.T) {
	p := LaunchPlan{
		Primary: role("main", true),
		Workers: []Role{role("a", false), role("b", false)},
	}
	var names []string
	for _, r := range p.Roles() {
		names = append(names, r.Name)
	}
	require.Equal(t, []string{"main", "a", "b"}, names)
}

func TestPlanIsCopied(t *testing.T) {
	p := LaunchPlan{
		Primary:       role("main", false),
		Workers:       []Role{role("w1", false)},
		ListenAddress: "127.0.0.1:0",
	}
	s, e := New(p, WithSpawner(newFakeSpawner()))
	require.NoError(t, e)

	p.Workers[0].Name = "changed"
	p.Primary.Command[0] = "changed"

	got := s.Plan()
	require.Equal(t, "w1", got.Workers[0].Name)
	require.Equal(t, "main", got.Primary.Command[0])
}

func TestNewRejectsBadPlans(t *testing.T) {
	_, e := New(LaunchPlan{Primary: role("main", false)})
	require.ErrorIs(t, e, ErrBadListenAddress)
}

func TestErrorMessages(t *testing.T) {
	e := &WorkerStartError{Role: "w1", Err: &SpawnError{Role: "w1", Err: errors.New("boom")}}
	require.True(t, strings.Contains(e.Error(), "w1"))
	var se *SpawnError
	require.ErrorAs(t, e, &se)

	o := Outcome{Cause: CauseFatal, Err: &UnexpectedExit{Role: "w2", ExitCode: 9}}
	require.Equal(t, 1, o.ExitCode())
	require.Contains(t, o.String(), "w2")
	require.Equal(t, 0, Outcome{Cause: CauseInterrupt}.ExitCode())
}
