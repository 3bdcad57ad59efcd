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

// Package fleetvisor supervises a fleet of cooperating processes: one
// primary and any number of workers that depend upon it.
//
// The fleet is treated as a single all-or-nothing unit.  The primary is
// started first, and must be up (either by exiting cleanly after it has
// daemonized, or by answering HTTP probes) before any worker is started.
// Workers are then started, either one at a time in plan order or all at
// once, and after a short settle window every member of the fleet is
// checked again.  Only then is the fleet declared to be running, at which
// point an HTTP health endpoint is brought up so that external
// orchestration knows the deployment is live.
//
// While running, every process is watched.  The first unexpected exit
// brings the whole fleet down; there is no attempt to keep a partial
// fleet alive, because the workers cannot function without the primary
// or without each other.
//
// Readiness is a question of reachability only.  Any HTTP response, even
// a 500, means the process is accepting connections, which is all the
// supervisor cares about.
//
// The Supervisor owns every process it starts, and on shutdown it
// terminates exactly those processes and nothing else.
//
package fleetvisor
