// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by the chatsync test
// suites: channel receives with timeout safety valves, so a broken
// notification path fails a test instead of hanging it.
package testutil
