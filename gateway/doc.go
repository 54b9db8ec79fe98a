// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the HTTP client for the messaging gateway's
// session API: creating backend sessions, polling their pairing
// status, fetching pairing QR codes, and deleting sessions. The
// duplex message channel (package channel) is only useful once the
// gateway reports the session connected; AwaitConnected bridges the
// two.
package gateway
