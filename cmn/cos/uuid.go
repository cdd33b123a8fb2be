// Package cos provides common low-level types and utilities shared by every
// package in the engine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"github.com/ais-hpc/exstack/cmn/atomic"
	"github.com/teris-io/shortid"
)

// Alphabet for generating session UUIDs, similar to shortid.DEFAULT_ABC.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenShortID = 9 // as per https://github.com/teris-io/shortid#id-length

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

// GenUUID generates a collision-resistant session identifier, used to tag
// a freshly init'd ExStack/ExStack2 session so log lines and metrics from
// different peers can be correlated.
func GenUUID() (uuid string) {
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		uuid = string(rune('A'+tie%26)) + uuid
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		uuid += string(rune('a' + tie%26))
	}
	return
}

func IsValidUUID(uuid string) bool { return len(uuid) >= LenShortID }

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
