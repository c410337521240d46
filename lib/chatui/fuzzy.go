// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"sort"
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult carries a match score and the rune positions that
// matched, for highlighting. A zero Score means no match.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// fuzzySlab is scratch space reused across matches. Not safe for
// concurrent use; the model filters rooms from the update loop only.
var fuzzySlab = util.MakeSlab(100*1024, 2048)

// The algo package requires one-time initialization of its character
// class and bonus tables before any match call; without it, uppercase
// text never folds and mixed-case input cannot match.
func init() {
	algo.Init("default")
}

// FuzzyMatch scores pattern against text with fzf's V2 algorithm,
// case-insensitively. An empty pattern matches nothing.
func FuzzyMatch(pattern, text string) FuzzyResult {
	if pattern == "" {
		return FuzzyResult{}
	}
	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(
		false, true, true, &chars, []rune(strings.ToLower(pattern)), true, fuzzySlab)
	if result.Score <= 0 || positions == nil {
		return FuzzyResult{}
	}
	matched := *positions
	sort.Ints(matched)
	return FuzzyResult{Score: result.Score, Positions: matched}
}
