// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import (
	"fmt"
	"strings"
)

// Protocol tag names. User-defined tags carry the "u." prefix instead.
const (
	TagFavourite    = "m.favourite"
	TagLowPriority  = "m.lowpriority"
	TagServerNotice = "m.server_notice"
)

// NormalizeTag maps a user-typed tag name to its canonical protocol
// form. The protocol tags accept the spellings people actually type;
// anything else must be an explicit "u."-prefixed user tag.
func NormalizeTag(name string) (string, error) {
	switch name {
	case "fav", "favorite", "favourite", TagFavourite:
		return TagFavourite, nil
	case "low", "lowpriority", "low_priority", "low-priority", TagLowPriority:
		return TagLowPriority, nil
	case "servernotice", "server_notice", "server-notice", TagServerNotice:
		return TagServerNotice, nil
	}
	if strings.HasPrefix(name, "u.") && len(name) > len("u.") {
		return name, nil
	}
	return "", fmt.Errorf("invalid tag name %q (use favourite, low-priority, server-notice, or a u. prefix)", name)
}
