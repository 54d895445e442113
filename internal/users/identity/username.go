// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"strconv"
	"strings"

	"github.com/taibuivan/gatekeeper/internal/platform/sec"
	"github.com/taibuivan/gatekeeper/pkg/slug"
)

// usernameBase derives the first username candidate for a provider sign-up.
// The display name is tried first, then the email local part; each is folded
// to lowercase ASCII alphanumerics and cut to [SynthesizedUsernameBaseLength].
// When neither yields [UsernameMinLength] characters the base is "user".
func usernameBase(displayName, email string) string {
	localPart, _, _ := strings.Cut(email, "@")

	for _, source := range []string{displayName, localPart} {
		base := slug.Compact(strings.TrimSpace(source))
		if len(base) > SynthesizedUsernameBaseLength {
			base = base[:SynthesizedUsernameBaseLength]
		}
		if len(base) >= UsernameMinLength {
			return base
		}
	}
	return fallbackUsernameBase
}

// suffixedUsername appends a random four digit suffix to base.
func suffixedUsername(base string) (string, error) {
	suffix, err := sec.RandomInt(1000, 9999)
	if err != nil {
		return "", err
	}
	return base + strconv.Itoa(suffix), nil
}
