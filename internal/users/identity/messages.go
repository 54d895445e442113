// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/taibuivan/gatekeeper/internal/platform/mail"
)

// # Outbound Mail

func loginCodeMessage(email, code string) mail.Message {
	return mail.Message{
		To:      email,
		Subject: "Your login code",
		Body:    fmt.Sprintf("Your login code is: %s\n\nThis code expires in 10 minutes.", code),
	}
}

// resetLink builds ${APP_URL}/reset-password?token=<token>.
func resetLink(appURL, token string) string {
	return strings.TrimRight(appURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

func passwordResetMessage(email, link string) mail.Message {
	return mail.Message{
		To:      email,
		Subject: "Reset your password",
		Body: "You requested a password reset. Open the link below to set a new password:\n\n" +
			link +
			"\n\nThis link expires in 1 hour. If you did not request this, you can safely ignore this email.",
	}
}
