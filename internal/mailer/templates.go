package mailer

import (
	"fmt"
	"html"
)

// VerificationEmail renders the message carrying an email verification code.
func VerificationEmail(to, name, code string, ttlMinutes int) Message {
	greeting := greet(name)
	return Message{
		To:      to,
		Subject: "Verify your email address",
		HTML: fmt.Sprintf(`<p>%s</p>
<p>Your verification code is <strong>%s</strong>.</p>
<p>It expires in %d minutes. If you did not create an account you can ignore this email.</p>`,
			html.EscapeString(greeting), code, ttlMinutes),
		Text: fmt.Sprintf("%s\n\nYour verification code is %s.\nIt expires in %d minutes. If you did not create an account you can ignore this email.\n",
			greeting, code, ttlMinutes),
	}
}

// PasswordResetEmail renders the message carrying a password reset code.
func PasswordResetEmail(to, name, code string, ttlMinutes int) Message {
	greeting := greet(name)
	return Message{
		To:      to,
		Subject: "Reset your password",
		HTML: fmt.Sprintf(`<p>%s</p>
<p>Use the code <strong>%s</strong> to choose a new password.</p>
<p>It expires in %d minutes. If you did not ask for a reset your password has not been changed.</p>`,
			html.EscapeString(greeting), code, ttlMinutes),
		Text: fmt.Sprintf("%s\n\nUse the code %s to choose a new password.\nIt expires in %d minutes. If you did not ask for a reset your password has not been changed.\n",
			greeting, code, ttlMinutes),
	}
}

func greet(name string) string {
	if name == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", name)
}
