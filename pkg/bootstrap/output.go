package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// PrintBootstrapResult writes the created admin account to w. Nothing is
// written when no account was created.
func PrintBootstrapResult(w io.Writer, result *AdminBootstrapResult) {
	if result == nil || !result.Created {
		return
	}

	border := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\n", border)
	fmt.Fprintln(w, "ADMIN ACCOUNT CREATED")
	fmt.Fprintf(w, "%s\n", border)

	fmt.Fprintf(w, "  Email:      %s\n", result.Email)
	fmt.Fprintf(w, "  Account ID: %s\n", result.AccountID)
	fmt.Fprintf(w, "  Roles:      %s\n", strings.Join(result.Roles, ", "))
	if result.PasswordFromEnv {
		fmt.Fprintln(w, "  Password:   (configured via ADMIN_PASSWORD)")
	} else {
		fmt.Fprintf(w, "  Password:   %s\n", result.Password)
		fmt.Fprintln(w, "\n  This password is shown once. The first login must change it")
		fmt.Fprintln(w, "  and set up a PIN on the device used.")
	}
	fmt.Fprintf(w, "%s\n\n", border)
}

// LogBootstrapSummary logs the result without the password.
func LogBootstrapSummary(result *AdminBootstrapResult) {
	if result == nil || !result.Created {
		return
	}
	slog.Info("Admin bootstrap summary",
		"accountID", result.AccountID,
		"email", result.Email,
		"roles", result.Roles,
		"password_from_env", result.PasswordFromEnv,
	)
}
