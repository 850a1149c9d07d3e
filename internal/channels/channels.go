// Package channels adapts concrete chat platforms to the kernel's
// trigger.Platform and flow.SlackSender/DiscordSender/HTTPDoer
// collaborator interfaces. Grounded on the teacher's
// internal/channels/{slack,discord,teams}/adapter.go before those
// packages were trimmed to their pre-gateway shape: spec §4.9 routes
// inbound events through one shared HTTP webhook surface
// (POST /webhook/{platform}), so these adapters only need the
// outbound-reply and signature-verification halves of what the teacher
// built — the teacher's Socket Mode / gateway-websocket listeners have
// no equivalent here.
package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aof-dev/aof/internal/exec"
)

// ErrSignatureMismatch is returned by the Verify* helpers when an
// inbound webhook's signature does not match its body.
var ErrSignatureMismatch = errors.New("channels: signature mismatch")

// VerifyHMACSHA256 checks an HMAC-SHA256 hex-encoded signature against
// body, the scheme Slack, PagerDuty, and GitHub all webhooks use (spec
// §6). prefix is stripped from signature if present (GitHub sends
// "sha256=<hex>").
func VerifyHMACSHA256(secret, signature, prefix string, body []byte) error {
	signature = strings.TrimPrefix(signature, prefix)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyJWTBearer validates a Teams "Authorization: Bearer <token>"
// header against the given HMAC secret (spec §6: "JWT Bearer Teams").
// Production Teams deployments validate against Azure AD's published
// JWKS; this accepts a pre-shared HMAC secret instead, since no OIDC
// discovery client is part of the domain stack.
func VerifyJWTBearer(secret, authorizationHeader string) error {
	token := strings.TrimPrefix(authorizationHeader, "Bearer ")
	if token == authorizationHeader {
		return fmt.Errorf("channels: missing Bearer prefix")
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	return err
}

// runApprovedCommand executes an operator-approved shell command
// (spec §4.8's approval-reaction lifecycle), shared by every platform
// adapter's RunCommand. Grounded on internal/exec's executable/argument
// safety validation, adopted here rather than re-implemented.
func runApprovedCommand(ctx context.Context, command string) (string, string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", "", fmt.Errorf("channels: empty command")
	}
	name, err := exec.SanitizeExecutableValue(fields[0])
	if err != nil {
		return "", "", fmt.Errorf("channels: unsafe executable: %w", err)
	}
	args, err := exec.SanitizeArguments(fields[1:])
	if err != nil {
		return "", "", fmt.Errorf("channels: unsafe argument: %w", err)
	}
	return runCommand(ctx, name, args)
}

func runCommand(ctx context.Context, name string, args []string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
