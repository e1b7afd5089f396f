// Package remediation attaches mitigation guidance to findings.
package remediation

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/conduct/pkg/models"
)

// DefaultAdvice is used when no template matches a finding.
const DefaultAdvice = "Generic security hardening recommended."

// Template is a mitigation recommendation with an optional example snippet.
type Template struct {
	Key     string
	Advice  string
	Snippet string
}

// Templates are the built-in mitigation templates by key.
var Templates = map[string]Template{
	"sqli": {
		Key:     "sqli",
		Advice:  "Use parameterized queries or ORM-based abstraction layers.",
		Snippet: "## [FIX] Parameterized query\nrow := db.QueryRowContext(ctx, \"SELECT id FROM users WHERE name = ?\", name)",
	},
	"xss": {
		Key:     "xss",
		Advice:  "Implement context-aware output encoding and Content Security Policy (CSP).",
		Snippet: "## [FIX] Response header\nContent-Security-Policy: default-src 'self'",
	},
	"s3_public": {
		Key:    "s3_public",
		Advice: "Restrict S3 bucket ACLs and enable Block Public Access settings via Terraform.",
		Snippet: "## [FIX] Terraform\nresource \"aws_s3_bucket_public_access_block\" \"block\" {\n" +
			"  bucket = aws_s3_bucket.my_bucket.id\n  block_public_acls = true\n  block_public_policy = true\n}",
	},
	"open_ssh": {
		Key:    "open_ssh",
		Advice: "Restrict SSH access to specific CIDR ranges and enforce key-based authentication.",
		Snippet: "## [FIX] AWS Security Group\ningress {\n  from_port = 22\n  to_port = 22\n" +
			"  protocol = \"tcp\"\n  cidr_blocks = [\"ALLOWED_IP/32\"]\n}",
	},
	"weak_auth": {
		Key:    "weak_auth",
		Advice: "Enforce Multi-Factor Authentication (MFA) and strong password policies.",
	},
	"cleartext_secrets": {
		Key:    "cleartext_secrets",
		Advice: "Use AWS Secrets Manager, HashiCorp Vault, or encrypted environment variables.",
	},
}

// rule selects a template from a finding's lowercased title and description.
type rule struct {
	key   string
	match func(title, desc string) bool
}

var rules = []rule{
	{"sqli", func(t, d string) bool {
		return strings.Contains(t, "sql injection") || strings.Contains(d, "sqli")
	}},
	{"s3_public", func(t, d string) bool {
		return strings.Contains(t, "s3") && (strings.Contains(d, "public") || strings.Contains(d, "acl"))
	}},
	{"open_ssh", func(t, d string) bool {
		return strings.Contains(t, "ssh") && strings.Contains(d, "open")
	}},
	{"xss", func(t, d string) bool {
		return strings.Contains(t, "xss") || strings.Contains(t, "cross-site scripting")
	}},
	{"weak_auth", func(t, d string) bool {
		return strings.Contains(t, "weak password") || strings.Contains(t, "default credentials") ||
			strings.Contains(t, "missing mfa")
	}},
	{"cleartext_secrets", func(t, d string) bool {
		cleartext := strings.Contains(t, "cleartext") || strings.Contains(t, "plaintext") || strings.Contains(t, "hardcoded")
		secret := strings.Contains(t, "secret") || strings.Contains(t, "password") ||
			strings.Contains(t, "credential") || strings.Contains(t, "key")
		return cleartext && secret
	}},
}

// Match returns the template for a finding, if any.
func Match(f models.Finding) (Template, bool) {
	title := strings.ToLower(f.Title)
	desc := strings.ToLower(f.Description)
	for _, r := range rules {
		if r.match(title, desc) {
			return Templates[r.key], true
		}
	}
	return Template{}, false
}

// Patch renders the remediation text for a finding.
func Patch(f models.Finding) string {
	t, ok := Match(f)
	if !ok {
		t = Template{Advice: DefaultAdvice}
	}
	return fmt.Sprintf("### Remediation Strategy\n%s\n\n```markdown\n%s\n```", t.Advice, t.Snippet)
}

// Apply returns copies of findings with remediation attached to every finding
// that has none. Existing remediation text is kept.
func Apply(findings []models.Finding) []models.Finding {
	out := make([]models.Finding, len(findings))
	for i, f := range findings {
		if f.Remediation == "" {
			f.Remediation = Patch(f)
		}
		out[i] = f
	}
	return out
}
