package connection

import (
	"fmt"
	"net/url"
	"strings"

	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
)

// localRedirectHosts are always accepted, on any port, so local development
// never needs allow-list configuration.
var localRedirectHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
}

// validateRedirect accepts a URL whose host is exactly an allow-listed domain
// or a subdomain of one. Suffix lookalikes (evil-glintbooks.com) are rejected
// because the match requires a dot boundary.
func validateRedirect(raw string, allowed []string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "redirect url is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return pkgerrors.New(pkgerrors.CodeValidation, "redirect url must be http or https")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "redirect url has no host")
	}
	if localRedirectHosts[host] {
		return nil
	}

	for _, domain := range allowed {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("redirect host %q is not trusted", host))
}
