package devpost

import (
	"net/url"
	"strings"

	"github.com/aryan-cs/hackaplan/internal/apperr"
)

// NormalizeHackathonURL canonicalizes a raw hackathon URL so that different
// spellings of the same target compare equal. The scheme is forced to https,
// the host must belong to devpost.com, and trailing slashes, params, query,
// and fragment are stripped.
func NormalizeHackathonURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", apperr.New(apperr.CodeValidation, "Hackathon URL is required")
	}

	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return "", apperr.New(apperr.CodeValidation, "Invalid hackathon URL")
	}

	host := strings.ToLower(parsed.Host)
	if host != "devpost.com" && !strings.HasSuffix(host, ".devpost.com") {
		return "", apperr.New(apperr.CodeValidation, "Only Devpost URLs are allowed")
	}

	path := parsed.Path
	if path == "" || path == "/" {
		path = ""
	} else {
		path = strings.TrimRight(path, "/")
	}

	normalized := url.URL{Scheme: "https", Host: host, Path: path}
	return normalized.String(), nil
}

// SameHackathon reports whether a prize's challenge URL refers to the target
// hackathon. Hosts must match; the challenge path must extend the target path.
func SameHackathon(targetURL, challengeURL string) bool {
	target, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	challenge, err := url.Parse(challengeURL)
	if err != nil {
		return false
	}

	if !strings.EqualFold(target.Host, challenge.Host) {
		return false
	}

	targetPath := strings.TrimRight(target.Path, "/")
	if targetPath == "" || targetPath == "/" {
		return true
	}
	return strings.HasPrefix(strings.TrimRight(challenge.Path, "/"), targetPath)
}

// resolveRelative joins href against base, tolerating malformed hrefs by
// returning them unchanged.
func resolveRelative(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
