package devpost

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SearchAPIURL is the Devpost hackathon listing/search endpoint.
const SearchAPIURL = "https://devpost.com/api/hackathons"

var (
	yearPattern  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	tokenPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// SearchHackathons queries the Devpost search API with a few spellings of
// query, merges the suggestions by canonical URL, and ranks them by match
// quality, recency, and title. Queries shorter than two runes return no
// suggestions. Limit is clamped to [1, 20].
func (s *Scraper) SearchHackathons(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	trimmed := strings.TrimSpace(query)
	if len([]rune(trimmed)) < 2 {
		return []Suggestion{}, nil
	}
	if limit < 1 {
		limit = 1
	} else if limit > 20 {
		limit = 20
	}

	byURL := make(map[string]*Suggestion)
	var order []string

	for _, variant := range buildSearchQueryVariants(trimmed) {
		params := url.Values{}
		params.Set("search", variant)
		params.Set("page", "1")
		payload, err := s.client.FetchJSON(ctx, SearchAPIURL, params)
		if err != nil {
			return nil, err
		}

		raws, ok := payload["hackathons"].([]any)
		if !ok {
			continue
		}
		for _, item := range raws {
			raw, ok := item.(map[string]any)
			if !ok {
				continue
			}
			suggestion, ok := suggestionFromRaw(raw)
			if !ok {
				continue
			}

			existing, seen := byURL[suggestion.HackathonURL]
			if !seen {
				copied := suggestion
				byURL[suggestion.HackathonURL] = &copied
				order = append(order, suggestion.HackathonURL)
				continue
			}
			mergeSuggestion(existing, suggestion)
		}
	}

	suggestions := make([]Suggestion, 0, len(byURL))
	for _, key := range order {
		suggestions = append(suggestions, *byURL[key])
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		left, right := suggestions[i], suggestions[j]
		leftScore, rightScore := scoreSuggestion(left, trimmed), scoreSuggestion(right, trimmed)
		if leftScore != rightScore {
			return leftScore > rightScore
		}
		leftYear, rightYear := extractHackathonYear(left), extractHackathonYear(right)
		if leftYear != rightYear {
			return leftYear > rightYear
		}
		return strings.ToLower(left.Title) > strings.ToLower(right.Title)
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func suggestionFromRaw(raw map[string]any) (Suggestion, bool) {
	title := strings.TrimSpace(stringField(raw, "title"))
	rawURL := strings.TrimSpace(stringField(raw, "url"))
	if title == "" || rawURL == "" {
		return Suggestion{}, false
	}
	hackathonURL, err := NormalizeHackathonURL(rawURL)
	if err != nil {
		return Suggestion{}, false
	}

	suggestion := Suggestion{
		Title:                 title,
		HackathonURL:          hackathonURL,
		GalleryURL:            strings.TrimSpace(stringField(raw, "submission_gallery_url")),
		OpenState:             stringField(raw, "open_state"),
		SubmissionPeriodDates: stringField(raw, "submission_period_dates"),
		OrganizationName:      stringField(raw, "organization_name"),
	}
	if thumb := strings.TrimSpace(stringField(raw, "thumbnail_url")); thumb != "" {
		if strings.HasPrefix(thumb, "//") {
			thumb = "https:" + thumb
		}
		suggestion.ThumbnailURL = thumb
	}
	if announced, ok := raw["winners_announced"].(bool); ok {
		suggestion.WinnersAnnounced = &announced
	}
	return suggestion, true
}

// mergeSuggestion fills empty fields of dst from src; the first sighting of
// a URL wins for any field it already populated.
func mergeSuggestion(dst *Suggestion, src Suggestion) {
	if dst.GalleryURL == "" {
		dst.GalleryURL = src.GalleryURL
	}
	if dst.ThumbnailURL == "" {
		dst.ThumbnailURL = src.ThumbnailURL
	}
	if dst.OpenState == "" {
		dst.OpenState = src.OpenState
	}
	if dst.WinnersAnnounced == nil {
		dst.WinnersAnnounced = src.WinnersAnnounced
	}
	if dst.SubmissionPeriodDates == "" {
		dst.SubmissionPeriodDates = src.SubmissionPeriodDates
	}
	if dst.OrganizationName == "" {
		dst.OrganizationName = src.OrganizationName
	}
}

func stringField(raw map[string]any, key string) string {
	value, _ := raw[key].(string)
	return value
}

func normalizeMatchKey(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func buildSearchQueryVariants(query string) []string {
	collapsed := strings.Join(strings.Fields(query), " ")
	var variants []string
	seen := make(map[string]struct{})

	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) < 2 {
			return
		}
		lower := strings.ToLower(candidate)
		if _, dup := seen[lower]; dup {
			return
		}
		seen[lower] = struct{}{}
		variants = append(variants, candidate)
	}

	add(collapsed)
	add(normalizeMatchKey(collapsed))
	if strings.Contains(collapsed, " ") {
		add(strings.ReplaceAll(collapsed, " ", ""))
		add(strings.ReplaceAll(collapsed, " ", "-"))
	}
	return variants
}

// scoreSuggestion ranks subdomain/title prefix matches above substring
// matches, with a small bonus per matched query token.
func scoreSuggestion(suggestion Suggestion, query string) int {
	parsed, err := url.Parse(suggestion.HackathonURL)
	subdomain := ""
	if err == nil && parsed.Host != "" {
		subdomain = strings.SplitN(strings.ToLower(parsed.Host), ".", 2)[0]
	}

	titleLower := strings.ToLower(suggestion.Title)
	titleKey := normalizeMatchKey(suggestion.Title)
	subdomainKey := normalizeMatchKey(subdomain)

	queryLower := strings.ToLower(query)
	queryKey := normalizeMatchKey(query)

	score := 0
	if queryKey != "" {
		switch {
		case strings.HasPrefix(titleKey, queryKey) || strings.HasPrefix(subdomainKey, queryKey):
			score += 120
		case strings.Contains(titleKey, queryKey) || strings.Contains(subdomainKey, queryKey):
			score += 80
		}
	}

	for _, token := range tokenPattern.Split(queryLower, -1) {
		if token == "" {
			continue
		}
		if strings.Contains(titleLower, token) || strings.Contains(subdomain, token) {
			score += 12
		}
	}
	return score
}

// extractHackathonYear returns the most recent year mentioned in the title
// or URL, or 0 when none appears.
func extractHackathonYear(suggestion Suggestion) int {
	matches := yearPattern.FindAllString(suggestion.Title+" "+suggestion.HackathonURL, -1)
	year := 0
	for _, match := range matches {
		if parsed, err := strconv.Atoi(match); err == nil && parsed > year {
			year = parsed
		}
	}
	return year
}
