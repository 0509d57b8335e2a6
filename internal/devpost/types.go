// Package devpost implements the Devpost fetch client, page parsers, the
// winner crawl engine, and the hackathon suggestion search.
package devpost

import "time"

// Candidate is one project reference discovered on a gallery page. The
// project URL is the dedup key across an entire crawl.
type Candidate struct {
	ProjectTitle    string `json:"project_title"`
	ProjectURL      string `json:"project_url"`
	SoftwareID      string `json:"software_id,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// GalleryPage is the parsed form of a single gallery listing page.
type GalleryPage struct {
	AllEntries      []Candidate
	WinnerEntries   []Candidate
	ScannedProjects int
	NextPageURL     string
}

// LandingPage is the parsed form of a hackathon's landing page.
type LandingPage struct {
	Name             string
	WinnersAnnounced bool
	GalleryURL       string
}

// PrizeAward ties one prize to the hackathon that awarded it.
type PrizeAward struct {
	HackathonName string `json:"hackathon_name"`
	HackathonURL  string `json:"hackathon_url,omitempty"`
	PrizeName     string `json:"prize_name"`
}

// TeamMember is one credited project contributor.
type TeamMember struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// TechTag is one "built with" technology label.
type TechTag struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ExternalLink is an outbound demo/repo link on a project page.
type ExternalLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// DescriptionSection is one heading-delimited block of the project story.
type DescriptionSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// WinnerProject is the enriched result of deep-fetching one candidate.
// Immutable once produced.
type WinnerProject struct {
	ProjectTitle        string               `json:"project_title"`
	ProjectURL          string               `json:"project_url"`
	Tagline             string               `json:"tagline,omitempty"`
	PreviewImageURL     string               `json:"preview_image_url,omitempty"`
	Prizes              []PrizeAward         `json:"prizes"`
	TeamMembers         []TeamMember         `json:"team_members"`
	BuiltWith           []TechTag            `json:"built_with"`
	ExternalLinks       []ExternalLink       `json:"external_links"`
	DescriptionSections []DescriptionSection `json:"description_sections"`
}

// HackathonMetadata summarizes the crawled hackathon.
type HackathonMetadata struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	GalleryURL      string `json:"gallery_url"`
	ScannedPages    int    `json:"scanned_pages"`
	ScannedProjects int    `json:"scanned_projects"`
	WinnerCount     int    `json:"winner_count"`
}

// CrawlResult is the complete outcome of one successful crawl. Winners are
// ordered by deep-fetch completion, not discovery.
type CrawlResult struct {
	Hackathon   HackathonMetadata `json:"hackathon"`
	Winners     []WinnerProject   `json:"winners"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Suggestion is one ranked hackathon search result.
type Suggestion struct {
	Title                 string `json:"title"`
	HackathonURL          string `json:"hackathon_url"`
	GalleryURL            string `json:"gallery_url,omitempty"`
	ThumbnailURL          string `json:"thumbnail_url,omitempty"`
	OpenState             string `json:"open_state,omitempty"`
	WinnersAnnounced      *bool  `json:"winners_announced,omitempty"`
	SubmissionPeriodDates string `json:"submission_period_dates,omitempty"`
	OrganizationName      string `json:"organization_name,omitempty"`
}
