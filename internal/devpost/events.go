package devpost

// EventType names one crawl-progress milestone. The orchestrator adds the
// job lifecycle types (queued/started/completed/failed) on top of these.
type EventType string

// Crawl progress event types emitted by the Scraper.
const (
	EventGalleryPageScanned      EventType = "gallery_page_scanned"
	EventWinnerProjectFound      EventType = "winner_project_found"
	EventWinnerProjectScraped    EventType = "winner_project_scraped"
	EventWinnerDetectionFallback EventType = "winner_detection_fallback"
	EventWinnersNotAnnounced     EventType = "winners_not_announced"
)

// Event is the envelope streamed by the Scraper. Payload is one of the
// typed payload structs below; all of them serialize to forward-compatible
// JSON objects.
type Event struct {
	Type    EventType
	Payload any
}

// GalleryPageScannedPayload reports one finished gallery listing page.
type GalleryPageScannedPayload struct {
	PageURL            string `json:"page_url"`
	PageNumber         int    `json:"page_number"`
	ScannedProjects    int    `json:"scanned_projects"`
	WinnersFoundOnPage int    `json:"winners_found_on_page"`
	NextPageURL        string `json:"next_page_url,omitempty"`
}

// WinnerProjectFoundPayload reports a discovered winner candidate. Source is
// set when the discovery came from fallback prize confirmation rather than a
// gallery badge.
type WinnerProjectFoundPayload struct {
	ProjectTitle    string `json:"project_title"`
	ProjectURL      string `json:"project_url"`
	SoftwareID      string `json:"software_id,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
	Source          string `json:"source,omitempty"`
}

// WinnerProjectScrapedPayload carries one fully scraped winner project in
// completion order. Total never under-reports: it is the greater of the
// scheduled count and the completed count.
type WinnerProjectScrapedPayload struct {
	Index         int           `json:"index"`
	Total         int           `json:"total"`
	ProjectTitle  string        `json:"project_title"`
	ProjectURL    string        `json:"project_url"`
	PrizeCount    int           `json:"prize_count"`
	WinnerProject WinnerProject `json:"winner_project"`
}

// WinnerDetectionFallbackPayload announces the per-project confirmation pass.
type WinnerDetectionFallbackPayload struct {
	Reason            string `json:"reason"`
	CandidateProjects int    `json:"candidate_projects"`
}

// WinnersNotAnnouncedPayload explains an empty result for a hackathon whose
// winners are not out yet.
type WinnersNotAnnouncedPayload struct {
	Message string `json:"message"`
}
