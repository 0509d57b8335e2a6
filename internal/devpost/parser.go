package devpost

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aryan-cs/hackaplan/internal/apperr"
)

// cleanText collapses runs of whitespace into single spaces.
func cleanText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func normalizeImageURL(value, base string) string {
	cleaned := cleanText(value)
	if strings.HasPrefix(cleaned, "//") {
		return "https:" + cleaned
	}
	return resolveRelative(base, cleaned)
}

func newDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, err, "Unable to parse HTML document")
	}
	return doc, nil
}

// ParseLanding extracts the hackathon display name, whether winners appear to
// be announced, and the gallery entry URL from the landing page.
func ParseLanding(hackathonURL, html string) (LandingPage, error) {
	doc, err := newDocument(html)
	if err != nil {
		return LandingPage{}, err
	}
	return LandingPage{
		Name:             parseHackathonName(doc),
		WinnersAnnounced: winnersAreAnnounced(doc),
		GalleryURL:       resolveGalleryURL(hackathonURL, doc),
	}, nil
}

func parseHackathonName(doc *goquery.Document) string {
	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		return "Unknown Hackathon"
	}
	title = strings.ReplaceAll(title, " - Devpost", "")
	if idx := strings.Index(title, ":"); idx >= 0 {
		return cleanText(title[:idx])
	}
	return cleanText(title)
}

// winnersAreAnnounced looks for the pre-announcement call-to-action or the
// "winners announced soon" phrase; absence of both means winners are likely
// announced.
func winnersAreAnnounced(doc *goquery.Document) bool {
	if doc.Find(".challenge-pre-winners-announced-primary-cta").Length() > 0 {
		return false
	}
	pageText := strings.ToLower(cleanText(doc.Find("body").Text()))
	if pageText == "" {
		pageText = strings.ToLower(cleanText(doc.Text()))
	}
	return !strings.Contains(pageText, "winners announced soon")
}

// resolveGalleryURL prefers an explicit in-page project-gallery link and
// falls back to the conventional /project-gallery suffix.
func resolveGalleryURL(hackathonURL string, doc *goquery.Document) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if strings.Contains(href, "project-gallery") {
			found = resolveRelative(hackathonURL, href)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	base := hackathonURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return resolveRelative(base, "project-gallery")
}

// ParseGalleryPage extracts every project entry, the badge-tagged winners,
// the scanned count, and the next page URL from one gallery listing page.
func ParseGalleryPage(pageURL, html string) (GalleryPage, error) {
	doc, err := newDocument(html)
	if err != nil {
		return GalleryPage{}, err
	}

	page := GalleryPage{}
	doc.Find("div.gallery-item").Each(func(_ int, item *goquery.Selection) {
		page.ScannedProjects++

		link := item.Find("a.link-to-software").First()
		if link.Length() == 0 {
			link = item.Find("a.block-wrapper-link").First()
		}
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}

		title := cleanText(item.Find("h5").First().Text())
		if title == "" {
			title = "Untitled"
		}

		softwareID, _ := item.Attr("data-software-id")
		entry := Candidate{
			ProjectTitle:    title,
			ProjectURL:      resolveRelative(pageURL, href),
			SoftwareID:      softwareID,
			PreviewImageURL: extractGalleryPreviewImage(item, pageURL),
		}
		page.AllEntries = append(page.AllEntries, entry)

		badge := item.Find("aside.entry-badge .winner")
		if badge.Length() == 0 {
			badge = item.Find(".winner.label")
		}
		if badge.Length() > 0 {
			page.WinnerEntries = append(page.WinnerEntries, entry)
		}
	})

	next := doc.Find("ul.pagination a[rel='next']").First()
	if href, ok := next.Attr("href"); ok && href != "" && href != "#" {
		page.NextPageURL = resolveRelative(pageURL, href)
	}
	return page, nil
}

func extractGalleryPreviewImage(item *goquery.Selection, pageURL string) string {
	image := item.Find("img").First()
	if image.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src", "data-cfsrc"} {
		if raw, ok := image.Attr(attr); ok && strings.TrimSpace(raw) != "" {
			return normalizeImageURL(raw, pageURL)
		}
	}
	if srcset, ok := image.Attr("srcset"); ok && strings.TrimSpace(srcset) != "" {
		first := strings.TrimSpace(strings.SplitN(srcset, ",", 2)[0])
		first = strings.SplitN(first, " ", 2)[0]
		if first != "" {
			return normalizeImageURL(first, pageURL)
		}
	}
	return ""
}

// ParseProjectPage extracts the full WinnerProject record from a project
// page. A missing title is a parse failure; every other field is optional.
func ParseProjectPage(projectURL, html, targetHackathonURL string) (WinnerProject, error) {
	doc, err := newDocument(html)
	if err != nil {
		return WinnerProject{}, err
	}

	title, _ := doc.Find("meta[property='og:title']").First().Attr("content")
	title = cleanText(title)
	if title == "" {
		title = cleanText(doc.Find("h1").First().Text())
	}
	if title == "" {
		return WinnerProject{}, apperr.New(apperr.CodeParse, "Unable to parse project title from %s", projectURL)
	}

	project := WinnerProject{
		ProjectTitle:        title,
		ProjectURL:          projectURL,
		Prizes:              parsePrizes(doc, targetHackathonURL),
		TeamMembers:         parseTeamMembers(doc),
		BuiltWith:           parseBuiltWith(doc),
		ExternalLinks:       parseExternalLinks(doc),
		DescriptionSections: parseDescriptionSections(doc),
	}

	if tagline, ok := doc.Find("meta[property='og:description']").First().Attr("content"); ok {
		project.Tagline = cleanText(tagline)
	}
	if image, ok := doc.Find("meta[property='og:image']").First().Attr("content"); ok {
		preview := cleanText(image)
		if strings.HasPrefix(preview, "//") {
			preview = "https:" + preview
		}
		project.PreviewImageURL = preview
	}
	return project, nil
}

func parseDescriptionSections(doc *goquery.Document) []DescriptionSection {
	left := doc.Find("#app-details-left").First()
	if left.Length() == 0 {
		return nil
	}

	var sections []DescriptionSection
	left.Find("h2").Each(func(_ int, heading *goquery.Selection) {
		headingText := cleanText(heading.Text())
		if headingText == "" {
			return
		}

		var parts []string
		for sibling := heading.Next(); sibling.Length() > 0; sibling = sibling.Next() {
			if goquery.NodeName(sibling) == "h2" {
				break
			}
			if text := cleanText(sibling.Text()); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			sections = append(sections, DescriptionSection{
				Heading: headingText,
				Content: strings.Join(parts, "\n\n"),
			})
		}
	})
	return sections
}

func parseBuiltWith(doc *goquery.Document) []TechTag {
	var tags []TechTag
	doc.Find("#built-with .cp-tag").Each(func(_ int, tag *goquery.Selection) {
		name := cleanText(tag.Text())
		if name == "" {
			return
		}
		href, _ := tag.Find("a").First().Attr("href")
		tags = append(tags, TechTag{Name: name, URL: href})
	})
	return tags
}

func parseExternalLinks(doc *goquery.Document) []ExternalLink {
	var links []ExternalLink
	doc.Find("nav.app-links a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		if href == "" {
			return
		}
		label := cleanText(anchor.Text())
		if label == "" {
			if parsed, err := url.Parse(href); err == nil && parsed.Host != "" {
				label = parsed.Host
			} else {
				label = href
			}
		}
		links = append(links, ExternalLink{Label: label, URL: href})
	})
	return links
}

func parseTeamMembers(doc *goquery.Document) []TeamMember {
	var members []TeamMember
	doc.Find("#app-team li.software-team-member").Each(func(_ int, member *goquery.Selection) {
		profile := member.Find("a.user-profile-link[href]").First()
		if profile.Length() == 0 {
			return
		}
		name := cleanText(profile.Text())
		if name == "" {
			return
		}
		href := profile.AttrOr("href", "")
		if strings.HasPrefix(href, "/") {
			href = "https://devpost.com" + href
		}
		members = append(members, TeamMember{Name: name, ProfileURL: href})
	})
	return members
}

// parsePrizes collects prize entries from the submissions block and keeps
// only the ones awarded by the target hackathon.
func parsePrizes(doc *goquery.Document, targetHackathonURL string) []PrizeAward {
	var prizes []PrizeAward
	doc.Find("#submissions ul.software-list-with-thumbnail > li").Each(func(_ int, submission *goquery.Selection) {
		challengeLink := submission.Find(".software-list-content > p a[href]").First()
		if challengeLink.Length() == 0 {
			return
		}

		challengeName := cleanText(challengeLink.Text())
		challengeURL := challengeLink.AttrOr("href", "")
		if strings.HasPrefix(challengeURL, "/") {
			challengeURL = "https://devpost.com" + challengeURL
		}

		submission.Find(".software-list-content ul.no-bullet li").Each(func(_ int, prizeItem *goquery.Selection) {
			raw := cleanText(prizeItem.Text())
			if raw == "" {
				return
			}
			name := strings.TrimSpace(strings.ReplaceAll(raw, "Winner", ""))
			if name == "" {
				name = raw
			}
			prizes = append(prizes, PrizeAward{
				HackathonName: challengeName,
				HackathonURL:  challengeURL,
				PrizeName:     name,
			})
		})
	})

	var filtered []PrizeAward
	for _, prize := range prizes {
		if prize.HackathonURL != "" && SameHackathon(targetHackathonURL, prize.HackathonURL) {
			filtered = append(filtered, prize)
		}
	}
	return filtered
}
