package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetch defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; ResumeRanker/1.0)"
	maxBodyBytes     = 5 << 20
)

// Platform is a known job board.
type Platform string

// Recognized platforms.
const (
	PlatformGreenhouse Platform = "greenhouse"
	PlatformLever      Platform = "lever"
	PlatformWorkday    Platform = "workday"
	PlatformUnknown    Platform = "unknown"
)

// JobPosting is a job description ready to be used as a ranking query.
type JobPosting struct {
	URL      string   `json:"url,omitempty"`
	Platform Platform `json:"platform,omitempty"`
	Text     string   `json:"text"`
	// Hash is the SHA256 hex digest of Text.
	Hash      string `json:"hash"`
	FetchedAt string `json:"fetched_at"`
}

// FetchError represents an error while fetching a job posting.
type FetchError struct {
	URL     string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FetchOptions configures FetchJobPosting.
type FetchOptions struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// DefaultFetchOptions returns sensible defaults for fetching.
func DefaultFetchOptions() *FetchOptions {
	return &FetchOptions{Timeout: DefaultTimeout, UserAgent: DefaultUserAgent}
}

// NewJobPosting wraps already available text.
func NewJobPosting(text, sourceURL string) *JobPosting {
	cleaned := CleanText(text)
	sum := sha256.Sum256([]byte(cleaned))
	p := &JobPosting{
		URL:       sourceURL,
		Text:      cleaned,
		Hash:      hex.EncodeToString(sum[:]),
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if sourceURL != "" {
		p.Platform = DetectPlatform(sourceURL)
	}
	return p
}

// LoadJobPosting reads a job description from a text file.
func LoadJobPosting(path string) (*JobPosting, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewJobPosting(string(data), ""), nil
}

// FetchJobPosting downloads a job posting page and extracts its main text, using
// platform-specific selectors for known job boards.
func FetchJobPosting(ctx context.Context, rawURL string, opts *FetchOptions) (*JobPosting, error) {
	if opts == nil {
		opts = DefaultFetchOptions()
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &FetchError{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "failed to read response body", Cause: err}
	}

	platform := DetectPlatform(rawURL)
	text, err := ExtractMainText(string(body), contentSelectors(platform), noiseSelectors(platform)...)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "content extraction failed", Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &FetchError{URL: rawURL, Message: "page has no readable text"}
	}

	return NewJobPosting(text, rawURL), nil
}

// ExtractMainText parses HTML, strips navigation and noise elements, and returns the text of
// the first element matching one of contentSelectors, falling back to the body.
func ExtractMainText(html string, contentSelectors []string, noise ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, form, .cookie-banner, .popup").Remove()
	if len(noise) > 0 {
		doc.Find(strings.Join(noise, ", ")).Remove()
	}

	var main *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			main = s.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	// block elements become line breaks so list items stay separate
	main.Find("p, li, br, h1, h2, h3, h4, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return CleanText(main.Text()), nil
}

// DetectPlatform identifies the job board from a URL.
func DetectPlatform(rawURL string) Platform {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return PlatformUnknown
	}
	host := strings.ToLower(parsed.Host)
	switch {
	case strings.Contains(host, "greenhouse.io"):
		return PlatformGreenhouse
	case strings.Contains(host, "lever.co"):
		return PlatformLever
	case strings.Contains(host, "workday.com"), strings.Contains(host, "myworkdayjobs.com"):
		return PlatformWorkday
	default:
		return PlatformUnknown
	}
}

func contentSelectors(p Platform) []string {
	generic := []string{
		".job-description",
		"#job-description",
		".posting-content",
		".job-details",
		"[data-testid='job-description']",
		"main",
		"article",
		"#content",
	}
	switch p {
	case PlatformGreenhouse:
		return append([]string{".job__description", ".job-post-container"}, generic...)
	case PlatformLever:
		return append([]string{".posting-page", ".posting-description"}, generic...)
	case PlatformWorkday:
		return append([]string{"[data-automation-id='jobDescription']"}, generic...)
	default:
		return generic
	}
}

func noiseSelectors(p Platform) []string {
	common := []string{
		".application-form",
		".apply-button-container",
		".eeo-statement",
		".voluntary-disclosure",
		".social-share",
	}
	switch p {
	case PlatformGreenhouse:
		return append(common, ".voluntary-self-id", "#usa_self_id_section")
	case PlatformLever:
		return append(common, ".posting-apply")
	case PlatformWorkday:
		return append(common, "[data-automation-id='applyButton']")
	default:
		return common
	}
}

var (
	multiSpace = regexp.MustCompile(`[ \t]+`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes line endings and whitespace, dropping blank runs longer than one line.
func CleanText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpace.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
