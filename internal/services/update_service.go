package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Wikid82/gatewatch/internal/version"
)

const releaseCacheTTL = time.Hour

// UpdateService checks GitHub for a newer Gatewatch release.
type UpdateService struct {
	mu             sync.Mutex
	currentVersion string
	apiURL         string
	client         *http.Client
	lastCheck      time.Time
	cachedResult   *UpdateInfo
}

type UpdateInfo struct {
	CurrentVersion string `json:"current_version"`
	Available      bool   `json:"available"`
	LatestVersion  string `json:"latest_version"`
	ChangelogURL   string `json:"changelog_url"`
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

func NewUpdateService() *UpdateService {
	return &UpdateService{
		currentVersion: version.Version,
		apiURL:         "https://api.github.com/repos/Wikid82/gatewatch/releases/latest",
		client:         &http.Client{Timeout: 5 * time.Second},
	}
}

// SetAPIURL sets the GitHub API URL for testing.
func (s *UpdateService) SetAPIURL(url string) {
	s.apiURL = url
}

// SetCurrentVersion sets the current version for testing.
func (s *UpdateService) SetCurrentVersion(v string) {
	s.currentVersion = v
}

// ClearCache drops the cached release.
func (s *UpdateService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedResult = nil
	s.lastCheck = time.Time{}
}

// CheckForUpdates returns the latest release, cached for an hour. A non-200
// answer (rate limiting, no releases yet) reports no update.
func (s *UpdateService) CheckForUpdates(ctx context.Context) (*UpdateInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedResult != nil && time.Since(s.lastCheck) < releaseCacheTTL {
		return s.cachedResult, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UpdateInfo{CurrentVersion: s.currentVersion}, nil
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := &UpdateInfo{
		CurrentVersion: s.currentVersion,
		Available:      latest != "" && latest != s.currentVersion,
		LatestVersion:  release.TagName,
		ChangelogURL:   release.HTMLURL,
	}
	s.cachedResult = info
	s.lastCheck = time.Now()
	return info, nil
}
