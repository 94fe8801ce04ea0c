package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/session"
	"github.com/iconidentify/reelrelay/pkg/instagram"
)

func TestChains_Minimal(t *testing.T) {
	chains := Chains(Options{Profile: testProfile(), Fetcher: testFetcher(), Logger: testLogger()})

	want := map[domain.Platform][]string{
		domain.PlatformInstagram: {NameYtDLP, NamePageMeta},
		domain.PlatformTikTok:    {NameYtDLP},
		domain.PlatformTwitter:   {NameSyndication, NameYtDLP},
		domain.PlatformYouTube:   {NameYtDLP},
	}
	for platform, names := range want {
		if got := Names(chains[platform]); !sameStrings(got, names) {
			t.Errorf("%s chain = %v, want %v", platform, got, names)
		}
	}
}

func TestChains_FullyConfigured(t *testing.T) {
	sessions := session.NewManager(session.Credentials{Username: "u", Password: "p"}, nil, nil, testLogger())
	chains := Chains(Options{
		Profile:      testProfile(),
		ScrapeAPIURL: "http://scrape.local/",
		TikTokAPIURL: "http://tikwm.local/api/",
		Fetcher:      testFetcher(),
		Sessions:     sessions,
		Logger:       testLogger(),
	})

	if got, want := Names(chains[domain.PlatformInstagram]), []string{NameYtDLP, NameScrapeAPI, NameSession, NamePageMeta}; !sameStrings(got, want) {
		t.Errorf("instagram chain = %v, want %v", got, want)
	}
	if got, want := Names(chains[domain.PlatformTikTok]), []string{NameTikTokAPI, NameYtDLP}; !sameStrings(got, want) {
		t.Errorf("tiktok chain = %v, want %v", got, want)
	}

	// session and pagemeta are the photo fallbacks for Instagram.
	photo := 0
	for _, s := range chains[domain.PlatformInstagram] {
		if s.PhotoCapable() {
			photo++
		}
	}
	if photo != 2 {
		t.Errorf("photo-capable instagram strategies = %d, want 2", photo)
	}
}

// memStore is an in-memory session.Store.
type memStore struct{ data []byte }

func (s *memStore) Load(context.Context) ([]byte, error) {
	if s.data == nil {
		return nil, domain.ErrSessionNotFound
	}
	return s.data, nil
}
func (s *memStore) Save(_ context.Context, d []byte) error { s.data = d; return nil }
func (s *memStore) Clear(context.Context) error            { s.data = nil; return nil }

func TestSession_Attempt(t *testing.T) {
	var logins atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/accounts/login/"):
			logins.Add(1)
			w.Header().Set("ig-set-authorization", "Bearer t")
			w.Write([]byte(`{"status":"ok","logged_in_user":{"pk":1,"username":"u"}}`))
		case r.URL.Path == "/media/64/info/":
			fmt.Fprintf(w, `{"items":[{"pk":64,"code":"BA","media_type":8,"carousel_media":[
				{"media_type":1,"image_versions2":{"candidates":[{"url":"%[1]s/cdn/1.jpg","width":1,"height":1}]}},
				{"media_type":1,"image_versions2":{"candidates":[{"url":"%[1]s/cdn/2.jpg","width":1,"height":1}]}}]}]}`, server.URL)
		case r.URL.Path == "/media/65/info/":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"login_required"}`))
		case strings.HasPrefix(r.URL.Path, "/cdn/"):
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := &memStore{}
	sessions := session.NewManager(session.Credentials{Username: "u", Password: "p"}, store,
		func() *instagram.Client {
			return instagram.NewClient(instagram.Config{BaseURL: server.URL}, testLogger())
		},
		testLogger())
	s := NewSession(sessions, testFetcher(), testLogger())

	req := testRequest(t, domain.PlatformInstagram, "https://www.instagram.com/p/BA/")
	report, err := s.Attempt(context.Background(), req)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !report.VideoAbsent {
		t.Error("VideoAbsent = false for a photo album")
	}
	if got := dirFiles(t, req.Dir); !sameStrings(got, []string{"post_1.jpg", "post_2.jpg"}) {
		t.Errorf("files = %v", got)
	}

	// A rejected session is dropped and reported as a download failure.
	_, err = s.Attempt(context.Background(), testRequest(t, domain.PlatformInstagram, "https://www.instagram.com/p/BB/"))
	if err == nil || domain.KindOf(err) != domain.KindDownloadFailed {
		t.Fatalf("err = %v, want download failure", err)
	}
	if !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("err = %v, want to wrap ErrAuthRequired", err)
	}
	if sessions.Status().LoggedIn || store.data != nil {
		t.Error("session should be invalidated after auth failure")
	}
}

func TestSession_Disabled(t *testing.T) {
	sessions := session.NewManager(session.Credentials{}, &memStore{}, nil, testLogger())
	s := NewSession(sessions, testFetcher(), testLogger())

	_, err := s.Attempt(context.Background(), testRequest(t, domain.PlatformInstagram, "https://www.instagram.com/p/BA/"))
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}
}
