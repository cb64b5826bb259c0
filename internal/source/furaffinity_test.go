package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"

	"tagsync/internal/model"
)

var pacific = time.FixedZone("PDT", -7*60*60)

const faSubmissionPage = `<html><body>
<div class="submission-title"><h2><p>Autumn <b>Fox</b> </p></h2></div>
<div class="submission-id-sub-container">
  <strong><span title="%s" class="popup_date">2 years ago</span></strong>
</div>
<section class="tags-row">
  <span class="tags"><a href="/search/@keywords fox">fox</a></span>
  <span class="tags"><a href="/search/@keywords Autumn">Autumn</a></span>
</section>
</body></html>`

const faEditPage = `<html><body>
<form name="MsgForm" method="post" action="/controls/submissions/changeinfo/%d/">
  <input type="hidden" name="key" value="%s">
  <select name="cat"><option value="1">Artwork</option><option value="2" selected>Sketch</option></select>
  <select name="atype"><option value="1" selected>General</option><option value="3">Fantasy</option></select>
  <select name="species"><option value="1">Unspecified</option><option value="5" selected="selected">Fox</option></select>
  <select name="gender"><option value="0" selected>Any</option></select>
  <input type="radio" name="rating" value="0">
  <input type="radio" name="rating" value="2" %s>
  <input type="text" id="title" name="title" value="Autumn Fox">
  <textarea id="JSMessage" name="message">Painted in oils.
Second line.</textarea>
  <input type="text" name="keywords" value="fox Autumn">
</form>
</body></html>`

func galleryPage(ids []int64) string {
	var b strings.Builder
	b.WriteString(`<html><body><section class="gallery submission-list">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<figure><b><u><a href="/view/%d/"><img src="x.jpg"></a></u></b></figure>`, id)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

// faSite is a fake FurAffinity serving a fixed gallery.
type faSite struct {
	mu           sync.Mutex
	pages        [][]int64
	repeatLast   bool
	dates        map[int64]string
	brokenPages  map[int64]bool
	statusByView map[int64]int
	omitRating   bool
	failPosts    int
	galleryHits  []int
	issuedKeys   []string
	postedKeys   []string
	posts        []url.Values
}

func (s *faSite) keys() (issued, posted []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issuedKeys...), append([]string(nil), s.postedKeys...)
}

func (s *faSite) hits() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.galleryHits...)
}

func (s *faSite) submitted() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.posts...)
}

func (s *faSite) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gallery/{user}/{page}/{$}", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.PathValue("page"))
		if err != nil {
			http.Error(w, "bad page", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.galleryHits = append(s.galleryHits, page)
		s.mu.Unlock()

		var ids []int64
		switch {
		case page-1 < len(s.pages):
			ids = s.pages[page-1]
		case s.repeatLast && len(s.pages) > 0:
			ids = s.pages[len(s.pages)-1]
		}
		_, _ = fmt.Fprint(w, galleryPage(ids))
	})

	mux.HandleFunc("GET /view/{id}/{$}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if code, ok := s.statusByView[id]; ok {
			w.WriteHeader(code)
			return
		}
		if s.brokenPages[id] {
			_, _ = fmt.Fprint(w, "<html><body><p>layout changed</p></body></html>")
			return
		}
		date, ok := s.dates[id]
		if !ok {
			date = "Sep 5th, 2021 03:14 PM"
		}
		_, _ = fmt.Fprintf(w, faSubmissionPage, date)
	})

	mux.HandleFunc("GET /controls/submissions/changeinfo/{id}/{$}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		s.mu.Lock()
		key := fmt.Sprintf("nonce-%d", len(s.issuedKeys)+1)
		s.issuedKeys = append(s.issuedKeys, key)
		s.mu.Unlock()

		checked := "checked"
		if s.omitRating {
			checked = ""
		}
		_, _ = fmt.Fprintf(w, faEditPage, id, key, checked)
	})

	mux.HandleFunc("POST /controls/submissions/changeinfo/{id}/{$}", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.postedKeys = append(s.postedKeys, r.PostForm.Get("key"))
		if s.failPosts > 0 {
			s.failPosts--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if want := s.issuedKeys[len(s.issuedKeys)-1]; r.PostForm.Get("key") != want {
			http.Error(w, "stale key", http.StatusBadRequest)
			return
		}
		s.posts = append(s.posts, r.PostForm)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, errA := r.Cookie("a")
		b, errB := r.Cookie("b")
		if errA != nil || errB != nil || a.Value != "cookie-a" || b.Value != "cookie-b" {
			t.Logf("rejecting request without session cookies: %s", r.URL.Path)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func newFATest(t *testing.T, site *faSite, opts FurAffinityOptions) *FurAffinity {
	t.Helper()
	srv := httptest.NewServer(site.handler(t))
	t.Cleanup(srv.Close)

	retries := opts.HTTP.Retries
	opts.HTTP = testHTTP(srv.URL)
	opts.HTTP.Retries = retries
	opts.HTTP.RetryWait = time.Millisecond
	if opts.CookieA == "" {
		opts.CookieA = "cookie-a"
	}
	if opts.CookieB == "" {
		opts.CookieB = "cookie-b"
	}
	opts.User = "painter"
	if opts.Location == nil {
		opts.Location = pacific
	}
	return NewFurAffinity(opts, discardLogger())
}

func TestFurAffinityFetchAll(t *testing.T) {
	site := &faSite{
		pages: [][]int64{{10, 11, 12}, {13, 14}, {15}},
		dates: map[int64]string{
			11: "Aug 1st, 2020 11:05 AM",
			12: "May 22nd, 2019 12:00 AM",
			13: "Mar 23rd, 2018 9:30 PM",
		},
	}
	fa := newFATest(t, site, FurAffinityOptions{Workers: 3})

	got, err := fa.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defaultDate := time.Date(2021, 9, 5, 15, 14, 0, 0, pacific)
	tags := []string{"fox", "Autumn"}
	want := []model.Submission{
		{ID: 10, Site: model.SiteFurAffinity, Title: "Autumn Fox", PostedAt: defaultDate, Tags: tags},
		{ID: 11, Site: model.SiteFurAffinity, Title: "Autumn Fox", PostedAt: time.Date(2020, 8, 1, 11, 5, 0, 0, pacific), Tags: tags},
		{ID: 12, Site: model.SiteFurAffinity, Title: "Autumn Fox", PostedAt: time.Date(2019, 5, 22, 0, 0, 0, 0, pacific), Tags: tags},
		{ID: 13, Site: model.SiteFurAffinity, Title: "Autumn Fox", PostedAt: time.Date(2018, 3, 23, 21, 30, 0, 0, pacific), Tags: tags},
		{ID: 14, Site: model.SiteFurAffinity, Title: "Autumn Fox", PostedAt: defaultDate, Tags: tags},
		{ID: 15, Site: model.SiteFurAffinity, Title: "Autumn Fox", PostedAt: defaultDate, Tags: tags},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchAll() mismatch (-want +got):\n%s", diff)
	}
}

func TestFurAffinityPaginationStopsAtFirstEmptyPage(t *testing.T) {
	site := &faSite{pages: [][]int64{{1, 2, 3}, {4, 5}, {6}, {}, {7}}}
	fa := newFATest(t, site, FurAffinityOptions{})

	ids, err := fa.listIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4, 5, 6}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, site.hits()); diff != "" {
		t.Errorf("gallery pages requested (-want +got):\n%s", diff)
	}
}

func TestFurAffinityMaxPages(t *testing.T) {
	site := &faSite{pages: [][]int64{{1}}, repeatLast: true}
	fa := newFATest(t, site, FurAffinityOptions{MaxPages: 3})

	_, err := fa.FetchAll(context.Background())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, site.hits()); diff != "" {
		t.Errorf("gallery pages requested (-want +got):\n%s", diff)
	}
}

func TestFurAffinityFetchAllErrors(t *testing.T) {
	tests := []struct {
		name       string
		site       *faSite
		opts       FurAffinityOptions
		wantErr    error
		wantSubstr string
	}{
		{
			name:       "missing title is fatal",
			site:       &faSite{pages: [][]int64{{1, 2, 3}}, brokenPages: map[int64]bool{2: true}},
			wantErr:    ErrParse,
			wantSubstr: "submission 2",
		},
		{
			name:       "unknown date format",
			site:       &faSite{pages: [][]int64{{1}}, dates: map[int64]string{1: "yesterday"}},
			wantErr:    ErrParse,
			wantSubstr: "unknown date format",
		},
		{
			name:       "server error on detail",
			site:       &faSite{pages: [][]int64{{1, 2}}, statusByView: map[int64]int{1: http.StatusBadGateway}},
			wantErr:    ErrTransport,
			wantSubstr: "submission 1",
		},
		{
			name:       "rejected cookies",
			site:       &faSite{pages: [][]int64{{1}}},
			opts:       FurAffinityOptions{CookieA: "expired"},
			wantErr:    ErrAuth,
			wantSubstr: "gallery page 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := newFATest(t, tt.site, tt.opts)
			got, err := fa.FetchAll(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not mention %q", err, tt.wantSubstr)
			}
			if got != nil {
				t.Errorf("expected no submissions, got %d", len(got))
			}
		})
	}
}

func TestParseFADate(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		wantErr bool
	}{
		{raw: "Sep 5th, 2021 03:14 PM", want: time.Date(2021, 9, 5, 15, 14, 0, 0, time.UTC)},
		{raw: "Jan 1st, 2020 12:01 AM", want: time.Date(2020, 1, 1, 0, 1, 0, 0, time.UTC)},
		{raw: "Feb 2nd, 2022 1:00 AM", want: time.Date(2022, 2, 2, 1, 0, 0, 0, time.UTC)},
		{raw: "Dec 23rd, 2019 11:59 PM", want: time.Date(2019, 12, 23, 23, 59, 0, 0, time.UTC)},
		{raw: "Jul 11th, 2018 07:45 AM", want: time.Date(2018, 7, 11, 7, 45, 0, 0, time.UTC)},
		{raw: "2021-09-05T15:14:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseFADate(tt.raw, time.UTC)
			if tt.wantErr {
				if !errors.Is(err, ErrParse) {
					t.Fatalf("expected parse error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("date mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFurAffinitySetTags(t *testing.T) {
	site := &faSite{}
	fa := newFATest(t, site, FurAffinityOptions{})
	ctx := context.Background()

	if err := fa.SetTags(ctx, 42, []string{"fox", "canine", "Autumn"}); err != nil {
		t.Fatalf("first set tags: %v", err)
	}
	if err := fa.SetTags(ctx, 42, []string{"fox"}); err != nil {
		t.Fatalf("second set tags: %v", err)
	}

	posts := site.submitted()
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	want := map[string]string{
		"update":   "yes",
		"submit":   "+Finalize",
		"keywords": "fox canine Autumn",
		"key":      "nonce-1",
		"cat":      "2",
		"atype":    "1",
		"species":  "5",
		"gender":   "0",
		"rating":   "2",
		"title":    "Autumn Fox",
		"message":  "Painted in oils.\nSecond line.",
	}
	got := make(map[string]string)
	for k := range posts[0] {
		got[k] = posts[0].Get(k)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("first post mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff("nonce-2", posts[1].Get("key")); diff != "" {
		t.Errorf("second post must use a fresh key (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("fox", posts[1].Get("keywords")); diff != "" {
		t.Errorf("second post keywords (-want +got):\n%s", diff)
	}
}

func TestFurAffinitySetTagsDoesNotResendForm(t *testing.T) {
	site := &faSite{failPosts: 1}
	fa := newFATest(t, site, FurAffinityOptions{HTTP: HTTPOptions{Retries: 2}})
	ctx := context.Background()

	err := fa.SetTags(ctx, 42, []string{"fox"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	issued, posted := site.keys()
	if diff := cmp.Diff([]string{"nonce-1"}, issued); diff != "" {
		t.Errorf("edit pages fetched (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"nonce-1"}, posted); diff != "" {
		t.Errorf("form key posted more than once (-want +got):\n%s", diff)
	}
	if posts := site.submitted(); len(posts) != 0 {
		t.Errorf("expected no accepted edit, got %d", len(posts))
	}

	// A new call reads a fresh form.
	if err := fa.SetTags(ctx, 42, []string{"fox"}); err != nil {
		t.Fatalf("second set tags: %v", err)
	}
	_, posted = site.keys()
	if diff := cmp.Diff([]string{"nonce-1", "nonce-2"}, posted); diff != "" {
		t.Errorf("posted keys (-want +got):\n%s", diff)
	}
}

func TestFurAffinitySetTagsMissingField(t *testing.T) {
	site := &faSite{omitRating: true}
	fa := newFATest(t, site, FurAffinityOptions{})

	err := fa.SetTags(context.Background(), 7, []string{"fox"})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if !strings.Contains(err.Error(), "rating") {
		t.Errorf("error %q does not name the missing field", err)
	}
	if posts := site.submitted(); len(posts) != 0 {
		t.Errorf("expected no post after a parse failure, got %d", len(posts))
	}
}

func TestParseEditSessionMissingFields(t *testing.T) {
	full := fmt.Sprintf(faEditPage, 1, "k", "checked")
	tests := []struct {
		name   string
		remove string
		field  string
	}{
		{name: "no form", remove: `name="MsgForm"`, field: "edit form"},
		{name: "no key", remove: `name="key"`, field: "key"},
		{name: "no category", remove: `value="2" selected`, field: "cat"},
		{name: "no species", remove: `selected="selected"`, field: "species"},
		{name: "no title", remove: `id="title"`, field: "title"},
		{name: "no description", remove: `id="JSMessage"`, field: "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := strings.Replace(full, tt.remove, "", 1)
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
			if err != nil {
				t.Fatalf("parse html: %v", err)
			}
			_, err = parseEditSession(doc)
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected parse error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}
}
