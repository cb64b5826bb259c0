package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"tagsync/internal/model"
)

const furAffinityBaseURL = "https://www.furaffinity.net"

// Structural selectors of the FurAffinity pages.
const (
	faIDSelector       = ".submission-list u a"
	faTitleSelector    = ".submission-title h2 p"
	faPostedAtSelector = ".submission-id-sub-container strong span.popup_date"
	faTagSelector      = "section.tags-row a"
	faEditFormSelector = `form[name="MsgForm"]`
)

// faDateLayout matches dates like "Sep 5, 2021 03:14 PM" once the day
// ordinal has been stripped.
const faDateLayout = "Jan 2, 2006 3:04 PM"

var faOrdinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)`)

// FurAffinityOptions configures a FurAffinity source.
type FurAffinityOptions struct {
	HTTP    HTTPOptions
	CookieA string
	CookieB string
	User    string
	Workers int
	// MaxPages stops the gallery walk with an error after this many
	// non-empty pages. Zero means no limit.
	MaxPages int
	// Location is the zone the site renders dates in.
	Location *time.Location
}

// FurAffinity scrapes a user's gallery using session cookies.
type FurAffinity struct {
	client   *resty.Client
	// edit posts the edit form and never retries. The form key is single
	// use, so a resent form is either rejected or applied twice.
	edit     *resty.Client
	user     string
	workers  int
	maxPages int
	loc      *time.Location
	log      *slog.Logger
}

// NewFurAffinity creates a FurAffinity source authenticated by the "a" and
// "b" session cookies.
func NewFurAffinity(opts FurAffinityOptions, log *slog.Logger) *FurAffinity {
	cookies := []*http.Cookie{
		{Name: "a", Value: opts.CookieA},
		{Name: "b", Value: opts.CookieB},
	}
	client := newClient(opts.HTTP, furAffinityBaseURL).SetCookies(cookies)

	editOpts := opts.HTTP
	editOpts.Retries = 0
	edit := newClient(editOpts, furAffinityBaseURL).SetCookies(cookies)

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &FurAffinity{
		client:   client,
		edit:     edit,
		user:     opts.User,
		workers:  workers,
		maxPages: opts.MaxPages,
		loc:      loc,
		log:      log.With("site", model.SiteFurAffinity),
	}
}

// Site implements Source.
func (f *FurAffinity) Site() model.Site {
	return model.SiteFurAffinity
}

// FetchAll walks the gallery pages until one has no submissions, then
// scrapes every submission page.
func (f *FurAffinity) FetchAll(ctx context.Context) ([]model.Submission, error) {
	ids, err := f.listIDs(ctx)
	if err != nil {
		return nil, err
	}
	f.log.Info("discovered submissions", "count", len(ids))

	return fetchDetails(ctx, f.workers, ids, f.detail)
}

// listIDs stops at the first page without ids. A site that keeps serving
// a non-empty placeholder page would loop until MaxPages.
func (f *FurAffinity) listIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for page := 1; ; page++ {
		if f.maxPages > 0 && page > f.maxPages {
			return nil, fmt.Errorf("%w: gallery still had submissions after %d pages", ErrParse, f.maxPages)
		}
		f.log.Info("loading gallery page", "page", page)

		doc, err := f.getDocument(ctx, fmt.Sprintf("/gallery/%s/%d/", url.PathEscape(f.user), page))
		if err != nil {
			return nil, fmt.Errorf("gallery page %d: %w", page, err)
		}

		pageIDs := galleryIDs(doc)
		if len(pageIDs) == 0 {
			f.log.Debug("no new ids found", "page", page)
			return ids, nil
		}
		ids = append(ids, pageIDs...)
	}
}

// galleryIDs extracts submission ids from links of the form /view/<id>/.
func galleryIDs(doc *goquery.Document) []int64 {
	var ids []int64
	doc.Find(faIDSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		parts := strings.Split(href, "/")
		if len(parts) < 3 {
			return
		}
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return
		}
		ids = append(ids, id)
	})
	return ids
}

func (f *FurAffinity) detail(ctx context.Context, id int64) (model.Submission, error) {
	f.log.Debug("loading submission", "id", id)

	doc, err := f.getDocument(ctx, fmt.Sprintf("/view/%d/", id))
	if err != nil {
		return model.Submission{}, fmt.Errorf("submission %d: %w", id, err)
	}
	sub, err := parseSubmissionPage(doc, f.loc)
	if err != nil {
		return model.Submission{}, fmt.Errorf("submission %d: %w", id, err)
	}
	sub.ID = id
	return sub, nil
}

// parseSubmissionPage reads title, posted date and tags from a submission
// page. The returned submission has no ID.
func parseSubmissionPage(doc *goquery.Document, loc *time.Location) (model.Submission, error) {
	titleSel := doc.Find(faTitleSelector).First()
	if titleSel.Length() == 0 {
		return model.Submission{}, fmt.Errorf("%w: missing title", ErrParse)
	}

	dateSel := doc.Find(faPostedAtSelector).First()
	if dateSel.Length() == 0 {
		return model.Submission{}, fmt.Errorf("%w: missing posted at date", ErrParse)
	}
	rawDate, ok := dateSel.Attr("title")
	if !ok {
		return model.Submission{}, fmt.Errorf("%w: missing posted at value", ErrParse)
	}
	postedAt, err := parseFADate(rawDate, loc)
	if err != nil {
		return model.Submission{}, err
	}

	tags := []string{}
	doc.Find(faTagSelector).Each(func(_ int, s *goquery.Selection) {
		tags = append(tags, strings.TrimSpace(s.Text()))
	})

	return model.Submission{
		Site:     model.SiteFurAffinity,
		Title:    strings.TrimSpace(titleSel.Text()),
		PostedAt: postedAt,
		Tags:     tags,
	}, nil
}

func parseFADate(raw string, loc *time.Location) (time.Time, error) {
	cleaned := strings.TrimSpace(faOrdinalSuffix.ReplaceAllString(raw, "$1"))
	t, err := time.ParseInLocation(faDateLayout, cleaned, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown date format %q: %w", ErrParse, raw, err)
	}
	return t, nil
}

// SetTags reads the edit form of the submission and submits it back with
// only the keywords replaced.
func (f *FurAffinity) SetTags(ctx context.Context, id int64, tags []string) error {
	path := fmt.Sprintf("/controls/submissions/changeinfo/%d/", id)

	doc, err := f.getDocument(ctx, path)
	if err != nil {
		return fmt.Errorf("edit page of submission %d: %w", id, err)
	}
	session, err := parseEditSession(doc)
	if err != nil {
		return fmt.Errorf("edit page of submission %d: %w", id, err)
	}

	res, err := f.edit.R().
		SetContext(ctx).
		SetFormData(session.formData(tags)).
		Post(path)
	if err := checkResponse(res, err); err != nil {
		return fmt.Errorf("submit edit of submission %d: %w", id, err)
	}
	return nil
}

func (f *FurAffinity) getDocument(ctx context.Context, path string) (*goquery.Document, error) {
	res, err := f.client.R().
		SetContext(ctx).
		Get(path)
	if err := checkResponse(res, err); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", ErrParse, err)
	}
	return doc, nil
}
