package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tagsync/internal/model"
)

const (
	weasylBaseURL   = "https://www.weasyl.com"
	weasylAPIHeader = "X-Weasyl-API-Key"
	weasylPageSize  = 100
)

// WeasylOptions configures a Weasyl source.
type WeasylOptions struct {
	HTTP     HTTPOptions
	APIKey   string
	User     string
	PageSize int
	Workers  int
	// Location is the zone timestamps are normalized into.
	Location *time.Location
}

// Weasyl reads a user's gallery through the Weasyl JSON API.
type Weasyl struct {
	client   *resty.Client
	user     string
	pageSize int
	workers  int
	loc      *time.Location
	log      *slog.Logger
}

// NewWeasyl creates a Weasyl source authenticating with opts.APIKey.
func NewWeasyl(opts WeasylOptions, log *slog.Logger) *Weasyl {
	client := newClient(opts.HTTP, weasylBaseURL).
		SetHeader(weasylAPIHeader, opts.APIKey)

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = weasylPageSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &Weasyl{
		client:   client,
		user:     opts.User,
		pageSize: pageSize,
		workers:  workers,
		loc:      loc,
		log:      log.With("site", model.SiteWeasyl),
	}
}

// Site implements Source.
func (w *Weasyl) Site() model.Site {
	return model.SiteWeasyl
}

type weasylGalleryPage struct {
	Submissions []weasylSummary `json:"submissions"`
	NextID      *int64          `json:"nextid"`
}

type weasylSummary struct {
	SubmitID int64  `json:"submitid"`
	Title    string `json:"title"`
	PostedAt string `json:"posted_at"`
}

type weasylDetail struct {
	SubmitID int64    `json:"submitid"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
}

type weasylListed struct {
	id       int64
	postedAt time.Time
}

// FetchAll walks the gallery by cursor, then loads the tags of every
// submission.
func (w *Weasyl) FetchAll(ctx context.Context) ([]model.Submission, error) {
	listed, err := w.list(ctx)
	if err != nil {
		return nil, err
	}
	w.log.Info("discovered submissions", "count", len(listed))

	return fetchDetails(ctx, w.workers, listed, w.detail)
}

func (w *Weasyl) list(ctx context.Context) ([]weasylListed, error) {
	path := "/api/users/" + url.PathEscape(w.user) + "/gallery"

	var listed []weasylListed
	var cursor *int64
	for {
		w.log.Info("loading gallery page", "nextid", cursorAttr(cursor))

		req := w.client.R().
			SetContext(ctx).
			SetQueryParam("count", strconv.Itoa(w.pageSize))
		if cursor != nil {
			req.SetQueryParam("nextid", strconv.FormatInt(*cursor, 10))
		}
		res, err := req.Get(path)
		if err := checkResponse(res, err); err != nil {
			return nil, fmt.Errorf("gallery page: %w", err)
		}

		var page weasylGalleryPage
		if err := json.Unmarshal(res.Body(), &page); err != nil {
			return nil, fmt.Errorf("%w: decode gallery page: %w", ErrParse, err)
		}

		for _, s := range page.Submissions {
			postedAt, err := parseRFC3339(s.PostedAt, w.loc)
			if err != nil {
				return nil, fmt.Errorf("submission %d: %w", s.SubmitID, err)
			}
			listed = append(listed, weasylListed{id: s.SubmitID, postedAt: postedAt})
		}

		if page.NextID == nil {
			return listed, nil
		}
		cursor = page.NextID
	}
}

func (w *Weasyl) detail(ctx context.Context, item weasylListed) (model.Submission, error) {
	w.log.Debug("loading submission", "id", item.id)

	res, err := w.client.R().
		SetContext(ctx).
		Get("/api/submissions/" + strconv.FormatInt(item.id, 10) + "/view")
	if err := checkResponse(res, err); err != nil {
		return model.Submission{}, fmt.Errorf("submission %d: %w", item.id, err)
	}

	var d weasylDetail
	if err := json.Unmarshal(res.Body(), &d); err != nil {
		return model.Submission{}, fmt.Errorf("%w: decode submission %d: %w", ErrParse, item.id, err)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}

	return model.Submission{
		ID:       item.id,
		Site:     model.SiteWeasyl,
		Title:    d.Title,
		PostedAt: item.postedAt,
		Tags:     tags,
	}, nil
}

// SetTags implements Source.
func (w *Weasyl) SetTags(ctx context.Context, id int64, tags []string) error {
	res, err := w.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"submitid": strconv.FormatInt(id, 10),
			"tags":     strings.Join(tags, " "),
		}).
		Post("/submit/tags")
	if err := checkResponse(res, err); err != nil {
		return fmt.Errorf("set tags on submission %d: %w", id, err)
	}
	return nil
}

func parseRFC3339(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: posted_at %q: %w", ErrParse, s, err)
	}
	return t.In(loc), nil
}

func cursorAttr(cursor *int64) any {
	if cursor == nil {
		return "none"
	}
	return *cursor
}
