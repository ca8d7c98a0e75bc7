package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"soulverse/internal/dispatch"
	"soulverse/internal/eventbus"
	"soulverse/internal/jobs"
	"soulverse/internal/notifier"
	"soulverse/internal/occasion"
	"soulverse/internal/scripture"
	"soulverse/internal/task/scheduler"
	logx "soulverse/pkg/logx"
)

// Jobs is the part of *jobs.Service the API triggers.
type Jobs interface {
	DailyVerses(ctx context.Context) (dispatch.Outcome, error)
	MorningPrayer(ctx context.Context) (jobs.PrayerResult, error)
	EveningPrayer(ctx context.Context) (jobs.PrayerResult, error)
	History(limit int) []eventbus.Event
}

type Scheduler interface {
	Status() scheduler.Status
	Start(ctx context.Context) scheduler.StartResult
	Stop(ctx context.Context) scheduler.StopResult
}

type Scripture interface {
	Lookup(ctx context.Context, translation, book string, chapter, verse int) (scripture.Verse, error)
	Search(ctx context.Context, translation string, keywords []string, limit int) ([]scripture.Verse, error)
}

type Notifier interface {
	Enabled() bool
	TransportName() string
	Snapshot() []notifier.HistoryItem
}

// Deps are the services behind the handlers. Scripture and Notifier are
// optional; their routes answer 503 without them.
type Deps struct {
	Jobs      Jobs
	Scheduler Scheduler
	Scripture Scripture
	Notifier  Notifier
	// Location is the zone used for "today" in /admin/occasion. When nil the
	// zone of Now's result is used.
	Location *time.Location
	// DefaultTranslation is used when a scripture request names none.
	DefaultTranslation string
	Version            string
	// ImagesDir is served read-only under ImagesPath (default /images) when
	// set.
	ImagesDir  string
	ImagesPath string
	// TriggerTimeout bounds a manual job run. Default 30m.
	TriggerTimeout time.Duration
	Now            func() time.Time
	Log            logx.Logger
}

type Handler struct {
	d       Deps
	started time.Time
}

func NewHandler(d Deps) *Handler {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.TriggerTimeout <= 0 {
		d.TriggerTimeout = 30 * time.Minute
	}
	return &Handler{d: d, started: d.Now()}
}

type healthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version,omitempty"`
	Uptime           string `json:"uptime"`
	SchedulerRunning bool   `json:"scheduler_running"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.d.Version,
		Uptime:  h.d.Now().Sub(h.started).Truncate(time.Second).String(),
	}
	if h.d.Scheduler != nil {
		resp.SchedulerRunning = h.d.Scheduler.Status().Running
	}
	writeJSON(w, http.StatusOK, resp)
}

// triggerContext detaches a manual run from the request so a client
// disconnect does not abort a delivery half way.
func (h *Handler) triggerContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.d.TriggerTimeout)
}

func (h *Handler) TriggerDailyVerses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.triggerContext(r)
	defer cancel()
	h.d.Log.Info("manual trigger", logx.String("job", jobs.DailyVerses))
	out, err := h.d.Jobs.DailyVerses(ctx)
	if err != nil {
		h.d.Log.Error("manual daily verses failed", logx.Err(err))
		WriteProblem(w, r, http.StatusInternalServerError, "daily verses run failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TriggerMorningPrayer(w http.ResponseWriter, r *http.Request) {
	h.triggerPrayer(w, r, jobs.MorningPrayer, h.d.Jobs.MorningPrayer)
}

func (h *Handler) TriggerEveningPrayer(w http.ResponseWriter, r *http.Request) {
	h.triggerPrayer(w, r, jobs.EveningPrayer, h.d.Jobs.EveningPrayer)
}

func (h *Handler) triggerPrayer(w http.ResponseWriter, r *http.Request, name string, run func(context.Context) (jobs.PrayerResult, error)) {
	ctx, cancel := h.triggerContext(r)
	defer cancel()
	h.d.Log.Info("manual trigger", logx.String("job", name))
	res, err := run(ctx)
	if err != nil {
		// The prayer is resolved and cached even when the push fails.
		h.d.Log.Error("manual prayer push failed", logx.String("job", name), logx.Err(err))
		WriteProblem(w, r, http.StatusBadGateway, "prayer generated but push failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scheduler.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scheduler.Start(r.Context()))
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, h.d.Scheduler.Stop(ctx))
}

type historyResponse struct {
	Events []eventbus.Event `json:"events"`
}

func (h *Handler) SchedulerHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	events := h.d.Jobs.History(limit)
	if events == nil {
		events = []eventbus.Event{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Events: events})
}

type occasionResponse struct {
	Date     string             `json:"date"`
	Found    bool               `json:"found"`
	Occasion *occasion.Occasion `json:"occasion,omitempty"`
}

func (h *Handler) Occasion(w http.ResponseWriter, r *http.Request) {
	day := h.d.Now()
	if h.d.Location != nil {
		day = day.In(h.d.Location)
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, day.Location())
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}
	resp := occasionResponse{Date: day.Format(time.DateOnly)}
	if occ, ok := occasion.Resolve(day); ok {
		resp.Found = true
		resp.Occasion = &occ
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ScriptureLookup(w http.ResponseWriter, r *http.Request) {
	if h.d.Scripture == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "scripture source not configured")
		return
	}
	chapter, err1 := strconv.Atoi(chi.URLParam(r, "chapter"))
	verse, err2 := strconv.Atoi(chi.URLParam(r, "verse"))
	if err1 != nil || err2 != nil || chapter <= 0 || verse <= 0 {
		WriteProblem(w, r, http.StatusBadRequest, "chapter and verse must be positive integers")
		return
	}
	v, err := h.d.Scripture.Lookup(r.Context(), h.translation(r), chi.URLParam(r, "book"), chapter, verse)
	if err != nil {
		h.scriptureError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type searchResponse struct {
	Verses []scripture.Verse `json:"verses"`
}

func (h *Handler) ScriptureSearch(w http.ResponseWriter, r *http.Request) {
	if h.d.Scripture == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "scripture source not configured")
		return
	}
	keywords := strings.Fields(r.URL.Query().Get("q"))
	if len(keywords) == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	vs, err := h.d.Scripture.Search(r.Context(), h.translation(r), keywords, limit)
	if err != nil {
		h.scriptureError(w, r, err)
		return
	}
	if vs == nil {
		vs = []scripture.Verse{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Verses: vs})
}

func (h *Handler) translation(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("translation")); t != "" {
		return t
	}
	return h.d.DefaultTranslation
}

func (h *Handler) scriptureError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scripture.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "verse not found")
	case errors.Is(err, scripture.ErrUnknownTranslation):
		WriteProblem(w, r, http.StatusBadRequest, "unknown translation")
	default:
		h.d.Log.Warn("scripture request failed", logx.Err(err))
		WriteProblem(w, r, http.StatusBadGateway, "scripture source unavailable")
	}
}

type notifierResponse struct {
	Enabled   bool                   `json:"enabled"`
	Transport string                 `json:"transport"`
	History   []notifier.HistoryItem `json:"history"`
}

func (h *Handler) NotifierHistory(w http.ResponseWriter, r *http.Request) {
	if h.d.Notifier == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "notifier not configured")
		return
	}
	hist := h.d.Notifier.Snapshot()
	if hist == nil {
		hist = []notifier.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, notifierResponse{
		Enabled:   h.d.Notifier.Enabled(),
		Transport: h.d.Notifier.TransportName(),
		History:   hist,
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}
