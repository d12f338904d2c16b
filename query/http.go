package query

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/errs"
)

// API serves the Prometheus-compatible HTTP query endpoints:
//
//	/api/v1/query
//	/api/v1/query_range
//	/api/v1/labels
//	/api/v1/label/{name}/values
//	/api/v1/series
type API struct {
	adapter *Adapter
	logger  log.Logger
	now     func() time.Time
}

// NewAPI creates the HTTP API over the given adapter.
func NewAPI(adapter *Adapter, logger log.Logger) *API {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &API{
		adapter: adapter,
		logger:  logger,
		now:     time.Now,
	}
}

// Register installs the API routes on the router.
func (api *API) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/query", api.handleInstantQuery).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/v1/query_range", api.handleRangeQuery).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/v1/labels", api.handleLabelNames).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/v1/label/{name}/values", api.handleLabelValues).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/series", api.handleSeries).Methods(http.MethodGet, http.MethodPost)
}

type apiResponse struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
}

type queryData struct {
	ResultType string `json:"resultType"`
	Result     any    `json:"result"`
}

// sampleValue renders as the [unix_seconds, "value"] pair Prometheus clients
// expect.
type sampleValue block.Sample

func (v sampleValue) MarshalJSON() ([]byte, error) {
	ts := strconv.FormatFloat(float64(v.Timestamp)/1000, 'f', 3, 64)
	val := strconv.Quote(strconv.FormatFloat(v.Value, 'f', -1, 64))

	return []byte("[" + ts + "," + val + "]"), nil
}

type vectorEntry struct {
	Metric map[string]string `json:"metric"`
	Value  sampleValue       `json:"value"`
}

type matrixEntry struct {
	Metric map[string]string `json:"metric"`
	Values []sampleValue     `json:"values"`
}

func (api *API) handleInstantQuery(w http.ResponseWriter, r *http.Request) {
	selector := r.FormValue("query")
	matchers, err := ParseSelector(selector)
	if err != nil {
		api.writeError(w, err)
		return
	}

	ts, err := ParseTime(r.FormValue("time"), api.now().UnixMilli())
	if err != nil {
		api.writeError(w, err)
		return
	}

	vector, err := api.adapter.InstantQuery(r.Context(), matchers, ts)
	if err != nil {
		api.writeError(w, err)
		return
	}

	result := make([]vectorEntry, 0, len(vector))
	for _, p := range vector {
		result = append(result, vectorEntry{
			Metric: p.Labels.Map(),
			Value:  sampleValue(p.Sample),
		})
	}

	api.writeSuccess(w, queryData{ResultType: "vector", Result: result})
}

func (api *API) handleRangeQuery(w http.ResponseWriter, r *http.Request) {
	selector := r.FormValue("query")
	matchers, err := ParseSelector(selector)
	if err != nil {
		api.writeError(w, err)
		return
	}

	nowMs := api.now().UnixMilli()
	start, err := ParseTime(r.FormValue("start"), nowMs)
	if err != nil {
		api.writeError(w, err)
		return
	}
	end, err := ParseTime(r.FormValue("end"), nowMs)
	if err != nil {
		api.writeError(w, err)
		return
	}
	step, err := ParseDuration(r.FormValue("step"))
	if err != nil {
		api.writeError(w, err)
		return
	}

	matrix, err := api.adapter.RangeQuery(r.Context(), matchers, start, end, step)
	if err != nil {
		api.writeError(w, err)
		return
	}

	result := make([]matrixEntry, 0, len(matrix))
	for _, sr := range matrix {
		values := make([]sampleValue, 0, len(sr.Samples))
		for _, s := range sr.Samples {
			values = append(values, sampleValue(s))
		}
		result = append(result, matrixEntry{Metric: sr.Labels.Map(), Values: values})
	}

	api.writeSuccess(w, queryData{ResultType: "matrix", Result: result})
}

func (api *API) handleLabelNames(w http.ResponseWriter, _ *http.Request) {
	api.writeSuccess(w, api.adapter.LabelNames())
}

func (api *API) handleLabelValues(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	api.writeSuccess(w, api.adapter.LabelValues(name))
}

func (api *API) handleSeries(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.writeError(w, errs.ErrInvalidSelector)
		return
	}

	selectors := r.Form["match[]"]
	if len(selectors) == 0 {
		api.writeError(w, errs.ErrInvalidSelector)
		return
	}

	seen := make(map[string]struct{})
	result := make([]map[string]string, 0)
	for _, selector := range selectors {
		matchers, err := ParseSelector(selector)
		if err != nil {
			api.writeError(w, err)
			return
		}

		for _, lset := range api.adapter.Series(matchers) {
			key := lset.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, lset.Map())
		}
	}

	api.writeSuccess(w, result)
}

func (api *API) writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(apiResponse{Status: "success", Data: data}); err != nil {
		level.Error(api.logger).Log("msg", "write response", "err", err)
	}
}

func (api *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	errorType := "internal"

	switch errs.KindOf(err) {
	case errs.KindInvalidArgument:
		status, errorType = http.StatusBadRequest, "bad_data"
	case errs.KindNotFound:
		status, errorType = http.StatusNotFound, "not_found"
	case errs.KindDeadlineExceeded:
		status, errorType = http.StatusServiceUnavailable, "timeout"
	case errs.KindOutOfRange, errs.KindSealed, errs.KindCorrupt, errs.KindInternal, errs.KindUnknown:
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(apiResponse{
		Status:    "error",
		ErrorType: errorType,
		Error:     err.Error(),
	}); encErr != nil {
		level.Error(api.logger).Log("msg", "write error response", "err", encErr)
	}
}
