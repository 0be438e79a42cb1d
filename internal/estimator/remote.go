package estimator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const remoteName = "remote"

func init() {
	// The zero-value base is filled in by UnmarshalBinary when a saved
	// ensemble is decoded.
	RegisterFactory(remoteName, func() Estimator { return NewRemote("", 10*time.Second, 0) })
}

// Remote delegates fit/predict/predict_proba to an external HTTP scoring
// service, so heavyweight model families can live outside the process while
// the engine treats them like any other candidate. Hyperparameters set here
// are forwarded verbatim to the service with each fit request.
type Remote struct {
	base   string
	rest   *resty.Client
	params Params

	modelID string
	classes []int
}

type remoteFitRequest struct {
	Features Matrix `json:"features"`
	Labels   []int  `json:"labels"`
	Params   Params `json:"params,omitempty"`
	ModelID  string `json:"model_id,omitempty"`
}

type remoteFitResponse struct {
	ModelID string `json:"model_id"`
	Classes []int  `json:"classes"`
	Error   string `json:"error,omitempty"`
}

type remotePredictRequest struct {
	ModelID  string `json:"model_id"`
	Features Matrix `json:"features"`
}

type remotePredictResponse struct {
	Labels        []int       `json:"labels,omitempty"`
	Probabilities [][]float64 `json:"probabilities,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// NewRemote returns an estimator backed by the scoring service at base.
// Requests time out after timeout and are retried up to retries times with
// backoff before the candidate is reported as failed.
func NewRemote(base string, timeout time.Duration, retries int) *Remote {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	if retries > 0 {
		r.SetRetryCount(retries).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second)
	}
	return &Remote{base: base, rest: r, params: Params{}}
}

func (r *Remote) Name() string { return remoteName }

func (r *Remote) Params() Params { return r.params.Clone() }

// SetParams accepts any parameter names; the remote service owns the
// schema and rejects what it does not understand at fit time.
func (r *Remote) SetParams(p Params) error {
	r.params = p.Clone()
	return nil
}

func (r *Remote) Clone() Estimator {
	clone := &Remote{base: r.base, rest: r.rest, params: r.params.Clone()}
	return clone
}

func (r *Remote) Classes() []int { return r.classes }

func (r *Remote) Fit(x Matrix, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("remote: need aligned non-empty training data, got %d rows and %d labels", len(x), len(y))
	}

	resp := &remoteFitResponse{}
	httpResp, err := r.rest.R().
		SetBody(remoteFitRequest{Features: x, Labels: y, Params: r.params}).
		SetResult(resp).
		Post(r.base + "/fit")
	if err != nil {
		return fmt.Errorf("remote: fit request failed: %w", err)
	}
	if httpResp.IsError() {
		return fmt.Errorf("remote: fit returned %s", httpResp.Status())
	}
	if resp.Error != "" {
		return fmt.Errorf("remote: fit rejected: %s", resp.Error)
	}
	if resp.ModelID == "" || len(resp.Classes) == 0 {
		return fmt.Errorf("remote: fit response missing model id or classes")
	}

	r.modelID = resp.ModelID
	r.classes = append([]int(nil), resp.Classes...)
	log.Debug().Str("model_id", r.modelID).Int("classes", len(r.classes)).Msg("remote estimator fitted")
	return nil
}

func (r *Remote) Predict(x Matrix) ([]int, error) {
	resp, err := r.post("/predict", x)
	if err != nil {
		return nil, err
	}
	if len(resp.Labels) != len(x) {
		return nil, fmt.Errorf("remote: predict returned %d labels for %d rows", len(resp.Labels), len(x))
	}
	return resp.Labels, nil
}

// PredictProba requests per-class probability vectors aligned with
// Classes(); services that cannot produce them respond with an error and
// the aggregator falls back to one-hot vectors from Predict.
func (r *Remote) PredictProba(x Matrix) ([][]float64, error) {
	resp, err := r.post("/predict_proba", x)
	if err != nil {
		return nil, err
	}
	if len(resp.Probabilities) != len(x) {
		return nil, fmt.Errorf("remote: predict_proba returned %d vectors for %d rows", len(resp.Probabilities), len(x))
	}
	for i, p := range resp.Probabilities {
		if len(p) != len(r.classes) {
			return nil, fmt.Errorf("remote: probability vector %d has %d entries, expected %d", i, len(p), len(r.classes))
		}
	}
	return resp.Probabilities, nil
}

func (r *Remote) post(path string, x Matrix) (*remotePredictResponse, error) {
	if err := checkFitted(r.classes, "remote predict"); err != nil {
		return nil, err
	}
	resp := &remotePredictResponse{}
	httpResp, err := r.rest.R().
		SetBody(remotePredictRequest{ModelID: r.modelID, Features: x}).
		SetResult(resp).
		Post(r.base + path)
	if err != nil {
		return nil, fmt.Errorf("remote: %s request failed: %w", path, err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("remote: %s returned %s", path, httpResp.Status())
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote: %s rejected: %s", path, resp.Error)
	}
	return resp, nil
}

type remoteState struct {
	Base    string `json:"base"`
	Params  Params `json:"params"`
	ModelID string `json:"model_id"`
	Classes []int  `json:"classes"`
}

// MarshalBinary captures the service reference, not the model weights;
// the remote service owns those. Loading re-targets the same model id.
func (r *Remote) MarshalBinary() ([]byte, error) {
	return json.Marshal(remoteState{Base: r.base, Params: r.params, ModelID: r.modelID, Classes: r.classes})
}

func (r *Remote) UnmarshalBinary(data []byte) error {
	var st remoteState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("remote: decode state: %w", err)
	}
	r.base = st.Base
	r.params = st.Params
	r.modelID = st.ModelID
	r.classes = st.Classes
	if r.rest == nil {
		r.rest = resty.New().SetTimeout(10 * time.Second)
	}
	return nil
}
