package runner

import (
	"encoding/json"

	"github.com/PaesslerAG/jsonpath"

	"bencher/internal/apierrors"
	"bencher/internal/model"
)

// JobConfig is the embedded config a job carries, referencing the project
// (and the branch/testbed/adapter it will report against) so the
// Completed handler's re-ingestion path has everything submit_report
// needs without a second round trip to the caller (spec.md §3 "job ->
// runner (optional), with embedded config referencing project").
type JobConfig struct {
	ProjectID  model.ProjectID `json:"project_id"`
	Branch     string          `json:"branch"`
	Testbed    string          `json:"testbed"`
	AdapterTag string          `json:"adapter_tag"`
}

// EncodeJobConfig marshals a JobConfig for storage in job.config_json.
func EncodeJobConfig(c JobConfig) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", apierrors.Internal(err, "encoding job config")
	}
	return string(raw), nil
}

// DecodeJobConfig parses job.config_json back into a JobConfig.
func DecodeJobConfig(raw string) (JobConfig, error) {
	var c JobConfig
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return JobConfig{}, apierrors.Internal(err, "decoding job config")
	}
	return c, nil
}

// DebugField evaluates a JSONPath expression against a job's config_json,
// for operators inspecting a field that isn't part of JobConfig's typed
// surface (an adapter-specific extension, say) without writing a one-off
// query. Returns the raw matched value, JSON-encoded.
func DebugField(configJSON, path string) (string, error) {
	var doc interface{}
	if err := json.Unmarshal([]byte(configJSON), &doc); err != nil {
		return "", apierrors.Internal(err, "decoding job config for debug lookup")
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return "", apierrors.BadRequest("evaluating path %q: %v", path, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", apierrors.Internal(err, "encoding debug lookup result")
	}
	return string(out), nil
}
