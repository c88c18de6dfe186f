package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaReport surfaces the health of the configured Ollama endpoint.
type OllamaReport struct {
	Endpoint      string
	Healthy       bool
	Models        []string
	SelectedModel string
	Error         string
}

// ProbeOllama queries the Ollama tags endpoint to confirm health and list
// the models it serves.
func ProbeOllama(ctx context.Context, endpoint, model string) OllamaReport {
	report := OllamaReport{Endpoint: endpoint, SelectedModel: model}
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/api/tags", nil)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	resp, err := client.Do(req)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		report.Error = fmt.Sprintf("ollama responded with %s", resp.Status)
		return report
	}
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		report.Error = err.Error()
		return report
	}
	for _, m := range payload.Models {
		report.Models = append(report.Models, m.Name)
	}
	report.Healthy = true
	return report
}
