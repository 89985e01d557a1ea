package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

/* HTTPSource pages through a JSON/HL7/FHIR HTTP API one page at a time,
   yielding one record per call to Next. Client setup (fixed-timeout
   *http.Client, bearer-token-optional auth) is grounded on
   internal/llm's EmbeddingHTTPClient dial idiom. Shared by the jsonApi,
   hl7Api, and fhirApi connector kinds: all three are "page of JSON
   records behind a bearer-auth HTTP endpoint", differing only in how the
   response envelope is shaped, which recordsPath captures. The next page
   is read from a "nextPage" field or a FHIR link[relation=next];
   nextPageParam is not consulted. */
type HTTPSource struct {
	client       *http.Client
	baseURL      string
	bearerToken  string
	recordsPath  string
	nextPageParam string

	page    []map[string]interface{}
	pageIdx int
	nextURL string
	done    bool
}

/* NewHTTPSource builds a jsonApi/hl7Api/fhirApi source connector from a
   ConnectorRef config: {"url": string, "bearerToken": string (optional),
   "recordsPath": string (optional; empty selects the top-level "data"
   array, and FHIR bundles need "entry" set explicitly)}. */
func NewHTTPSource(cfg map[string]interface{}) (*HTTPSource, error) {
	url, _ := cfg["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http connector: missing required config key \"url\"")
	}
	token, _ := cfg["bearerToken"].(string)
	recordsPath, _ := cfg["recordsPath"].(string)

	return &HTTPSource{
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:     url,
		bearerToken: token,
		recordsPath: recordsPath,
		nextURL:     url,
	}, nil
}

func (s *HTTPSource) Open(ctx context.Context) error {
	return s.fetchPage(ctx)
}

func (s *HTTPSource) fetchPage(ctx context.Context) error {
	if s.nextURL == "" {
		s.done = true
		s.page = nil
		s.pageIdx = 0
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.nextURL, nil)
	if err != nil {
		return fmt.Errorf("http connector: build request: %w", err)
	}
	if s.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearerToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http connector: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http connector: unexpected status %d from %s", resp.StatusCode, s.nextURL)
	}

	var envelope map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("http connector: decode response: %w", err)
	}

	s.page = extractRecords(envelope, s.recordsPath)
	s.pageIdx = 0
	s.nextURL = extractNextLink(envelope)
	return nil
}

func (s *HTTPSource) Next(ctx context.Context) (map[string]interface{}, bool, error) {
	for s.pageIdx >= len(s.page) {
		if s.done {
			return nil, false, nil
		}
		if err := s.fetchPage(ctx); err != nil {
			return nil, false, err
		}
		if s.nextURL == "" {
			s.done = true
		}
		if len(s.page) == 0 {
			return nil, false, nil
		}
	}

	record := s.page[s.pageIdx]
	s.pageIdx++
	return record, true, nil
}

func (s *HTTPSource) Close(ctx context.Context) error {
	return nil
}

/* extractRecords pulls the list of records out of a decoded JSON
   envelope. An explicit recordsPath selects a named field (FHIR bundles:
   "entry", each entry wrapping the resource under "resource"); empty
   path falls back to a top-level "data" array, matching the common
   jsonApi convention. */
func extractRecords(envelope map[string]interface{}, recordsPath string) []map[string]interface{} {
	path := recordsPath
	if path == "" {
		path = "data"
	}

	raw, ok := envelope[path].([]interface{})
	if !ok {
		return nil
	}

	records := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if resource, ok := entry["resource"].(map[string]interface{}); ok {
			records = append(records, resource)
			continue
		}
		records = append(records, entry)
	}
	return records
}

/* extractNextLink follows FHIR's Bundle.link[relation=next].url
   convention, or a bare "nextPage" field for plain jsonApi paging. Empty
   return ends the sequence. */
func extractNextLink(envelope map[string]interface{}) string {
	if next, ok := envelope["nextPage"].(string); ok {
		return next
	}
	links, ok := envelope["link"].([]interface{})
	if !ok {
		return ""
	}
	for _, l := range links {
		link, ok := l.(map[string]interface{})
		if !ok {
			continue
		}
		if rel, _ := link["relation"].(string); rel == "next" {
			url, _ := link["url"].(string)
			return url
		}
	}
	return ""
}

/* HTTPDestination POSTs each transformed record as a JSON body to a
   fixed endpoint; used for the fhirApi destination kind (pushing
   transformed resources to an external FHIR server) and jsonApi. */
type HTTPDestination struct {
	client      *http.Client
	url         string
	bearerToken string
}

/* NewHTTPDestination builds a jsonApi/hl7Api/fhirApi destination
   connector. */
func NewHTTPDestination(cfg map[string]interface{}) (*HTTPDestination, error) {
	url, _ := cfg["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http connector: missing required config key \"url\"")
	}
	token, _ := cfg["bearerToken"].(string)
	return &HTTPDestination{client: &http.Client{Timeout: defaultHTTPTimeout}, url: url, bearerToken: token}, nil
}

func (d *HTTPDestination) Open(ctx context.Context) error {
	return nil
}

func (d *HTTPDestination) Write(ctx context.Context, record map[string]interface{}) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("http connector: encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http connector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.bearerToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http connector: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http connector: unexpected status %d from %s", resp.StatusCode, d.url)
	}
	return nil
}

func (d *HTTPDestination) Close(ctx context.Context) error {
	return nil
}
