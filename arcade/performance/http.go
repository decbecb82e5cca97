// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package performance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
)

// Config holds calculator configuration.
type Config struct {
	CalculatorURL string        `help:"base url of the remote calculator, empty disables it" default:""`
	Timeout       time.Duration `help:"per-request calculator timeout" default:"10s"`
	Rulesets      []string      `help:"rulesets the remote calculator handles" default:"osu,taiko,fruits,mania"`

	FallbackEnabled bool `help:"approximate pp from star rating when the calculator cannot" default:"true"`
}

// HTTPCalculator speaks JSON to a remote difficulty service.
type HTTPCalculator struct {
	log      *zap.Logger
	http     *http.Client
	baseURL  string
	supports map[rulesets.ID]bool
}

// NewHTTPCalculator returns a calculator client, or nil when no url is
// configured.
func NewHTTPCalculator(log *zap.Logger, config Config) (*HTTPCalculator, error) {
	if config.CalculatorURL == "" {
		return nil, nil
	}
	supports := make(map[rulesets.ID]bool, len(config.Rulesets))
	for _, name := range config.Rulesets {
		id, err := rulesets.Parse(name)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		supports[id] = true
	}
	return &HTTPCalculator{
		log:      log,
		http:     &http.Client{Timeout: config.Timeout},
		baseURL:  config.CalculatorURL,
		supports: supports,
	}, nil
}

// Supports implements Calculator.
func (c *HTTPCalculator) Supports(ruleset rulesets.ID) bool {
	return c.supports[ruleset.Base()]
}

// Calculate implements Calculator.
func (c *HTTPCalculator) Calculate(ctx context.Context, req *Request) (result *Result, err error) {
	defer mon.Task()(&ctx)(&err)

	result = &Result{}
	if err := c.post(ctx, "/api/calculate", req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Attributes implements Calculator.
func (c *HTTPCalculator) Attributes(ctx context.Context, beatmapID int64, ruleset rulesets.ID, mods rulesets.Mods) (attrs *Attributes, err error) {
	defer mon.Task()(&ctx)(&err)

	payload := struct {
		BeatmapID int64         `json:"beatmap_id"`
		Ruleset   rulesets.ID   `json:"ruleset_id"`
		Mods      rulesets.Mods `json:"mods"`
	}{beatmapID, ruleset, mods}

	attrs = &Attributes{}
	if err := c.post(ctx, "/api/attributes", payload, attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (c *HTTPCalculator) post(ctx context.Context, path string, payload, out any) (err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Error.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	if resp.StatusCode != http.StatusOK {
		return Error.New("calculator returned %d for %s", resp.StatusCode, path)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(json.Unmarshal(data, out))
}

// attributesKey is the persistent cache key for difficulty attributes.
func attributesKey(beatmapID int64, ruleset rulesets.ID, mods rulesets.Mods) string {
	return fmt.Sprintf("beatmap:%d:%d:%s:attributes", beatmapID, int(ruleset), mods.Fingerprint())
}

// attributesPattern matches every attribute key of one beatmap.
func attributesPattern(beatmapID int64) string {
	return fmt.Sprintf("beatmap:%d:*:attributes", beatmapID)
}
