// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// extractRequest carries the query parameters of a single extraction.
type extractRequest struct {
	Dataset string  `validate:"required"`
	Lat     float64 `validate:"latitude"`
	Lon     float64 `validate:"longitude"`
	Date    string  `validate:"isodate"`
}

// batchRequest is the JSON body of a multi-dataset extraction.
type batchRequest struct {
	Datasets []string `json:"datasets" validate:"required,min=1,max=32,dive,required"`
	Lat      float64  `json:"lat" validate:"latitude"`
	Lon      float64  `json:"lon" validate:"longitude"`
	Date     string   `json:"date" validate:"isodate"`
}

// parseExtractRequest reads dataset, lat, lon and optional date from
// the query string.
func parseExtractRequest(r *http.Request) (extractRequest, error) {
	q := r.URL.Query()
	req := extractRequest{
		Dataset: strings.TrimSpace(q.Get("dataset")),
		Date:    strings.TrimSpace(q.Get("date")),
	}

	var err error
	if req.Lat, err = parseFloatParam(q.Get("lat"), "lat"); err != nil {
		return req, err
	}
	if req.Lon, err = parseFloatParam(q.Get("lon"), "lon"); err != nil {
		return req, err
	}
	return req, nil
}

func parseFloatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing required parameter %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %q is not a number: %q", name, raw)
	}
	return v, nil
}
