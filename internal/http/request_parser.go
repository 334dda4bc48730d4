// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding request bodies and path
// parameters of the plan API.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lifeplan/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	errEmptyBody = errors.New("request body is empty")
	errBadField  = errors.New("unknown cell field")
)

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// decodeOrFail decodes the body and answers 400 on failure. It reports
// whether the handler may continue.
func decodeOrFail(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		BadRequestError(err.Error()).Write(w)
		return false
	}
	return true
}

// rowPath parses the {category} and {row} path values.
func rowPath(r *http.Request) (core.Category, int, error) {
	c, err := core.ParseCategory(r.PathValue("category"))
	if err != nil {
		return "", 0, err
	}
	row, err := parseRowID(r.PathValue("row"))
	if err != nil {
		return "", 0, err
	}
	return c, row, nil
}

func parseRowID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrRowNotFound, s)
	}
	return id, nil
}

// Request bodies.
type (
	createPlanRequest struct {
		Name  string `json:"name"`
		Start string `json:"start"`
		Term  int    `json:"term"`
	}

	selectRequest struct {
		Category string `json:"category"`
		Row      int    `json:"row"`
		Field    string `json:"field"`
		Date     string `json:"date"`
	}

	commitRequest struct {
		Value string `json:"value"`
	}

	setCellRequest struct {
		Category string `json:"category"`
		Row      int    `json:"row"`
		Date     string `json:"date"`
		Value    string `json:"value"`
	}

	addRowRequest struct {
		Category string `json:"category"`
		Name     string `json:"name"`
	}

	renameRequest struct {
		Name string `json:"name"`
	}

	settingsRequest struct {
		Theme  string `json:"theme"`
		Locale string `json:"locale"`
	}
)

func (req selectRequest) ref() (core.CellRef, error) {
	c, err := core.ParseCategory(req.Category)
	if err != nil {
		return core.CellRef{}, err
	}
	ref := core.CellRef{Category: c, RowID: req.Row, Field: core.Field(req.Field)}
	switch ref.Field {
	case core.FieldValue:
		d, err := core.ParseMonthKey(req.Date)
		if err != nil {
			return core.CellRef{}, err
		}
		ref.Date = d
	case core.FieldName, core.FieldFirstMeta:
	default:
		return core.CellRef{}, fmt.Errorf("%w: %q", errBadField, req.Field)
	}
	return ref, nil
}
