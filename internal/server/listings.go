package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/spigell/ats-screener/internal/listings"
)

type matchBody struct {
	URL          string `json:"url" validate:"required,url"`
	SubmissionID string `json:"submissionId" validate:"required"`
}

func (s *Server) upsertListing(c fiber.Ctx) error {
	var body listings.Listing
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(err)
	}

	stored, err := s.listings.Upsert(c.Context(), body)
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, stored)
}

func (s *Server) queryListings(c fiber.Ctx) error {
	var filters []listings.Filter

	submissionID := strings.TrimSpace(c.Query("submission_id"))
	// min_score is inclusive, matching --min-score.
	minScore, hasMin, err := queryInt(c, "min_score")
	if err != nil {
		return err
	}

	switch {
	case submissionID != "" && hasMin:
		filters = append(filters, listings.SubmissionMinScore(submissionID, minScore))
	case submissionID != "":
		filters = append(filters, listings.ForSubmission(submissionID))
	case hasMin:
		filters = append(filters, listings.MinMatchScore(minScore))
	}
	if source := strings.TrimSpace(c.Query("source")); source != "" {
		filters = append(filters, listings.FromSource(source))
	}

	found, err := s.listings.QueryActive(c.Context(), filters...)
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, found)
}

func (s *Server) matchListing(c fiber.Ctx) error {
	var body matchBody
	if err := s.bind(c, &body); err != nil {
		return err
	}

	sub, err := s.screener.Get(c.Context(), strings.TrimSpace(body.SubmissionID))
	if err != nil {
		return fromDomain(err)
	}

	updated, _, err := listings.MatchCandidate(c.Context(), s.listings, body.URL,
		listings.Candidate{SubmissionID: sub.ID, Skills: sub.Skills}, s.now())
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, updated)
}

func queryInt(c fiber.Ctx, key string) (int, bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || v > 100 {
		return 0, false, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("%s must be an integer in [0,100]", key), nil, err)
	}
	return v, true, nil
}
