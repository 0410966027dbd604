package server

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/screening"
)

// thresholdsBody lets a request override any subset of the configured
// thresholds.
type thresholdsBody struct {
	ATS     *int `json:"atsThreshold"`
	Anomaly *int `json:"anomalyThreshold"`
	Match   *int `json:"matchThreshold"`
	Version *int `json:"version"`
}

func (b *thresholdsBody) resolve(base screening.Thresholds) screening.Thresholds {
	t := base
	if b == nil {
		return t
	}
	if b.ATS != nil {
		t.ATS = *b.ATS
	}
	if b.Anomaly != nil {
		t.Anomaly = *b.Anomaly
	}
	if b.Match != nil {
		t.Match = *b.Match
	}
	if b.Version != nil {
		t.Version = *b.Version
	}
	return t
}

type runBody struct {
	JobDescription string          `json:"jobDescription" validate:"required"`
	SubmissionIDs  []string        `json:"submissionIds"`
	Thresholds     *thresholdsBody `json:"thresholds"`
}

type reclassifyBody struct {
	SubmissionIDs []string        `json:"submissionIds"`
	Thresholds    *thresholdsBody `json:"thresholds" validate:"required"`
}

type overrideBody struct {
	Status string    `json:"status" validate:"required"`
	Actor  string    `json:"actor" validate:"required"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func (s *Server) createRun(c fiber.Ctx) error {
	var body runBody
	if err := s.bind(c, &body); err != nil {
		return err
	}

	res, err := s.screener.Run(c.Context(), batch.RunRequest{
		JobDescription: body.JobDescription,
		SubmissionIDs:  body.SubmissionIDs,
		Thresholds:     body.Thresholds.resolve(s.cfg.Thresholds),
	})
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, res)
}

func (s *Server) reclassify(c fiber.Ctx) error {
	var body reclassifyBody
	if err := s.bind(c, &body); err != nil {
		return err
	}

	res, err := s.screener.Reclassify(c.Context(), batch.ReclassifyRequest{
		SubmissionIDs: body.SubmissionIDs,
		Thresholds:    body.Thresholds.resolve(s.cfg.Thresholds),
	})
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, res)
}

func (s *Server) getSubmission(c fiber.Ctx) error {
	sub, err := s.screener.Get(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, sub)
}

func (s *Server) overrideDecision(c fiber.Ctx) error {
	var body overrideBody
	if err := s.bind(c, &body); err != nil {
		return err
	}

	status, err := screening.ParseStatus(body.Status)
	if err != nil {
		return fromDomain(err)
	}

	sub, err := s.screener.Override(c.Context(), batch.OverrideRequest{
		SubmissionID: strings.TrimSpace(c.Params("id")),
		Status:       status,
		Actor:        body.Actor,
		Reason:       body.Reason,
		At:           body.At,
	})
	if err != nil {
		return fromDomain(err)
	}
	return success(c, fiber.StatusOK, sub)
}
