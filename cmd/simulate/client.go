package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// apiClient calls the api-server as a receptionist of the target clinic.
type apiClient struct {
	baseURL string
	secret  []byte
	http    *http.Client

	mu     sync.Mutex
	tokens map[uuid.UUID]string
}

func newAPIClient(cfg SimConfig) *apiClient {
	return &apiClient{
		baseURL: cfg.APIBaseURL,
		secret:  []byte(cfg.JWTSecret),
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  make(map[uuid.UUID]string),
	}
}

type receptionistClaims struct {
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id"`
	jwt.RegisteredClaims
}

func (c *apiClient) token(clinicID uuid.UUID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[clinicID]; ok {
		return tok, nil
	}
	claims := receptionistClaims{
		Role:     "receptionist",
		ClinicID: clinicID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "simulator",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", err
	}
	c.tokens[clinicID] = tok
	return tok, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, clinicID uuid.UUID, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		tok, err := c.token(clinicID)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	} else {
		req.Header.Set("X-User-ID", "simulator")
		req.Header.Set("X-Role", "receptionist")
		req.Header.Set("X-Clinic-ID", clinicID.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) Availability(ctx context.Context, d Doctor, from, to availability.Date) (api.AvailabilityResponse, error) {
	var out api.AvailabilityResponse
	path := fmt.Sprintf("/doctors/%s/availability?from=%s&to=%s", d.ID, from, to)
	status, err := c.do(ctx, http.MethodGet, path, d.ClinicID, nil, &out)
	if err != nil {
		return out, err
	}
	if status != http.StatusOK {
		return out, fmt.Errorf("availability for doctor %s: status %d", d.ID, status)
	}
	return out, nil
}

// bookResult is the outcome of one booking attempt. Code is the error code of
// a rejected attempt.
type bookResult struct {
	Status int
	Code   string
	ID     uuid.UUID
}

func (c *apiClient) Book(ctx context.Context, t Target, patientID uuid.UUID) (bookResult, error) {
	req := api.CreateAppointmentRequest{
		DoctorID:  t.DoctorID.String(),
		PatientID: patientID.String(),
		Date:      t.Date.String(),
		SlotStart: t.Start.String(),
	}

	// both shapes decode from the same body
	var out struct {
		api.AppointmentResponse
		api.ErrorResponse
	}
	status, err := c.do(ctx, http.MethodPost, "/appointments", t.ClinicID, req, &out)
	if err != nil {
		return bookResult{Status: status}, err
	}
	return bookResult{Status: status, Code: out.Error, ID: out.ID}, nil
}

func (c *apiClient) Cancel(ctx context.Context, clinicID, id uuid.UUID) (int, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", id), clinicID, nil, nil)
}

func (c *apiClient) Get(ctx context.Context, clinicID, id uuid.UUID) (int, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/appointments/%s", id), clinicID, nil, nil)
}
