package api

import (
	"github.com/samcharles93/fmha/internal/backend/host"
	"github.com/samcharles93/fmha/internal/descfile"
)

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type KindInfo struct {
	Name    string `json:"name"`
	Family  string `json:"family"`
	Scale   bool   `json:"scale"`
	Mask    bool   `json:"mask"`
	Bias    bool   `json:"bias"`
	Dropout bool   `json:"dropout"`
}

type KindsResponse struct {
	Object string     `json:"object"`
	Data   []KindInfo `json:"data"`
}

// ConfigResponse describes a config derived from a posted descriptor.
type ConfigResponse struct {
	ID         string           `json:"id"`
	Object     string           `json:"object"`
	CreatedAt  int64            `json:"created_at"`
	Summary    descfile.Summary `json:"summary"`
	Diagnostic string           `json:"diagnostic"`
}

type ConfigListResponse struct {
	Object string           `json:"object"`
	Data   []ConfigResponse `json:"data"`
}

type DeviceResponse struct {
	Backend string    `json:"backend"`
	Host    host.Info `json:"host"`
}
